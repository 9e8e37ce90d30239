package matchmaker

import (
	"context"
	"errors"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
)

// EPT holds, per internal era year, the county code translation that
// undoes the extra-provincial transformations of later province
// standards. A nil EPT is the identity.
type EPT map[int]map[string]string

// For returns the translation for era year; nil when none applies.
func (e EPT) For(year int) map[string]string {
	if e == nil {
		return nil
	}
	return e[year]
}

// AnnualEPT builds the per-year translation: the map for year Y is the
// union of the transformation maps of every standard year S > Y, applied
// in ascending S so later standards override earlier ones.
func AnnualEPT(years []int, transformations map[int]map[string]string) EPT {
	standards := slices.Sorted(maps.Keys(transformations))
	ept := make(EPT, len(years))
	for _, y := range years {
		m := make(map[string]string)
		for _, s := range standards {
			if s > y {
				maps.Copy(m, transformations[s])
			}
		}
		ept[y] = m
	}
	return ept
}

// ExtraProvincialTransformations returns, for the selected rows of doc,
// the county codes whose province prefix changed, as new code -> old code.
func ExtraProvincialTransformations(doc *Documentation) map[string]string {
	m := make(map[string]string)
	for _, r := range doc.Rows {
		if !r.Selected || len(r.NewCode) < 2 || len(r.OldCode) < 2 {
			continue
		}
		if r.NewCode[:2] != r.OldCode[:2] {
			m[r.NewCode] = r.OldCode
		}
	}
	return m
}

// countyTransformations computes the transformation map of every
// province standard year. A standard year with no preceding division
// survey contributes an empty map.
func (r *Reconciler) countyTransformations(ctx context.Context, standards []int) (map[int]map[string]string, error) {
	out := make(map[int]map[string]string, len(standards))
	for _, s := range standards {
		if _, err := r.resolver.Matcher().Divisions().Previous(s); err != nil {
			if errors.Is(err, metadata.ErrYearNotFound) {
				out[s] = map[string]string{}
				continue
			}
			return nil, err
		}
		doc, err := r.resolver.OneToOneDocumentation(ctx, s, model.LevelCounty)
		if err != nil {
			return nil, err
		}
		out[s] = ExtraProvincialTransformations(doc)
		r.log.Debug("extra-provincial transformations",
			zap.Int("standard_year", s),
			zap.Int("counties", len(out[s])),
		)
	}
	return out, nil
}
