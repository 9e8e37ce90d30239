package matchmaker

import (
	"context"
	"maps"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/store"
)

var (
	// ErrUnmatched is returned when no internal era or region matches an
	// external declaration.
	ErrUnmatched = eris.New("matchmaker: no internal match")
	// ErrAmbiguous is returned when more than one internal region matches
	// an external code.
	ErrAmbiguous = eris.New("matchmaker: ambiguous internal match")
)

// Resolution is the internal ID of one external code. Code is set when
// the code maps to the same ID in every dataset year; otherwise ByYear
// holds the ID for each dataset year.
type Resolution struct {
	Code   string         `json:"code,omitempty" yaml:"code,omitempty"`
	ByYear map[int]string `json:"by_year,omitempty" yaml:"by_year,omitempty"`
}

// Stable reports whether the code maps to a single ID.
func (r Resolution) Stable() bool { return r.ByYear == nil }

// Reconciliation is the result of aligning one external coding scheme
// with the internal divisions at one level.
type Reconciliation struct {
	External model.ExternalDataset `json:"external"`
	Level    model.Level           `json:"level"`
	// Standards maps each dataset year to the first year of the internal
	// era its codes follow.
	Standards map[int]int           `json:"standards"`
	Codes     map[string]Resolution `json:"codes"`
}

// ReconcileOptions bounds the internal eras a dataset year may match.
type ReconcileOptions struct {
	ProvinceMinYear int
	CountyMinYear   int
}

// Reconciler aligns external datasets' codes with internal region IDs.
type Reconciler struct {
	resolver  *Resolver
	snapshots store.SnapshotReader
	meta      *metadata.Metadata
	opts      ReconcileOptions
	log       *zap.Logger
}

// NewReconciler creates a Reconciler. The resolver supplies the county
// transformations between province standards.
func NewReconciler(resolver *Resolver, snapshots store.SnapshotReader, meta *metadata.Metadata, opts ReconcileOptions) *Reconciler {
	return &Reconciler{
		resolver:  resolver,
		snapshots: snapshots,
		meta:      meta,
		opts:      opts,
		log:       zap.L().With(zap.String("component", "matchmaker.reconcile")),
	}
}

// Reconcile maps every code of ext at level to internal IDs. Counties are
// reconciled after the provinces of the same declaration set.
func (r *Reconciler) Reconcile(ctx context.Context, ext model.ExternalDataset, level model.Level, decls DeclarationSet) (*Reconciliation, error) {
	switch level {
	case model.LevelProvince:
		return r.reconcileProvinces(ctx, ext, decls.Provinces)
	case model.LevelCounty:
		return r.reconcileCounties(ctx, ext, decls)
	default:
		return nil, eris.Errorf("matchmaker: reconcile %s: unsupported level %s", ext, level)
	}
}

func (r *Reconciler) reconcileProvinces(ctx context.Context, ext model.ExternalDataset, decl Declaration) (*Reconciliation, error) {
	partition, err := r.partition(ctx, model.LevelProvince)
	if err != nil {
		return nil, err
	}
	rec, err := MatchDeclaration(decl, partition, r.meta.NonStandardCodes(ext, model.LevelProvince), nil, r.opts.ProvinceMinYear)
	if err != nil {
		return nil, eris.Wrapf(err, "matchmaker: reconcile %s provinces", ext)
	}
	rec.External, rec.Level = ext, model.LevelProvince
	r.logResult(rec)
	return rec, nil
}

func (r *Reconciler) reconcileCounties(ctx context.Context, ext model.ExternalDataset, decls DeclarationSet) (*Reconciliation, error) {
	provinces, err := r.reconcileProvinces(ctx, ext, decls.Provinces)
	if err != nil {
		return nil, err
	}
	standards := slices.Sorted(maps.Values(provinces.Standards))
	standards = slices.Compact(standards)

	transformations, err := r.countyTransformations(ctx, standards)
	if err != nil {
		return nil, eris.Wrapf(err, "matchmaker: reconcile %s counties", ext)
	}

	partition, err := r.partition(ctx, model.LevelCounty)
	if err != nil {
		return nil, err
	}
	ept := AnnualEPT(slices.Sorted(maps.Keys(partition)), transformations)

	rec, err := MatchDeclaration(decls.Counties, partition, r.meta.NonStandardCodes(ext, model.LevelCounty), ept, r.opts.CountyMinYear)
	if err != nil {
		return nil, eris.Wrapf(err, "matchmaker: reconcile %s counties", ext)
	}
	rec.External, rec.Level = ext, model.LevelCounty
	r.logResult(rec)
	return rec, nil
}

func (r *Reconciler) partition(ctx context.Context, level model.Level) (Partition, error) {
	regions, err := r.snapshots.Regions(ctx, store.RegionFilter{
		Dataset: model.DatasetGeographicalDivisions,
		Types:   []model.RegionType{level.RegionType()},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "matchmaker: load %s partition", level)
	}
	p := IdentityPartition(regions, level)
	if len(p) == 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "matchmaker: no %s divisions stored", level)
	}
	return p, nil
}

func (r *Reconciler) logResult(rec *Reconciliation) {
	unstable := 0
	for _, res := range rec.Codes {
		if !res.Stable() {
			unstable++
		}
	}
	r.log.Info("external codes reconciled",
		zap.String("external", string(rec.External)),
		zap.Stringer("level", rec.Level),
		zap.Int("dataset_years", len(rec.Standards)),
		zap.Int("codes", len(rec.Codes)),
		zap.Int("unstable", unstable),
	)
}

// MatchDeclaration aligns decl with the eras of partition. For every
// dataset year the corrected codes are remapped through each candidate
// era's EPT translation. An era starting at or after minYear is a
// candidate when every declared code covers exactly the base codes of
// one of its regions; a dataset need not cover the whole country. The
// candidate in force at the dataset year (the latest starting at or
// before it, else the earliest) becomes the year's standard, and every
// code maps to the one region of that era with the same base codes.
func MatchDeclaration(decl Declaration, partition Partition, corrections map[int]map[string]string, ept EPT, minYear int) (*Reconciliation, error) {
	var candidates []Era
	for _, e := range partition.Eras() {
		if e.Year >= minYear {
			candidates = append(candidates, e)
		}
	}

	rec := &Reconciliation{
		Standards: make(map[int]int, len(decl)),
		Codes:     make(map[string]Resolution),
	}
	byCode := make(map[string]map[int]string)

	for _, year := range decl.Years() {
		codes := slices.Sorted(maps.Keys(decl[year]))
		corrected := make(map[string]CodeSet, len(codes))
		for _, code := range codes {
			corrected[code] = decl.covers(year, code).Map(corrections[year])
		}

		era, err := standardEra(year, corrected, candidates, ept)
		if err != nil {
			return nil, err
		}
		rec.Standards[year] = era.Year

		translate := ept.For(era.Year)
		for _, code := range codes {
			id, err := matchRegion(year, code, corrected[code].Map(translate), era)
			if err != nil {
				return nil, err
			}
			if byCode[code] == nil {
				byCode[code] = make(map[int]string)
			}
			byCode[code][year] = id
		}
	}

	for code, years := range byCode {
		rec.Codes[code] = resolution(years)
	}
	return rec, nil
}

func standardEra(year int, corrected map[string]CodeSet, candidates []Era, ept EPT) (Era, error) {
	var matched []Era
	for _, e := range candidates {
		if coversCodes(corrected, e, ept.For(e.Year)) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return Era{}, unmatchedYear(year, corrected, candidates, ept)
	}
	best := matched[0]
	for _, e := range matched[1:] {
		if e.Year <= year {
			best = e
		}
	}
	return best, nil
}

// coversCodes reports whether every corrected code equals the base codes
// of at least one region of e.
func coversCodes(corrected map[string]CodeSet, e Era, translate map[string]string) bool {
	for _, set := range corrected {
		mapped := set.Map(translate)
		found := false
		for _, members := range e.Members {
			if members.Equal(mapped) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// unmatchedYear names the first code the earliest candidate era cannot
// place.
func unmatchedYear(year int, corrected map[string]CodeSet, candidates []Era, ept EPT) error {
	if len(candidates) == 0 {
		return eris.Wrapf(ErrUnmatched, "dataset year %d: no internal era in range", year)
	}
	e := candidates[0]
	for _, code := range slices.Sorted(maps.Keys(corrected)) {
		if !coversCodes(map[string]CodeSet{code: corrected[code]}, e, ept.For(e.Year)) {
			return eris.Wrapf(ErrUnmatched, "dataset year %d matches no internal era: code %q has no region in era %d", year, code, e.Year)
		}
	}
	return eris.Wrapf(ErrUnmatched, "dataset year %d matches no internal era", year)
}

func matchRegion(year int, code string, set CodeSet, era Era) (string, error) {
	var ids []string
	for id, members := range era.Members {
		if members.Equal(set) {
			ids = append(ids, id)
		}
	}
	switch len(ids) {
	case 1:
		return ids[0], nil
	case 0:
		return "", eris.Wrapf(ErrUnmatched, "code %q of %d in era %d", code, year, era.Year)
	default:
		slices.Sort(ids)
		return "", eris.Wrapf(ErrAmbiguous, "code %q of %d in era %d matches %v", code, year, era.Year, ids)
	}
}

func resolution(years map[int]string) Resolution {
	var first string
	stable := true
	for _, y := range slices.Sorted(maps.Keys(years)) {
		if first == "" {
			first = years[y]
		} else if years[y] != first {
			stable = false
		}
	}
	if stable {
		return Resolution{Code: first}
	}
	return Resolution{ByYear: maps.Clone(years)}
}
