package matchmaker

import (
	"context"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
)

// Contribution is what one unit kind contributes to a transformation row.
type Contribution struct {
	Count      int64 `json:"count"`
	Population int64 `json:"population"`
	Households int64 `json:"households"`
}

func (c *Contribution) add(u Unit) {
	c.Count++
	c.Population += u.population()
	c.Households += u.households()
}

// TransformationRow measures the units that belonged to OldCode in the
// previous survey and belong to NewCode in the current one. Population
// and household figures are those of the current year's units.
// PopulationShare is the row's percentage of NewCode's matched
// population, OldPopulationShare its percentage of what OldCode passed on.
type TransformationRow struct {
	NewCode              string       `json:"new_code"`
	OldCode              string       `json:"old_code"`
	SharedRegionCount    int64        `json:"shared_region_count"`
	SharedPopulation     int64        `json:"shared_population"`
	SharedHouseholdCount int64        `json:"shared_household_count"`
	City                 Contribution `json:"city"`
	Village              Contribution `json:"village"`
	PopulationShare      float64      `json:"population_share"`
	// OldPopulationShare is the per-old-region split figure: 50 for each
	// half of a region divided evenly between two new codes.
	OldPopulationShare float64 `json:"old_population_share"`
	ZeroPopulation     bool    `json:"zero_population,omitempty"`
}

// Side tells which survey an unmatched unit was found in.
type Side int

const (
	SideNewOnly Side = iota + 1
	SideOldOnly
)

func (s Side) String() string {
	switch s {
	case SideNewOnly:
		return "new_only"
	case SideOldOnly:
		return "old_only"
	default:
		return "unknown"
	}
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmatchedRow is a unit present in only one of the two surveys. It takes
// no part in shares or mappings.
type UnmatchedRow struct {
	Side           Side     `json:"side"`
	Kind           UnitKind `json:"kind"`
	Key            string   `json:"key"`
	Code           string   `json:"code"`
	Population     int64    `json:"population"`
	HouseholdCount int64    `json:"household_count"`
}

// Table is the transformation table between PreviousYear and Year at Level.
type Table struct {
	Year         int                 `json:"year"`
	PreviousYear int                 `json:"previous_year"`
	Level        model.Level         `json:"level"`
	Rows         []TransformationRow `json:"rows"`
	Unmatched    []UnmatchedRow      `json:"unmatched"`
}

// NewCodes returns the distinct new codes in ascending order.
func (t *Table) NewCodes() []string {
	var codes []string
	for _, r := range t.Rows {
		if len(codes) == 0 || codes[len(codes)-1] != r.NewCode {
			codes = append(codes, r.NewCode)
		}
	}
	return codes
}

// Matcher builds transformation tables from stored snapshots.
type Matcher struct {
	extractor *Extractor
	divisions *metadata.Timeline
	log       *zap.Logger
}

// NewMatcher creates a Matcher over the division survey years of divisions.
func NewMatcher(extractor *Extractor, divisions *metadata.Timeline) *Matcher {
	return &Matcher{
		extractor: extractor,
		divisions: divisions,
		log:       zap.L().With(zap.String("component", "matchmaker")),
	}
}

// Divisions returns the division survey timeline.
func (m *Matcher) Divisions() *metadata.Timeline { return m.divisions }

// TransformationTable measures how regions at level changed between the
// division survey preceding year and year.
func (m *Matcher) TransformationTable(ctx context.Context, year int, level model.Level) (*Table, error) {
	prev, err := m.divisions.Previous(year)
	if err != nil {
		return nil, eris.Wrapf(err, "matchmaker: transformation table %d", year)
	}

	units := make(map[UnitKind][2][]Unit, 2)
	for _, kind := range AllUnitKinds() {
		old, err := m.extractor.Units(ctx, kind, prev)
		if err != nil {
			return nil, err
		}
		cur, err := m.extractor.Units(ctx, kind, year)
		if err != nil {
			return nil, err
		}
		units[kind] = [2][]Unit{old, cur}
	}

	t, err := BuildTable(year, prev, level, units[UnitVillage][0], units[UnitVillage][1], units[UnitCity][0], units[UnitCity][1])
	if err != nil {
		return nil, err
	}

	var zero []string
	for _, r := range t.Rows {
		if r.ZeroPopulation && (len(zero) == 0 || zero[len(zero)-1] != r.NewCode) {
			zero = append(zero, r.NewCode)
		}
	}
	if len(zero) > 0 {
		m.log.Warn("regions without matched population, shares set to 0",
			zap.Int("year", year),
			zap.Stringer("level", level),
			zap.Strings("new_codes", zero),
		)
	}
	m.log.Debug("transformation table built",
		zap.Int("year", year),
		zap.Int("previous_year", prev),
		zap.Stringer("level", level),
		zap.Int("rows", len(t.Rows)),
		zap.Int("unmatched", len(t.Unmatched)),
	)
	return t, nil
}

type codePair struct{ newCode, oldCode string }

// BuildTable joins the previous and current unit tables of both kinds on
// their stable keys and aggregates the matched units per (new, old) code
// pair at level. Units found on one side only are kept as zero-filled
// unmatched rows. Rows are ordered by new code then old code.
func BuildTable(year, prev int, level model.Level, oldVillages, newVillages, oldCities, newCities []Unit) (*Table, error) {
	t := &Table{Year: year, PreviousYear: prev, Level: level}
	rows := make(map[codePair]*TransformationRow)

	join := func(kind UnitKind, old, cur []Unit) error {
		oldByKey := make(map[string]Unit, len(old))
		for _, u := range old {
			if _, dup := oldByKey[u.Key]; dup {
				return eris.Wrapf(ErrDuplicateKey, "%s %q in %d", kind, u.Key, prev)
			}
			oldByKey[u.Key] = u
		}

		seen := make(map[string]bool, len(cur))
		for _, u := range cur {
			if seen[u.Key] {
				return eris.Wrapf(ErrDuplicateKey, "%s %q in %d", kind, u.Key, year)
			}
			seen[u.Key] = true

			o, ok := oldByKey[u.Key]
			if !ok {
				t.Unmatched = append(t.Unmatched, UnmatchedRow{
					Side: SideNewOnly, Kind: kind, Key: u.Key, Code: u.Code(level),
					Population: u.population(), HouseholdCount: u.households(),
				})
				continue
			}

			pair := codePair{newCode: u.Code(level), oldCode: o.Code(level)}
			row, ok := rows[pair]
			if !ok {
				row = &TransformationRow{NewCode: pair.newCode, OldCode: pair.oldCode}
				rows[pair] = row
			}
			if kind == UnitCity {
				row.City.add(u)
			} else {
				row.Village.add(u)
			}
		}

		for _, o := range old {
			if !seen[o.Key] {
				t.Unmatched = append(t.Unmatched, UnmatchedRow{
					Side: SideOldOnly, Kind: kind, Key: o.Key, Code: o.Code(level),
					Population: o.population(), HouseholdCount: o.households(),
				})
			}
		}
		return nil
	}

	if err := join(UnitCity, oldCities, newCities); err != nil {
		return nil, err
	}
	if err := join(UnitVillage, oldVillages, newVillages); err != nil {
		return nil, err
	}

	t.Rows = make([]TransformationRow, 0, len(rows))
	for _, r := range rows {
		r.SharedRegionCount = r.City.Count + r.Village.Count
		r.SharedPopulation = r.City.Population + r.Village.Population
		r.SharedHouseholdCount = r.City.Households + r.Village.Households
		t.Rows = append(t.Rows, *r)
	}
	slices.SortFunc(t.Rows, func(a, b TransformationRow) int {
		if c := strings.Compare(a.NewCode, b.NewCode); c != 0 {
			return c
		}
		return strings.Compare(a.OldCode, b.OldCode)
	})
	slices.SortStableFunc(t.Unmatched, func(a, b UnmatchedRow) int {
		if a.Side != b.Side {
			return int(a.Side) - int(b.Side)
		}
		if c := strings.Compare(a.Code, b.Code); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})

	computeShares(t.Rows)
	computeOldShares(t.Rows)
	return t, nil
}

// computeShares sets each row's percentage of its new code's population.
// Rows are grouped by new code. A new code with no population gets share
// 0 on every row and is flagged.
func computeShares(rows []TransformationRow) {
	for start := 0; start < len(rows); {
		end := start
		var total int64
		for end < len(rows) && rows[end].NewCode == rows[start].NewCode {
			total += rows[end].SharedPopulation
			end++
		}
		for i := start; i < end; i++ {
			if total == 0 {
				rows[i].PopulationShare = 0
				rows[i].ZeroPopulation = true
				continue
			}
			rows[i].PopulationShare = float64(rows[i].SharedPopulation) / float64(total) * 100
		}
		start = end
	}
}

func computeOldShares(rows []TransformationRow) {
	totals := make(map[string]int64)
	for _, r := range rows {
		totals[r.OldCode] += r.SharedPopulation
	}
	for i := range rows {
		if total := totals[rows[i].OldCode]; total > 0 {
			rows[i].OldPopulationShare = float64(rows[i].SharedPopulation) / float64(total) * 100
		}
	}
}
