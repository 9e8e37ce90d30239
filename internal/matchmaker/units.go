// Package matchmaker measures how administrative regions transform between
// successive division surveys and resolves predecessor mappings and
// external coding schemes from those measurements.
package matchmaker

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/store"
)

// ErrDuplicateKey is returned when a stable key occurs more than once on a
// side of a join that must be one-to-one.
var ErrDuplicateKey = eris.New("matchmaker: duplicate stable key")

// UnitKind selects the base units a transformation is measured with.
type UnitKind int

const (
	UnitVillage UnitKind = iota + 1
	UnitCity
)

// AllUnitKinds returns the unit kinds in merge order.
func AllUnitKinds() []UnitKind {
	return []UnitKind{UnitCity, UnitVillage}
}

func (k UnitKind) String() string {
	switch k {
	case UnitVillage:
		return "village"
	case UnitCity:
		return "city"
	default:
		return "unknown"
	}
}

func (k UnitKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// regionTypes returns the snapshot region types a unit kind is drawn from.
func (k UnitKind) regionTypes() ([]model.RegionType, error) {
	switch k {
	case UnitVillage:
		return []model.RegionType{model.RegionTypeRegularVillage, model.RegionTypeBlockVillage}, nil
	case UnitCity:
		return []model.RegionType{model.RegionTypeCity}, nil
	default:
		return nil, eris.Errorf("matchmaker: unknown unit kind %d", k)
	}
}

// key returns the stable identifier of r as a unit of this kind.
func (k UnitKind) key(r model.Region) string {
	if k == UnitCity {
		return r.RuralDistrictOrCityID
	}
	return r.VillageID
}

// Unit is a village or city with the ancestor codes it had in Year and
// the population of the nearest census.
type Unit struct {
	Kind           UnitKind
	Key            string
	Year           int
	ProvinceID     string
	CountyID       string
	DistrictID     string
	RuralDistrict  string
	Population     *int64
	HouseholdCount *int64
}

// Code returns the unit's ancestor code at level.
func (u Unit) Code(level model.Level) string {
	return level.Code(u.ProvinceID, u.CountyID, u.DistrictID, u.RuralDistrict)
}

func (u Unit) population() int64 {
	if u.Population == nil {
		return 0
	}
	return *u.Population
}

func (u Unit) households() int64 {
	if u.HouseholdCount == nil {
		return 0
	}
	return *u.HouseholdCount
}

// Extractor derives village and city unit tables from stored snapshots.
type Extractor struct {
	snapshots store.SnapshotReader
	census    *metadata.Timeline
	log       *zap.Logger
}

// NewExtractor creates an Extractor joining populations from the census
// years of census.
func NewExtractor(snapshots store.SnapshotReader, census *metadata.Timeline) *Extractor {
	return &Extractor{
		snapshots: snapshots,
		census:    census,
		log:       zap.L().With(zap.String("component", "matchmaker.extract")),
	}
}

// Villages returns the regular and block villages of the division survey
// of year, one per village ID, with census populations attached.
func (e *Extractor) Villages(ctx context.Context, year int) ([]Unit, error) {
	return e.Units(ctx, UnitVillage, year)
}

// Cities returns the cities of the division survey of year with census
// populations attached.
func (e *Extractor) Cities(ctx context.Context, year int) ([]Unit, error) {
	return e.Units(ctx, UnitCity, year)
}

// Units returns the units of kind in the division survey of year. The
// population of each unit comes from the census nearest to year, later
// census preferred on ties; units absent from that census keep a nil
// population.
func (e *Extractor) Units(ctx context.Context, kind UnitKind, year int) ([]Unit, error) {
	types, err := kind.regionTypes()
	if err != nil {
		return nil, err
	}

	regions, err := e.snapshots.Regions(ctx, store.RegionFilter{
		Dataset: model.DatasetGeographicalDivisions,
		Years:   []int{year},
		Types:   types,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "matchmaker: load %s divisions %d", kind, year)
	}

	units, err := buildUnits(kind, year, regions)
	if err != nil {
		return nil, err
	}

	censusYear, err := e.census.Nearest(year, true)
	if err != nil {
		return nil, eris.Wrapf(err, "matchmaker: census for %d", year)
	}
	census, err := e.snapshots.Regions(ctx, store.RegionFilter{
		Dataset: model.DatasetCensusResults,
		Years:   []int{censusYear},
		Types:   types,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "matchmaker: load %s census %d", kind, censusYear)
	}

	matched, err := attachPopulation(kind, units, census)
	if err != nil {
		return nil, eris.Wrapf(err, "matchmaker: join census %d onto %s units of %d", censusYear, kind, year)
	}

	e.log.Debug("units extracted",
		zap.Stringer("kind", kind),
		zap.Int("year", year),
		zap.Int("census_year", censusYear),
		zap.Int("units", len(units)),
		zap.Int("with_population", matched),
	)
	return units, nil
}

// buildUnits projects snapshot rows onto units. Villages are deduplicated
// by ID keeping the first row; a repeated city ID is an error. Rows
// without a stable key are skipped.
func buildUnits(kind UnitKind, year int, regions []model.Region) ([]Unit, error) {
	seen := make(map[string]bool, len(regions))
	units := make([]Unit, 0, len(regions))
	for _, r := range regions {
		key := kind.key(r)
		if key == "" {
			continue
		}
		if seen[key] {
			if kind == UnitVillage {
				continue
			}
			return nil, eris.Wrapf(ErrDuplicateKey, "%s %q in divisions %d", kind, key, year)
		}
		seen[key] = true
		units = append(units, Unit{
			Kind:          kind,
			Key:           key,
			Year:          year,
			ProvinceID:    r.ProvinceID,
			CountyID:      r.CountyID,
			DistrictID:    r.DistrictID,
			RuralDistrict: r.RuralDistrictOrCityID,
		})
	}
	return units, nil
}

// attachPopulation joins census counts onto units by stable key and
// returns how many units matched. Census villages lacking either count
// are ignored before the join.
func attachPopulation(kind UnitKind, units []Unit, census []model.Region) (int, error) {
	type counts struct{ population, households *int64 }
	byKey := make(map[string]counts, len(census))
	for _, r := range census {
		key := kind.key(r)
		if key == "" {
			continue
		}
		if kind == UnitVillage && (r.Population == nil || r.HouseholdCount == nil) {
			continue
		}
		if _, dup := byKey[key]; dup {
			return 0, eris.Wrapf(ErrDuplicateKey, "%s %q in census %d", kind, key, r.Year)
		}
		byKey[key] = counts{population: r.Population, households: r.HouseholdCount}
	}

	matched := 0
	for i := range units {
		c, ok := byKey[units[i].Key]
		if !ok {
			continue
		}
		units[i].Population = c.population
		units[i].HouseholdCount = c.households
		matched++
	}
	return matched, nil
}
