package matchmaker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/store"
)

func village(p, c, d, rd, id string) model.Region {
	return model.Region{ProvinceID: p, CountyID: c, DistrictID: d, RuralDistrictOrCityID: rd,
		VillageID: id, Type: model.RegionTypeRegularVillage}
}

func city(p, c, d, id string) model.Region {
	return model.Region{ProvinceID: p, CountyID: c, DistrictID: d, RuralDistrictOrCityID: id,
		Type: model.RegionTypeCity}
}

func counted(r model.Region, households, population int64) model.Region {
	r.HouseholdCount = model.Int64(households)
	r.Population = model.Int64(population)
	return r
}

func county(p, c string) model.Region {
	return model.Region{ProvinceID: p, CountyID: c, Type: model.RegionTypeCounty}
}

func province(p string) model.Region {
	return model.Region{ProvinceID: p, Type: model.RegionTypeProvince}
}

type fixture struct {
	store     *store.MemoryStore
	divisions *metadata.Timeline
	census    *metadata.Timeline
}

func newFixture(t *testing.T, divisions, census map[int][]model.Region) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: store.NewMemory()}

	var divYears, censusYears []int
	for y, rows := range divisions {
		_, err := f.store.SaveRegions(ctx, model.DatasetGeographicalDivisions, y, rows)
		require.NoError(t, err)
		divYears = append(divYears, y)
	}
	for y, rows := range census {
		_, err := f.store.SaveRegions(ctx, model.DatasetCensusResults, y, rows)
		require.NoError(t, err)
		censusYears = append(censusYears, y)
	}
	f.divisions = metadata.NewTimeline(model.DatasetGeographicalDivisions, divYears)
	f.census = metadata.NewTimeline(model.DatasetCensusResults, censusYears)
	return f
}

func (f *fixture) matcher() *Matcher {
	return NewMatcher(NewExtractor(f.store, f.census), f.divisions)
}

// splitFixture has county 0312 split into 0312 and 0313 between 1385 and
// 1390, each new county keeping two of the four villages.
func splitFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixture(t,
		map[int][]model.Region{
			1385: {
				province("03"), county("03", "12"),
				village("03", "12", "1", "01", "001"),
				village("03", "12", "1", "01", "002"),
				village("03", "12", "1", "02", "003"),
				village("03", "12", "1", "02", "004"),
			},
			1390: {
				province("03"), county("03", "12"), county("03", "13"),
				village("03", "12", "1", "01", "001"),
				village("03", "12", "1", "01", "002"),
				village("03", "13", "1", "01", "003"),
				village("03", "13", "1", "01", "004"),
			},
		},
		map[int][]model.Region{
			1390: {
				counted(village("03", "12", "1", "01", "001"), 5, 20),
				counted(village("03", "12", "1", "01", "002"), 2, 5),
				counted(village("03", "13", "1", "01", "003"), 3, 10),
				counted(village("03", "13", "1", "01", "004"), 4, 15),
			},
		},
	)
}

func TestExtractor_Villages(t *testing.T) {
	f := newFixture(t,
		map[int][]model.Region{
			1390: {
				village("03", "12", "1", "01", "001"),
				village("03", "12", "1", "02", "001"),
				village("03", "12", "1", "01", "002"),
				{ProvinceID: "03", CountyID: "12", DistrictID: "1", RuralDistrictOrCityID: "01",
					VillageID: "003", Type: model.RegionTypeBlockVillage},
				city("03", "12", "1", "51"),
			},
		},
		map[int][]model.Region{
			1385: {counted(village("03", "12", "1", "01", "001"), 1, 1)},
			1395: {
				counted(village("03", "12", "1", "01", "001"), 10, 40),
				{VillageID: "002", Type: model.RegionTypeRegularVillage, Population: model.Int64(7)},
			},
		},
	)

	units, err := NewExtractor(f.store, f.census).Villages(context.Background(), 1390)
	require.NoError(t, err)
	require.Len(t, units, 3)

	assert.Equal(t, "001", units[0].Key)
	assert.Equal(t, "0312", units[0].Code(model.LevelCounty))
	assert.Equal(t, "0312101", units[0].Code(model.LevelRuralDistrict))
	require.NotNil(t, units[0].Population)
	assert.Equal(t, int64(40), *units[0].Population, "nearest census, later preferred")

	assert.Equal(t, "002", units[1].Key)
	assert.Nil(t, units[1].Population, "census village without households is ignored")

	assert.Equal(t, "003", units[2].Key)
	assert.Nil(t, units[2].Population)
}

func TestExtractor_Cities(t *testing.T) {
	f := newFixture(t,
		map[int][]model.Region{1390: {city("03", "12", "1", "51"), city("03", "12", "2", "52")}},
		map[int][]model.Region{1390: {counted(city("03", "12", "1", "51"), 100, 400)}},
	)

	units, err := NewExtractor(f.store, f.census).Cities(context.Background(), 1390)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, UnitCity, units[0].Kind)
	assert.Equal(t, int64(400), units[0].population())
	assert.Equal(t, int64(100), units[0].households())
	assert.Equal(t, int64(0), units[1].population())
}

func TestExtractor_DuplicateKeys(t *testing.T) {
	tests := []struct {
		name      string
		divisions []model.Region
		census    []model.Region
	}{
		{
			name:      "duplicate city in divisions",
			divisions: []model.Region{city("03", "12", "1", "51"), city("03", "13", "1", "51")},
		},
		{
			name:      "duplicate city in census",
			divisions: []model.Region{city("03", "12", "1", "51")},
			census:    []model.Region{counted(city("03", "12", "1", "51"), 1, 2), counted(city("03", "12", "2", "51"), 1, 2)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t,
				map[int][]model.Region{1390: tt.divisions},
				map[int][]model.Region{1390: tt.census},
			)
			_, err := NewExtractor(f.store, f.census).Cities(context.Background(), 1390)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDuplicateKey))
		})
	}
}

func TestUnitKind(t *testing.T) {
	assert.Equal(t, "village", UnitVillage.String())
	assert.Equal(t, "city", UnitCity.String())
	assert.Equal(t, "unknown", UnitKind(0).String())

	_, err := UnitKind(9).regionTypes()
	assert.Error(t, err)
}
