package matchmaker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
)

func unit(kind UnitKind, key, p, c string, pop int64) Unit {
	return Unit{Kind: kind, Key: key, ProvinceID: p, CountyID: c, DistrictID: "1", RuralDistrict: "01",
		Population: model.Int64(pop), HouseholdCount: model.Int64(pop / 4)}
}

func TestMatcher_TransformationTable_Split(t *testing.T) {
	f := splitFixture(t)

	table, err := f.matcher().TransformationTable(context.Background(), 1390, model.LevelCounty)
	require.NoError(t, err)
	assert.Equal(t, 1385, table.PreviousYear)
	assert.Empty(t, table.Unmatched)
	require.Len(t, table.Rows, 2)

	first, second := table.Rows[0], table.Rows[1]
	assert.Equal(t, "0312", first.NewCode)
	assert.Equal(t, "0312", first.OldCode)
	assert.Equal(t, int64(2), first.SharedRegionCount)
	assert.Equal(t, int64(25), first.SharedPopulation)
	assert.Equal(t, int64(7), first.SharedHouseholdCount)
	assert.Equal(t, int64(2), first.Village.Count)
	assert.Zero(t, first.City.Count)

	assert.Equal(t, "0313", second.NewCode)
	assert.Equal(t, "0312", second.OldCode)
	assert.Equal(t, int64(25), second.SharedPopulation)

	for _, r := range table.Rows {
		assert.InDelta(t, 100.0, r.PopulationShare, 1e-9)
		assert.InDelta(t, 50.0, r.OldPopulationShare, 1e-9)
	}
	assert.Equal(t, []string{"0312", "0313"}, table.NewCodes())
}

func TestMatcher_TransformationTable_FirstYear(t *testing.T) {
	f := splitFixture(t)
	_, err := f.matcher().TransformationTable(context.Background(), 1385, model.LevelCounty)
	require.Error(t, err)
	assert.True(t, errors.Is(err, metadata.ErrYearNotFound))
}

func TestBuildTable_UnmatchedAndConservation(t *testing.T) {
	oldVillages := []Unit{
		unit(UnitVillage, "v1", "03", "12", 10),
		unit(UnitVillage, "v2", "03", "12", 20),
		unit(UnitVillage, "gone", "03", "12", 5),
	}
	newVillages := []Unit{
		unit(UnitVillage, "v1", "03", "12", 12),
		unit(UnitVillage, "v2", "03", "14", 30),
		unit(UnitVillage, "born", "03", "14", 8),
	}
	oldCities := []Unit{unit(UnitCity, "c1", "03", "12", 100)}
	newCities := []Unit{unit(UnitCity, "c1", "03", "14", 90)}

	table, err := BuildTable(1390, 1385, model.LevelCounty, oldVillages, newVillages, oldCities, newCities)
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, "0312", table.Rows[0].NewCode)
	assert.Equal(t, "0314", table.Rows[1].NewCode)
	assert.Equal(t, int64(120), table.Rows[1].SharedPopulation)
	assert.Equal(t, int64(90), table.Rows[1].City.Population)
	assert.Equal(t, int64(30), table.Rows[1].Village.Population)
	assert.Equal(t, int64(2), table.Rows[1].SharedRegionCount)

	require.Len(t, table.Unmatched, 2)
	assert.Equal(t, SideNewOnly, table.Unmatched[0].Side)
	assert.Equal(t, "born", table.Unmatched[0].Key)
	assert.Equal(t, int64(8), table.Unmatched[0].Population)
	assert.Equal(t, SideOldOnly, table.Unmatched[1].Side)
	assert.Equal(t, "gone", table.Unmatched[1].Key)

	// Matched rows plus new-only units account for every new unit.
	var newTotal, accounted int64
	for _, u := range append(newVillages, newCities...) {
		newTotal += u.population()
	}
	for _, r := range table.Rows {
		accounted += r.SharedPopulation
	}
	for _, u := range table.Unmatched {
		if u.Side == SideNewOnly {
			accounted += u.Population
		}
	}
	assert.Equal(t, newTotal, accounted)

	// Shares of one new code sum to 100.
	sums := map[string]float64{}
	for _, r := range table.Rows {
		sums[r.NewCode] += r.PopulationShare
	}
	for code, sum := range sums {
		assert.InDelta(t, 100.0, sum, 1e-9, code)
	}
}

func TestBuildTable_ZeroPopulation(t *testing.T) {
	old := []Unit{{Kind: UnitVillage, Key: "v1", ProvinceID: "03", CountyID: "12"},
		{Kind: UnitVillage, Key: "v2", ProvinceID: "03", CountyID: "13"}}
	cur := []Unit{{Kind: UnitVillage, Key: "v1", ProvinceID: "03", CountyID: "15"},
		{Kind: UnitVillage, Key: "v2", ProvinceID: "03", CountyID: "15"}}

	table, err := BuildTable(1390, 1385, model.LevelCounty, old, cur, nil, nil)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	for _, r := range table.Rows {
		assert.True(t, r.ZeroPopulation)
		assert.Zero(t, r.PopulationShare)
		assert.Equal(t, int64(1), r.SharedRegionCount)
	}
}

func TestBuildTable_DuplicateKey(t *testing.T) {
	dup := []Unit{unit(UnitCity, "c1", "03", "12", 1), unit(UnitCity, "c1", "03", "13", 1)}
	_, err := BuildTable(1390, 1385, model.LevelProvince, nil, nil, dup, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey))
}

func TestSide_String(t *testing.T) {
	assert.Equal(t, "new_only", SideNewOnly.String())
	assert.Equal(t, "old_only", SideOldOnly.String())
	assert.Equal(t, "unknown", Side(0).String())
}
