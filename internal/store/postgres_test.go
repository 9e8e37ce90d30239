package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gdivir/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS regions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRegions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM regions WHERE dataset = \$1 AND year = \$2`).
		WithArgs("geographical_divisions", 1395).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"regions"}, regionCopyColumns).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := s.SaveRegions(context.Background(), model.DatasetGeographicalDivisions, 1395, []model.Region{
		{Year: 1395, ProvinceID: "03", Type: model.RegionTypeProvince},
		{Year: 1395, ProvinceID: "01", Type: model.RegionTypeProvince},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRegions_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM regions`).
		WithArgs("census_results", 1385).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"regions"}, regionCopyColumns).
		WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err := s.SaveRegions(context.Background(), model.DatasetCensusResults, 1385, []model.Region{
		{Year: 1385, ProvinceID: "01", Type: model.RegionTypeProvince},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save census_results 1385")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Regions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{
		"year", "province_id", "province_name", "county_id", "county_name",
		"district_id", "district_name", "rural_district_or_city_id", "rural_district_or_city_name",
		"village_id", "village_name", "region_type", "household_count", "population",
	}
	mock.ExpectQuery(`FROM regions WHERE dataset = \$1 AND year = ANY\(\$2\) AND region_type = ANY\(\$3\) ORDER BY year, seq`).
		WithArgs("census_results", []int{1395}, []string{"City"}).
		WillReturnRows(mock.NewRows(cols).
			AddRow(1395, "03", "A", "12", "B", "1", "C", "01", "D", "", "", "City", model.Int64(10), model.Int64(40)).
			AddRow(1395, "03", "A", "12", "B", "1", "C", "02", "E", "", "", "City", (*int64)(nil), (*int64)(nil)))

	got, err := s.Regions(context.Background(), RegionFilter{
		Dataset: model.DatasetCensusResults,
		Years:   []int{1395},
		Types:   []model.RegionType{model.RegionTypeCity},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0312101", got[0].ID())
	assert.Equal(t, model.RegionTypeCity, got[0].Type)
	require.NotNil(t, got[0].Population)
	assert.Equal(t, int64(40), *got[0].Population)
	assert.Nil(t, got[1].Population)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Years(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT year FROM regions`).
		WithArgs("geographical_divisions").
		WillReturnRows(mock.NewRows([]string{"year"}).AddRow(1385).AddRow(1395))

	years, err := s.Years(context.Background(), model.DatasetGeographicalDivisions)
	require.NoError(t, err)
	assert.Equal(t, []int{1385, 1395}, years)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveVersionTable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM version_eras WHERE level = \$1 AND parent = \$2`).
		WithArgs("County", "03").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"version_eras"}, []string{"level", "parent", "era_year", "region_id", "name"}).
		WillReturnResult(1)
	mock.ExpectCommit()

	err := s.SaveVersionTable(context.Background(), VersionKey{Level: model.LevelCounty, Parent: "03"},
		[]VersionEntry{{EraYear: 1385, RegionID: "0312", Name: "Tabriz"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadVersionTable_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT era_year, region_id, name FROM version_eras`).
		WithArgs("Province", "").
		WillReturnRows(mock.NewRows([]string{"era_year", "region_id", "name"}))

	_, err := s.LoadVersionTable(context.Background(), VersionKey{Level: model.LevelProvince})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordImport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO imports`).
		WithArgs("imp-1", "census_results", 1395, "census_1395.xlsx", int64(12), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordImport(context.Background(), ImportRecord{
		ID: "imp-1", Dataset: model.DatasetCensusResults, Year: 1395,
		Source: "census_1395.xlsx", Rows: 12, ImportedAt: at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListImports(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, dataset, year, source, rows, imported_at FROM imports WHERE dataset = \$1`).
		WithArgs("census_results").
		WillReturnRows(mock.NewRows([]string{"id", "dataset", "year", "source", "rows", "imported_at"}).
			AddRow("imp-1", "census_results", 1395, "census_1395.xlsx", int64(12), at))

	recs, err := s.ListImports(context.Background(), model.DatasetCensusResults)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.DatasetCensusResults, recs[0].Dataset)
	assert.Equal(t, int64(12), recs[0].Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
