package store

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gdivir/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS regions (
	dataset                     TEXT    NOT NULL,
	year                        INTEGER NOT NULL,
	seq                         INTEGER NOT NULL,
	province_id                 TEXT    NOT NULL DEFAULT '',
	province_name               TEXT    NOT NULL DEFAULT '',
	county_id                   TEXT    NOT NULL DEFAULT '',
	county_name                 TEXT    NOT NULL DEFAULT '',
	district_id                 TEXT    NOT NULL DEFAULT '',
	district_name               TEXT    NOT NULL DEFAULT '',
	rural_district_or_city_id   TEXT    NOT NULL DEFAULT '',
	rural_district_or_city_name TEXT    NOT NULL DEFAULT '',
	village_id                  TEXT    NOT NULL DEFAULT '',
	village_name                TEXT    NOT NULL DEFAULT '',
	region_type                 TEXT    NOT NULL,
	household_count             INTEGER,
	population                  INTEGER,
	PRIMARY KEY (dataset, year, seq)
);

CREATE TABLE IF NOT EXISTS version_eras (
	level     TEXT    NOT NULL,
	parent    TEXT    NOT NULL DEFAULT '',
	era_year  INTEGER NOT NULL,
	region_id TEXT    NOT NULL,
	name      TEXT    NOT NULL,
	PRIMARY KEY (level, parent, era_year, region_id)
);

CREATE TABLE IF NOT EXISTS imports (
	id          TEXT PRIMARY KEY,
	dataset     TEXT    NOT NULL,
	year        INTEGER NOT NULL,
	source      TEXT    NOT NULL,
	rows        INTEGER NOT NULL,
	imported_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_regions_type ON regions(dataset, region_type, year);
CREATE INDEX IF NOT EXISTS idx_imports_dataset ON imports(dataset);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const regionColumns = `year, province_id, province_name, county_id, county_name,
	district_id, district_name, rural_district_or_city_id, rural_district_or_city_name,
	village_id, village_name, region_type, household_count, population`

func (s *SQLiteStore) SaveRegions(ctx context.Context, dataset model.Dataset, year int, regions []model.Region) (int64, error) {
	rows := slices.Clone(regions)
	sortRegions(rows)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save regions")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM regions WHERE dataset = ? AND year = ?`, string(dataset), year,
	); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear %s %d", dataset, year)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO regions (dataset, seq, `+regionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert region")
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			string(dataset), i, year,
			r.ProvinceID, r.ProvinceName, r.CountyID, r.CountyName,
			r.DistrictID, r.DistrictName, r.RuralDistrictOrCityID, r.RuralDistrictOrCityName,
			r.VillageID, r.VillageName, string(r.Type), r.HouseholdCount, r.Population,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert region %s", r.ID())
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save regions")
	}
	return int64(len(rows)), nil
}

func (s *SQLiteStore) Regions(ctx context.Context, filter RegionFilter) ([]model.Region, error) {
	query := `SELECT ` + regionColumns + ` FROM regions WHERE dataset = ?`
	args := []any{string(filter.Dataset)}

	if len(filter.Years) > 0 {
		query += ` AND year IN (` + placeholders(len(filter.Years)) + `)`
		for _, y := range filter.Years {
			args = append(args, y)
		}
	}
	if len(filter.Types) > 0 {
		query += ` AND region_type IN (` + placeholders(len(filter.Types)) + `)`
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if filter.ProvinceID != "" {
		query += ` AND province_id = ?`
		args = append(args, filter.ProvinceID)
	}
	query += ` ORDER BY year, seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query regions")
	}
	defer rows.Close()

	var out []model.Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate regions")
}

func (s *SQLiteStore) Years(ctx context.Context, dataset model.Dataset) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT year FROM regions WHERE dataset = ? ORDER BY year`, string(dataset))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query years")
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan year")
		}
		years = append(years, y)
	}
	return years, eris.Wrap(rows.Err(), "sqlite: iterate years")
}

func (s *SQLiteStore) SaveVersionTable(ctx context.Context, key VersionKey, entries []VersionEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save versions")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM version_eras WHERE level = ? AND parent = ?`, key.Level.String(), key.Parent,
	); err != nil {
		return eris.Wrap(err, "sqlite: clear version table")
	}
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO version_eras (level, parent, era_year, region_id, name) VALUES (?, ?, ?, ?, ?)`,
			key.Level.String(), key.Parent, e.EraYear, e.RegionID, e.Name,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert version entry %d/%s", e.EraYear, e.RegionID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save versions")
}

func (s *SQLiteStore) LoadVersionTable(ctx context.Context, key VersionKey) ([]VersionEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT era_year, region_id, name FROM version_eras
		 WHERE level = ? AND parent = ? ORDER BY era_year, region_id`,
		key.Level.String(), key.Parent,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query version table")
	}
	defer rows.Close()

	var out []VersionEntry
	for rows.Next() {
		var e VersionEntry
		if err := rows.Scan(&e.EraYear, &e.RegionID, &e.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version entry")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate version table")
	}
	if len(out) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: version table %s %q", key.Level, key.Parent)
	}
	return out, nil
}

func (s *SQLiteStore) RecordImport(ctx context.Context, rec ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imports (id, dataset, year, source, rows, imported_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Dataset), rec.Year, rec.Source, rec.Rows, rec.ImportedAt,
	)
	return eris.Wrap(err, "sqlite: record import")
}

func (s *SQLiteStore) ListImports(ctx context.Context, dataset model.Dataset) ([]ImportRecord, error) {
	query := `SELECT id, dataset, year, source, rows, imported_at FROM imports`
	var args []any
	if dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, string(dataset))
	}
	query += ` ORDER BY imported_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list imports")
	}
	defer rows.Close()

	var out []ImportRecord
	for rows.Next() {
		var rec ImportRecord
		var ds string
		if err := rows.Scan(&rec.ID, &ds, &rec.Year, &rec.Source, &rec.Rows, &rec.ImportedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan import")
		}
		rec.Dataset = model.Dataset(ds)
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate imports")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRegion(row scannable) (model.Region, error) {
	var (
		r          model.Region
		regionType string
		households sql.NullInt64
		population sql.NullInt64
	)
	err := row.Scan(
		&r.Year, &r.ProvinceID, &r.ProvinceName, &r.CountyID, &r.CountyName,
		&r.DistrictID, &r.DistrictName, &r.RuralDistrictOrCityID, &r.RuralDistrictOrCityName,
		&r.VillageID, &r.VillageName, &regionType, &households, &population,
	)
	if err != nil {
		return model.Region{}, err
	}
	r.Type = model.RegionType(regionType)
	if households.Valid {
		r.HouseholdCount = model.Int64(households.Int64)
	}
	if population.Valid {
		r.Population = model.Int64(population.Int64)
	}
	return r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
