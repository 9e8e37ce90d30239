package store

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gdivir/internal/db"
	"github.com/sells-group/gdivir/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS regions (
	dataset                     TEXT     NOT NULL,
	year                        INTEGER  NOT NULL,
	seq                         INTEGER  NOT NULL,
	province_id                 TEXT     NOT NULL DEFAULT '',
	province_name               TEXT     NOT NULL DEFAULT '',
	county_id                   TEXT     NOT NULL DEFAULT '',
	county_name                 TEXT     NOT NULL DEFAULT '',
	district_id                 TEXT     NOT NULL DEFAULT '',
	district_name               TEXT     NOT NULL DEFAULT '',
	rural_district_or_city_id   TEXT     NOT NULL DEFAULT '',
	rural_district_or_city_name TEXT     NOT NULL DEFAULT '',
	village_id                  TEXT     NOT NULL DEFAULT '',
	village_name                TEXT     NOT NULL DEFAULT '',
	region_type                 TEXT     NOT NULL,
	household_count             BIGINT,
	population                  BIGINT,
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
	dataset     TEXT        NOT NULL,
	year        INTEGER     NOT NULL,
	source      TEXT        NOT NULL,
	rows        BIGINT      NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_regions_type ON regions(dataset, region_type, year);
CREATE INDEX IF NOT EXISTS idx_imports_dataset ON imports(dataset);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var regionCopyColumns = []string{
	"dataset", "seq", "year", "province_id", "province_name", "county_id", "county_name",
	"district_id", "district_name", "rural_district_or_city_id", "rural_district_or_city_name",
	"village_id", "village_name", "region_type", "household_count", "population",
}

func (s *PostgresStore) SaveRegions(ctx context.Context, dataset model.Dataset, year int, regions []model.Region) (int64, error) {
	sorted := slices.Clone(regions)
	sortRegions(sorted)

	rows := make([][]any, len(sorted))
	for i, r := range sorted {
		rows[i] = []any{
			string(dataset), i, year,
			r.ProvinceID, r.ProvinceName, r.CountyID, r.CountyName,
			r.DistrictID, r.DistrictName, r.RuralDistrictOrCityID, r.RuralDistrictOrCityName,
			r.VillageID, r.VillageName, string(r.Type), r.HouseholdCount, r.Population,
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin save regions")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM regions WHERE dataset = $1 AND year = $2`, string(dataset), year,
	); err != nil {
		return 0, eris.Wrapf(err, "postgres: clear %s %d", dataset, year)
	}

	n, err := db.CopyFrom(ctx, tx, "regions", regionCopyColumns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save %s %d", dataset, year)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit save regions")
	}
	return n, nil
}

func (s *PostgresStore) Regions(ctx context.Context, filter RegionFilter) ([]model.Region, error) {
	query := `SELECT year, province_id, province_name, county_id, county_name,
		district_id, district_name, rural_district_or_city_id, rural_district_or_city_name,
		village_id, village_name, region_type, household_count, population
		FROM regions WHERE dataset = $1`
	args := []any{string(filter.Dataset)}

	if len(filter.Years) > 0 {
		args = append(args, filter.Years)
		query += ` AND year = ANY($2)`
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		query += ` AND region_type = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	if filter.ProvinceID != "" {
		args = append(args, filter.ProvinceID)
		query += ` AND province_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY year, seq`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query regions")
	}
	defer rows.Close()

	var out []model.Region
	for rows.Next() {
		var (
			r          model.Region
			regionType string
		)
		if err := rows.Scan(
			&r.Year, &r.ProvinceID, &r.ProvinceName, &r.CountyID, &r.CountyName,
			&r.DistrictID, &r.DistrictName, &r.RuralDistrictOrCityID, &r.RuralDistrictOrCityName,
			&r.VillageID, &r.VillageName, &regionType, &r.HouseholdCount, &r.Population,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region")
		}
		r.Type = model.RegionType(regionType)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate regions")
}

func (s *PostgresStore) Years(ctx context.Context, dataset model.Dataset) ([]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT year FROM regions WHERE dataset = $1 ORDER BY year`, string(dataset))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query years")
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, eris.Wrap(err, "postgres: scan year")
		}
		years = append(years, y)
	}
	return years, eris.Wrap(rows.Err(), "postgres: iterate years")
}

func (s *PostgresStore) SaveVersionTable(ctx context.Context, key VersionKey, entries []VersionEntry) error {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{key.Level.String(), key.Parent, e.EraYear, e.RegionID, e.Name}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save versions")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM version_eras WHERE level = $1 AND parent = $2`, key.Level.String(), key.Parent,
	); err != nil {
		return eris.Wrap(err, "postgres: clear version table")
	}
	if _, err := db.CopyFrom(ctx, tx, "version_eras",
		[]string{"level", "parent", "era_year", "region_id", "name"}, rows,
	); err != nil {
		return eris.Wrap(err, "postgres: save version table")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save versions")
}

func (s *PostgresStore) LoadVersionTable(ctx context.Context, key VersionKey) ([]VersionEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT era_year, region_id, name FROM version_eras
		 WHERE level = $1 AND parent = $2 ORDER BY era_year, region_id`,
		key.Level.String(), key.Parent,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query version table")
	}
	defer rows.Close()

	var out []VersionEntry
	for rows.Next() {
		var e VersionEntry
		if err := rows.Scan(&e.EraYear, &e.RegionID, &e.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan version entry")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate version table")
	}
	if len(out) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "postgres: version table %s %q", key.Level, key.Parent)
	}
	return out, nil
}

func (s *PostgresStore) RecordImport(ctx context.Context, rec ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO imports (id, dataset, year, source, rows, imported_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, string(rec.Dataset), rec.Year, rec.Source, rec.Rows, rec.ImportedAt,
	)
	return eris.Wrap(err, "postgres: record import")
}

func (s *PostgresStore) ListImports(ctx context.Context, dataset model.Dataset) ([]ImportRecord, error) {
	query := `SELECT id, dataset, year, source, rows, imported_at FROM imports`
	var args []any
	if dataset != "" {
		query += ` WHERE dataset = $1`
		args = append(args, string(dataset))
	}
	query += ` ORDER BY imported_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list imports")
	}
	defer rows.Close()

	var out []ImportRecord
	for rows.Next() {
		var rec ImportRecord
		var ds string
		if err := rows.Scan(&rec.ID, &ds, &rec.Year, &rec.Source, &rec.Rows, &rec.ImportedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan import")
		}
		rec.Dataset = model.Dataset(ds)
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate imports")
}
