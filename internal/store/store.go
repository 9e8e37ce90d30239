// Package store persists cleaned survey snapshots, derived version-era
// tables and the import log.
package store

import (
	"context"
	"slices"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gdivir/internal/model"
)

// ErrNotFound is returned when a requested snapshot or table is absent.
var ErrNotFound = eris.New("store: not found")

// RegionFilter selects snapshot rows. Dataset is required; empty Years or
// Types mean all.
type RegionFilter struct {
	Dataset    model.Dataset      `json:"dataset"`
	Years      []int              `json:"years,omitempty"`
	Types      []model.RegionType `json:"types,omitempty"`
	ProvinceID string             `json:"province_id,omitempty"`
}

// Matches reports whether r satisfies the year, type and province parts
// of the filter.
func (f RegionFilter) Matches(r model.Region) bool {
	if len(f.Years) > 0 && !slices.Contains(f.Years, r.Year) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, r.Type) {
		return false
	}
	if f.ProvinceID != "" && r.ProvinceID != f.ProvinceID {
		return false
	}
	return true
}

// VersionKey identifies one version-era table: provinces have an empty
// Parent, counties are tracked per province code.
type VersionKey struct {
	Level  model.Level `json:"level"`
	Parent string      `json:"parent,omitempty"`
}

// VersionEntry is one cell of a version-era table: the raw name an ID
// carried in the era starting at EraYear.
type VersionEntry struct {
	EraYear  int    `json:"era_year"`
	RegionID string `json:"region_id"`
	Name     string `json:"name"`
}

// ImportRecord logs one snapshot import.
type ImportRecord struct {
	ID         string        `json:"id"`
	Dataset    model.Dataset `json:"dataset"`
	Year       int           `json:"year"`
	Source     string        `json:"source"`
	Rows       int64         `json:"rows"`
	ImportedAt time.Time     `json:"imported_at"`
}

// SnapshotReader is the read side used by the matchmaker and version
// tracker.
type SnapshotReader interface {
	// Regions returns the rows matching filter ordered by year then ID.
	Regions(ctx context.Context, filter RegionFilter) ([]model.Region, error)
	// Years returns the ascending years stored for a dataset.
	Years(ctx context.Context, dataset model.Dataset) ([]int, error)
}

// VersionStore persists version-era tables.
type VersionStore interface {
	SaveVersionTable(ctx context.Context, key VersionKey, entries []VersionEntry) error
	LoadVersionTable(ctx context.Context, key VersionKey) ([]VersionEntry, error)
}

// Store defines the full persistence interface.
type Store interface {
	SnapshotReader
	VersionStore

	// SaveRegions replaces the snapshot of dataset for year.
	SaveRegions(ctx context.Context, dataset model.Dataset, year int, regions []model.Region) (int64, error)

	// Import log
	RecordImport(ctx context.Context, rec ImportRecord) error
	ListImports(ctx context.Context, dataset model.Dataset) ([]ImportRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// sortVersionEntries orders entries by era year then region ID.
func sortVersionEntries(entries []VersionEntry) {
	slices.SortFunc(entries, func(a, b VersionEntry) int {
		if a.EraYear != b.EraYear {
			return a.EraYear - b.EraYear
		}
		switch {
		case a.RegionID < b.RegionID:
			return -1
		case a.RegionID > b.RegionID:
			return 1
		}
		return 0
	})
}

// sortRegions orders regions by year then concatenated ID.
func sortRegions(regions []model.Region) {
	slices.SortStableFunc(regions, func(a, b model.Region) int {
		if a.Year != b.Year {
			return a.Year - b.Year
		}
		ai, bi := a.ID(), b.ID()
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	})
}
