package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/gdivir/internal/model"
)

type snapshotKey struct {
	dataset model.Dataset
	year    int
}

// MemoryStore is an in-process Store used for tests and one-shot runs over
// synthetic data.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[snapshotKey][]model.Region
	versions  map[VersionKey][]VersionEntry
	imports   []ImportRecord
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[snapshotKey][]model.Region),
		versions:  make(map[VersionKey][]VersionEntry),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) SaveRegions(_ context.Context, dataset model.Dataset, year int, regions []model.Region) (int64, error) {
	rows := slices.Clone(regions)
	for i := range rows {
		rows[i].Year = year
	}
	sortRegions(rows)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey{dataset, year}] = rows
	return int64(len(rows)), nil
}

func (s *MemoryStore) Regions(_ context.Context, filter RegionFilter) ([]model.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var years []int
	for k := range s.snapshots {
		if k.dataset == filter.Dataset {
			years = append(years, k.year)
		}
	}
	slices.Sort(years)

	var out []model.Region
	for _, y := range years {
		for _, r := range s.snapshots[snapshotKey{filter.Dataset, y}] {
			if filter.Matches(r) {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Years(_ context.Context, dataset model.Dataset) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var years []int
	for k := range s.snapshots {
		if k.dataset == dataset {
			years = append(years, k.year)
		}
	}
	slices.Sort(years)
	return years, nil
}

func (s *MemoryStore) SaveVersionTable(_ context.Context, key VersionKey, entries []VersionEntry) error {
	rows := slices.Clone(entries)
	sortVersionEntries(rows)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[key] = rows
	return nil
}

func (s *MemoryStore) LoadVersionTable(_ context.Context, key VersionKey) ([]VersionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.versions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(rows), nil
}

func (s *MemoryStore) RecordImport(_ context.Context, rec ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.imports = append(s.imports, rec)
	return nil
}

func (s *MemoryStore) ListImports(_ context.Context, dataset model.Dataset) ([]ImportRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ImportRecord
	for _, rec := range s.imports {
		if dataset == "" || rec.Dataset == dataset {
			out = append(out, rec)
		}
	}
	return out, nil
}
