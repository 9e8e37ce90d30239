package version

import (
	"context"
	"maps"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/store"
	"github.com/sells-group/gdivir/internal/textnorm"
)

var (
	// ErrNoVersion is returned when no era has as many names as supplied.
	ErrNoVersion = eris.New("version: no era with matching name count")
	// ErrAmbiguousVersion is returned when several eras have as many names
	// as supplied.
	ErrAmbiguousVersion = eris.New("version: several eras with matching name count")
	// ErrUnresolvedName is returned when a supplied name has no unique ID
	// in the selected era.
	ErrUnresolvedName = eris.New("version: unresolved name")
)

// Tracker builds, stores and queries version-era tables.
type Tracker struct {
	snapshots store.SnapshotReader
	versions  store.VersionStore
	log       *zap.Logger
}

// NewTracker creates a Tracker reading division snapshots and persisting
// tables in versions.
func NewTracker(snapshots store.SnapshotReader, versions store.VersionStore) *Tracker {
	return &Tracker{
		snapshots: snapshots,
		versions:  versions,
		log:       zap.L().With(zap.String("component", "version")),
	}
}

// BuildProvinces builds and stores the province version table.
func (t *Tracker) BuildProvinces(ctx context.Context) (*Table, error) {
	return t.build(ctx, store.VersionKey{Level: model.LevelProvince})
}

// BuildCounties builds and stores the county version table of the
// province with code parent.
func (t *Tracker) BuildCounties(ctx context.Context, parent string) (*Table, error) {
	if parent == "" {
		return nil, eris.New("version: county tables need a province code")
	}
	return t.build(ctx, store.VersionKey{Level: model.LevelCounty, Parent: parent})
}

// BuildAllCounties builds the county version table of every province that
// has counties in any survey and returns the province codes processed.
func (t *Tracker) BuildAllCounties(ctx context.Context) ([]string, error) {
	regions, err := t.snapshots.Regions(ctx, store.RegionFilter{
		Dataset: model.DatasetGeographicalDivisions,
		Types:   []model.RegionType{model.RegionTypeCounty},
	})
	if err != nil {
		return nil, eris.Wrap(err, "version: load counties")
	}
	parents := make(map[string]bool)
	for _, r := range regions {
		parents[r.ProvinceID] = true
	}

	codes := slices.Sorted(maps.Keys(parents))
	for _, p := range codes {
		if _, err := t.BuildCounties(ctx, p); err != nil {
			return nil, err
		}
	}
	return codes, nil
}

func (t *Tracker) build(ctx context.Context, key store.VersionKey) (*Table, error) {
	regions, err := t.snapshots.Regions(ctx, store.RegionFilter{
		Dataset:    model.DatasetGeographicalDivisions,
		Types:      []model.RegionType{key.Level.RegionType()},
		ProvinceID: key.Parent,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "version: load %s", key.Level)
	}
	if len(regions) == 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "version: no %s rows for %q", key.Level, key.Parent)
	}

	table := Build(regions, model.Region.Name)
	if len(table.Mislabeled) > 0 {
		t.log.Warn("version eras labeled with a different survey's names",
			zap.Stringer("level", key.Level),
			zap.String("parent", key.Parent),
			zap.Ints("eras", table.Mislabeled),
		)
	}
	if err := t.versions.SaveVersionTable(ctx, key, table.Entries); err != nil {
		return nil, eris.Wrapf(err, "version: save %s %q", key.Level, key.Parent)
	}

	t.log.Info("version table built",
		zap.Stringer("level", key.Level),
		zap.String("parent", key.Parent),
		zap.Ints("eras", table.Eras),
		zap.Int("entries", len(table.Entries)),
	)
	return table, nil
}

// Load returns the stored version table of level and parent.
func (t *Tracker) Load(ctx context.Context, level model.Level, parent string) (*Table, error) {
	key, err := versionKey(level, parent)
	if err != nil {
		return nil, err
	}
	entries, err := t.versions.LoadVersionTable(ctx, key)
	if err != nil {
		return nil, err
	}
	return fromEntries(entries), nil
}

// ExtractCodes returns the region ID of every name, in input order. The
// names must be the complete list of one era: the era is chosen by the
// number of names. Every name must resolve or the call fails.
func (t *Tracker) ExtractCodes(ctx context.Context, names []string, level model.Level, parent string) ([]string, error) {
	table, err := t.Load(ctx, level, parent)
	if err != nil {
		return nil, err
	}
	return Resolve(table, names)
}

// Resolve maps names to IDs through the era of table with exactly
// len(names) names.
func Resolve(table *Table, names []string) ([]string, error) {
	var eras []int
	for era, n := range table.NameCounts() {
		if n == len(names) {
			eras = append(eras, era)
		}
	}
	slices.Sort(eras)
	switch len(eras) {
	case 0:
		return nil, eris.Wrapf(ErrNoVersion, "%d names", len(names))
	case 1:
	default:
		return nil, eris.Wrapf(ErrAmbiguousVersion, "%d names match eras %v", len(names), eras)
	}

	era := eras[0]
	ids := make(map[string]string)
	dup := make(map[string]bool)
	for _, e := range table.Entries {
		if e.EraYear != era {
			continue
		}
		n := textnorm.Normalize(e.Name)
		if _, ok := ids[n]; ok {
			dup[n] = true
		}
		ids[n] = e.RegionID
	}

	out := make([]string, len(names))
	for i, name := range names {
		n := textnorm.Normalize(name)
		id, ok := ids[n]
		if !ok || dup[n] {
			return nil, eris.Wrapf(ErrUnresolvedName, "%q in era %d", name, era)
		}
		out[i] = id
	}
	return out, nil
}

func versionKey(level model.Level, parent string) (store.VersionKey, error) {
	switch level {
	case model.LevelProvince:
		return store.VersionKey{Level: level}, nil
	case model.LevelCounty:
		if parent == "" {
			return store.VersionKey{}, eris.New("version: county lookups need a province code")
		}
		return store.VersionKey{Level: level, Parent: parent}, nil
	default:
		return store.VersionKey{}, eris.Errorf("version: unsupported level %s", level)
	}
}
