// Package ingest reads raw survey tables (CSV, XLSX or zipped XLSX),
// cleans them into snapshot rows and loads them into the store. It also
// reads external-code declarations for reconciliation.
package ingest

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/store"
)

// Writer is the store surface needed to persist an import.
type Writer interface {
	SaveRegions(ctx context.Context, dataset model.Dataset, year int, regions []model.Region) (int64, error)
	RecordImport(ctx context.Context, rec store.ImportRecord) error
}

// Importer loads raw tables into a store.
type Importer struct {
	meta    *metadata.Metadata
	cleaner *Cleaner
	store   Writer
	log     *zap.Logger
}

// NewImporter creates an Importer.
func NewImporter(meta *metadata.Metadata, st Writer) *Importer {
	return &Importer{
		meta:    meta,
		cleaner: NewCleaner(meta),
		store:   st,
		log:     zap.L().With(zap.String("component", "ingest")),
	}
}

// Result summarizes one import.
type Result struct {
	Dataset model.Dataset
	Year    int
	Source  string
	Saved   int64
	Stats   Stats
}

// Import reads the raw table at path as the snapshot of dataset for year,
// replacing any stored snapshot of that year.
func (im *Importer) Import(ctx context.Context, dataset model.Dataset, year int, path string) (*Result, error) {
	tl, err := im.meta.Timeline(dataset)
	if err != nil {
		return nil, err
	}
	if !tl.Contains(year) {
		return nil, eris.Wrapf(metadata.ErrYearNotFound, "ingest: %s has no survey in %d", dataset, year)
	}

	var spec metadata.TableSpec
	if v, err := im.meta.TableVersion(dataset, year); err == nil {
		spec = v
	}

	table, err := ReadTable(ctx, path, spec)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s %d", dataset, year)
	}

	regions, stats, err := im.cleaner.Clean(dataset, year, table)
	if err != nil {
		return nil, err
	}

	saved, err := im.store.SaveRegions(ctx, dataset, year, regions)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: save %s %d", dataset, year)
	}

	source := filepath.Base(path)
	if err := im.store.RecordImport(ctx, store.ImportRecord{
		Dataset: dataset,
		Year:    year,
		Source:  source,
		Rows:    saved,
	}); err != nil {
		return nil, eris.Wrap(err, "ingest: record import")
	}

	im.log.Info("snapshot imported",
		zap.String("dataset", string(dataset)),
		zap.Int("year", year),
		zap.String("source", source),
		zap.Int("read", stats.Read),
		zap.Int64("saved", saved),
		zap.Int("missing_id", stats.MissingID),
		zap.Int("unknown_type", stats.UnknownType),
	)
	if stats.UnknownType > 0 {
		im.log.Warn("rows with unrecognized region type dropped",
			zap.String("dataset", string(dataset)),
			zap.Int("year", year),
			zap.Int("count", stats.UnknownType),
		)
	}

	return &Result{Dataset: dataset, Year: year, Source: source, Saved: saved, Stats: stats}, nil
}
