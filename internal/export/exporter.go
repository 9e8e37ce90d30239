package export

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/gdivir/internal/matchmaker"
	"github.com/sells-group/gdivir/internal/model"
)

// Result file names.
const (
	CountyChangesFile = "county_many_to_one_mapping.yaml"
	MappingTableFile  = "county_many_to_one_mapping_table.csv"
)

// ExternalMappingFile returns the result file name of an external
// dataset's mapping at level.
func ExternalMappingFile(ext model.ExternalDataset, level model.Level) string {
	name := "province"
	if level == model.LevelCounty {
		name = "county"
	}
	return string(ext) + "_standard_" + name + "_mapping.yaml"
}

// Options configures an Exporter.
type Options struct {
	Dir string
	// SkipYears is the number of leading division years without a
	// mapping column of their own.
	SkipYears int
	Workers   int
}

// Exporter computes mappings and writes them to the results directory.
type Exporter struct {
	resolver *matchmaker.Resolver
	opts     Options
	log      *zap.Logger
}

// New creates an Exporter.
func New(resolver *matchmaker.Resolver, opts Options) *Exporter {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Exporter{
		resolver: resolver,
		opts:     opts,
		log:      zap.L().With(zap.String("component", "export")),
	}
}

// CountyMappings computes the many-to-one county mapping of every
// division year after the skipped ones, one worker per year.
func (e *Exporter) CountyMappings(ctx context.Context) ([]YearMapping, error) {
	divisions := e.resolver.Matcher().Divisions()
	years := divisions.Years()
	start := max(e.opts.SkipYears, 1)
	if start >= len(years) {
		return nil, eris.Errorf("export: skipping %d of %d division years leaves nothing to map", start, len(years))
	}
	years = years[start:]

	out := make([]YearMapping, len(years))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, year := range years {
		g.Go(func() error {
			prev, err := divisions.Previous(year)
			if err != nil {
				return err
			}
			m, err := e.resolver.ManyToOne(gctx, year, model.LevelCounty)
			if err != nil {
				return eris.Wrapf(err, "export: county mapping %d", year)
			}
			out[i] = YearMapping{Year: year, PreviousYear: prev, Mapping: m}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteCountyMappings writes the county change YAML and the chained
// mapping table and returns the written paths.
func (e *Exporter) WriteCountyMappings(ctx context.Context) ([]string, error) {
	mappings, err := e.CountyMappings(ctx)
	if err != nil {
		return nil, err
	}

	changes := filepath.Join(e.opts.Dir, CountyChangesFile)
	if err := e.write(changes, func(w io.Writer) error { return WriteCountyChanges(w, mappings) }); err != nil {
		return nil, err
	}
	table := filepath.Join(e.opts.Dir, MappingTableFile)
	if err := e.write(table, func(w io.Writer) error { return WriteMappingTable(w, mappings) }); err != nil {
		return nil, err
	}
	return []string{changes, table}, nil
}

// WriteExternal writes the mapping of a reconciliation and returns the
// written path.
func (e *Exporter) WriteExternal(rec *matchmaker.Reconciliation) (string, error) {
	path := filepath.Join(e.opts.Dir, ExternalMappingFile(rec.External, rec.Level))
	if err := e.write(path, func(w io.Writer) error { return WriteExternalMapping(w, rec) }); err != nil {
		return "", err
	}
	return path, nil
}

func (e *Exporter) write(path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	e.log.Info("result written", zap.String("path", path), zap.Int("bytes", buf.Len()))
	return nil
}
