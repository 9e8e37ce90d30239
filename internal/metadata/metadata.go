// Package metadata describes which survey years exist per dataset, how each
// year's raw tables are laid out, and the per-dataset code corrections
// applied before external reconciliation.
package metadata

import (
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gdivir/internal/model"
)

// File is the on-disk metadata document.
type File struct {
	Datasets         map[model.Dataset]DatasetSpec          `yaml:"datasets"`
	ExternalDatasets map[model.ExternalDataset]ExternalSpec `yaml:"external_datasets"`
	// RawFiles lists the published source files of each survey, keyed by
	// dataset, year and target directory name.
	RawFiles map[model.Dataset]map[int]map[string]string `yaml:"raw_files"`
}

// DatasetSpec lists a dataset's years and its versioned table layouts.
// A table version applies from its key year until the next version.
type DatasetSpec struct {
	Years  []int             `yaml:"years"`
	Tables map[int]TableSpec `yaml:"tables"`
}

// TableSpec is the column layout of one raw table version.
type TableSpec struct {
	Columns  []string          `yaml:"columns"`
	SkipRows *int              `yaml:"skiprows,omitempty"`
	Reverse  bool              `yaml:"reverse,omitempty"`
	Encoding string            `yaml:"encoding,omitempty"` // CSV text encoding, UTF-8 when empty
	ID       map[string][2]int `yaml:"id,omitempty"`       // column -> [start, end) slice of the long ID
}

// HeaderRows returns the number of leading rows to skip (default 1).
func (t TableSpec) HeaderRows() int {
	if t.SkipRows == nil {
		return 1
	}
	return *t.SkipRows
}

// ExternalSpec holds per-level settings of an external dataset.
type ExternalSpec struct {
	Provinces LevelSpec `yaml:"provinces"`
	Counties  LevelSpec `yaml:"counties"`
}

// LevelSpec holds the non-standard code corrections for one level,
// keyed by dataset year then external code.
type LevelSpec struct {
	NonStandardCodes map[int]map[string]string `yaml:"non_standard_codes"`
}

// Metadata is the parsed metadata with one timeline per dataset. It is
// constructed once at startup and passed to the components that need it.
type Metadata struct {
	file      File
	timelines map[model.Dataset]*Timeline
}

// Load reads and parses a metadata YAML file.
func Load(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "metadata: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a metadata YAML document.
func Parse(data []byte) (*Metadata, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "metadata: decode yaml")
	}
	return New(f)
}

// New validates f and builds the timelines.
func New(f File) (*Metadata, error) {
	m := &Metadata{file: f, timelines: make(map[model.Dataset]*Timeline)}
	for name, spec := range f.Datasets {
		if len(spec.Years) == 0 {
			return nil, eris.Errorf("metadata: dataset %s has no years", name)
		}
		m.timelines[name] = NewTimeline(name, spec.Years)
	}
	return m, nil
}

// Timeline returns the year index of a dataset.
func (m *Metadata) Timeline(d model.Dataset) (*Timeline, error) {
	t, ok := m.timelines[d]
	if !ok {
		return nil, eris.Errorf("metadata: unknown dataset %q", d)
	}
	return t, nil
}

// TableVersion returns the table layout valid for year: the version with
// the greatest key not after year.
func (m *Metadata) TableVersion(d model.Dataset, year int) (TableSpec, error) {
	spec, ok := m.file.Datasets[d]
	if !ok {
		return TableSpec{}, eris.Errorf("metadata: unknown dataset %q", d)
	}
	v, err := FindVersion(spec.Tables, year)
	if err != nil {
		return TableSpec{}, eris.Wrapf(err, "metadata: %s tables", d)
	}
	return v, nil
}

// FindVersion returns the entry of versions with the greatest key <= year.
func FindVersion[T any](versions map[int]T, year int) (T, error) {
	keys := make([]int, 0, len(versions))
	for k := range versions {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	found := false
	var best int
	for _, k := range keys {
		if k > year {
			break
		}
		best, found = k, true
	}
	if !found {
		var zero T
		return zero, eris.Wrapf(ErrYearNotFound, "no version valid for %d", year)
	}
	return versions[best], nil
}

// RawFiles returns the source URLs of the survey of dataset in year,
// keyed by target directory name.
func (m *Metadata) RawFiles(d model.Dataset, year int) (map[string]string, error) {
	files := m.file.RawFiles[d][year]
	if len(files) == 0 {
		return nil, eris.Wrapf(ErrYearNotFound, "metadata: no raw files for %s %d", d, year)
	}
	return files, nil
}

// RawFileYears returns the years of dataset with raw files, ascending.
func (m *Metadata) RawFileYears(d model.Dataset) []int {
	years := make([]int, 0, len(m.file.RawFiles[d]))
	for y := range m.file.RawFiles[d] {
		years = append(years, y)
	}
	slices.Sort(years)
	return years
}

// NonStandardCodes returns the code corrections of an external dataset at
// the given level. The result is never nil.
func (m *Metadata) NonStandardCodes(ext model.ExternalDataset, level model.Level) map[int]map[string]string {
	spec := m.file.ExternalDatasets[ext]
	var codes map[int]map[string]string
	switch level {
	case model.LevelProvince:
		codes = spec.Provinces.NonStandardCodes
	case model.LevelCounty:
		codes = spec.Counties.NonStandardCodes
	}
	if codes == nil {
		return map[int]map[string]string{}
	}
	return codes
}
