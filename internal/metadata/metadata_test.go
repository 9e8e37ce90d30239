package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gdivir/internal/model"
)

const sampleYAML = `
datasets:
  geographical_divisions:
    years: [1395, 1355, 1365, 1375, 1385, 1390]
    tables:
      1355:
        columns: [ID, Province_Name, County_Name]
        id:
          Province_ID: [0, 2]
          County_ID: [2, 4]
      1385:
        columns: [Province_ID, County_ID, Village_ID]
        skiprows: 3
  census_results:
    years: [1355, 1365, 1375, 1385, 1390, 1395]
external_datasets:
  hbsir:
    counties:
      non_standard_codes:
        1363:
          "0199": "0101"
raw_files:
  geographical_divisions:
    1395:
      divisions: https://example.org/1395/divisions.zip
`

func TestTimeline_NextPrevious(t *testing.T) {
	tl := NewTimeline(model.DatasetGeographicalDivisions, []int{1375, 1355, 1365, 1365})
	assert.Equal(t, []int{1355, 1365, 1375}, tl.Years())

	next, err := tl.Next(1355)
	require.NoError(t, err)
	assert.Equal(t, 1365, next)

	prev, err := tl.Previous(1375)
	require.NoError(t, err)
	assert.Equal(t, 1365, prev)

	_, err = tl.Next(1375)
	assert.True(t, errors.Is(err, ErrYearNotFound))

	_, err = tl.Previous(1355)
	assert.True(t, errors.Is(err, ErrYearNotFound))

	_, err = tl.Previous(1360)
	assert.True(t, errors.Is(err, ErrYearNotFound))
}

func TestTimeline_Nearest(t *testing.T) {
	tl := NewTimeline(model.DatasetCensusResults, []int{1355, 1365, 1375, 1385, 1390, 1395})

	tests := []struct {
		name        string
		year        int
		preferLater bool
		want        int
	}{
		{"exact", 1375, true, 1375},
		{"closer earlier", 1367, true, 1365},
		{"tie prefer later", 1370, true, 1375},
		{"tie prefer earlier", 1370, false, 1365},
		{"before first", 1300, true, 1355},
		{"after last", 1400, false, 1395},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tl.Nearest(tt.year, tt.preferLater)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NewTimeline(model.DatasetCensusResults, nil).Nearest(1370, true)
	assert.True(t, errors.Is(err, ErrYearNotFound))
}

func TestTimeline_FirstLastContains(t *testing.T) {
	tl := NewTimeline(model.DatasetCensusResults, []int{1365, 1355})
	first, err := tl.First()
	require.NoError(t, err)
	last, err := tl.Last()
	require.NoError(t, err)
	assert.Equal(t, 1355, first)
	assert.Equal(t, 1365, last)
	assert.True(t, tl.Contains(1365))
	assert.False(t, tl.Contains(1360))
	assert.Equal(t, 2, tl.Len())
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	tl, err := m.Timeline(model.DatasetGeographicalDivisions)
	require.NoError(t, err)
	assert.Equal(t, []int{1355, 1365, 1375, 1385, 1390, 1395}, tl.Years())

	spec, err := m.TableVersion(model.DatasetGeographicalDivisions, 1375)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Province_Name", "County_Name"}, spec.Columns)
	assert.Equal(t, [2]int{2, 4}, spec.ID["County_ID"])
	assert.Equal(t, 1, spec.HeaderRows())

	spec, err = m.TableVersion(model.DatasetGeographicalDivisions, 1390)
	require.NoError(t, err)
	assert.Equal(t, 3, spec.HeaderRows())

	_, err = m.TableVersion(model.DatasetGeographicalDivisions, 1300)
	assert.True(t, errors.Is(err, ErrYearNotFound))

	codes := m.NonStandardCodes(model.ExternalHBSIR, model.LevelCounty)
	assert.Equal(t, "0101", codes[1363]["0199"])
	assert.Empty(t, m.NonStandardCodes(model.ExternalHBSIR, model.LevelProvince))
}

func TestParse_EmptyYears(t *testing.T) {
	_, err := Parse([]byte("datasets:\n  census_results:\n    years: []\n"))
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	_, err = m.Timeline(model.DatasetCensusResults)
	assert.NoError(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFindVersion(t *testing.T) {
	versions := map[int]string{1355: "a", 1375: "b", 1390: "c"}
	got, err := FindVersion(versions, 1380)
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	got, err = FindVersion(versions, 1390)
	require.NoError(t, err)
	assert.Equal(t, "c", got)

	_, err = FindVersion(versions, 1350)
	assert.Error(t, err)
}

func TestRawFiles(t *testing.T) {
	m, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	files, err := m.RawFiles(model.DatasetGeographicalDivisions, 1395)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"divisions": "https://example.org/1395/divisions.zip"}, files)

	_, err = m.RawFiles(model.DatasetCensusResults, 1395)
	assert.True(t, errors.Is(err, ErrYearNotFound))

	assert.Equal(t, []int{1395}, m.RawFileYears(model.DatasetGeographicalDivisions))
	assert.Empty(t, m.RawFileYears(model.DatasetCensusResults))
}
