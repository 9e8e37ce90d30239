package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e2eConfig = `
store:
  driver: sqlite
  database_url: gdivir.db
log:
  level: error
  format: console
export:
  skip_years: 1
`

const e2eMetadata = `
datasets:
  geographical_divisions:
    years: [1390, 1395]
  census_results:
    years: [1395]
`

const divisionsHeader = "Province_ID,County_ID,District_ID,Rural_District_ID,Rural_District_Name,City_ID,City_Name,Village_ID,Village_Name,Region_Type\n"

// setupWorkspace writes a config, metadata file, declarations and raw
// tables into a temp dir and makes it the working directory. County 0312
// splits off 0313 in 1395.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	files := map[string]string{
		"config.yaml":   e2eConfig,
		"metadata.yaml": e2eMetadata,
		"divisions_1390.csv": divisionsHeader +
			"03,,,,,,,,,1\n" +
			"03,12,,,,,,,,2\n" +
			"03,12,1,01,Meydan,,,001,Kalan,6\n" +
			"03,12,1,01,Meydan,,,002,Khord,6\n" +
			"03,12,1,02,Sahel,,,003,Bala,6\n" +
			"03,12,1,02,Sahel,,,004,Pain,6\n",
		"divisions_1395.csv": divisionsHeader +
			"03,,,,,,,,,1\n" +
			"03,12,,,,,,,,2\n" +
			"03,13,,,,,,,,2\n" +
			"03,12,1,01,Meydan,,,001,Kalan,6\n" +
			"03,12,1,01,Meydan,,,002,Khord,6\n" +
			"03,13,1,01,Sahel,,,003,Bala,6\n" +
			"03,13,1,01,Sahel,,,004,Pain,6\n",
		"census_1395.csv": "Province_ID,County_ID,District_ID,Rural_District_ID,Rural_District_Name,City_ID,City_Name,Village_ID,Village_Name,Region_Type,Household_Count,Population\n" +
			"03,12,1,01,Meydan,,,001,Kalan,6,5,20\n" +
			"03,12,1,01,Meydan,,,002,Khord,6,2,5\n" +
			"03,13,1,01,Sahel,,,003,Bala,6,3,10\n" +
			"03,13,1,01,Sahel,,,004,Pain,6,4,15\n",
		filepath.Join("declarations", "hbsir", "provinces.csv"): "Year,Code,Covers\n1390,3,03\n1395,3,03\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), "gdivir %v", args)
}

func TestEndToEnd_ImportAndExport(t *testing.T) {
	dir := setupWorkspace(t)

	execute(t, "import", "divisions_1390.csv", "--dataset", "divisions", "--year", "1390")
	execute(t, "import", "divisions_1395.csv", "--dataset", "divisions", "--year", "1395")
	execute(t, "import", "census_1395.csv", "--dataset", "census", "--year", "1395")
	execute(t, "status")
	execute(t, "export")

	changes, err := os.ReadFile(filepath.Join(dir, "results", "county_many_to_one_mapping.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "1395:\n  '0313': '0312'\n", string(changes))

	table, err := os.ReadFile(filepath.Join(dir, "results", "county_many_to_one_mapping_table.csv"))
	require.NoError(t, err)
	assert.Equal(t, "1390,1395\n0312,0312\n0312,0313\n", string(table))

	provinces, err := os.ReadFile(filepath.Join(dir, "results", "hbsir_standard_province_mapping.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "3: '03'\n", string(provinces))

	_, err = os.Stat(filepath.Join(dir, "results", "hbsir_standard_county_mapping.yaml"))
	assert.True(t, os.IsNotExist(err), "county mapping needs county declarations")
}

func TestEndToEnd_UnknownYear(t *testing.T) {
	setupWorkspace(t)

	rootCmd.SetArgs([]string{"import", "divisions_1390.csv", "--dataset", "divisions", "--year", "1391"})
	assert.Error(t, rootCmd.Execute())
}
