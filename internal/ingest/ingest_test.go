package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/store"
)

func TestImporter_Import(t *testing.T) {
	st := store.NewMemory()
	im := NewImporter(testMeta(t), st)
	ctx := context.Background()

	path := writeFile(t, "divisions_1395.csv",
		"Province_ID,Province_Name,County_ID,County_Name,Rural_District_ID,City_ID,City_Name,Region_Type\n"+
			"03,Azarbaijan,,,,,,1\n"+
			"03,,12,Tabriz,,,,2\n"+
			"03,,12,,,,,9\n")

	res, err := im.Import(ctx, model.DatasetGeographicalDivisions, 1395, path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Saved)
	assert.Equal(t, "divisions_1395.csv", res.Source)
	assert.Equal(t, 1, res.Stats.UnknownType)

	regions, err := st.Regions(ctx, store.RegionFilter{Dataset: model.DatasetGeographicalDivisions})
	require.NoError(t, err)
	require.Len(t, regions, 2)
	assert.Equal(t, "03", regions[0].ID())
	assert.Equal(t, "0312", regions[1].ID())

	imports, err := st.ListImports(ctx, model.DatasetGeographicalDivisions)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, int64(2), imports[0].Rows)
	assert.Equal(t, 1395, imports[0].Year)
}

func TestImporter_UnknownYear(t *testing.T) {
	im := NewImporter(testMeta(t), store.NewMemory())
	_, err := im.Import(context.Background(), model.DatasetGeographicalDivisions, 1390, "unused.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, metadata.ErrYearNotFound))
}

func TestImporter_MissingFile(t *testing.T) {
	im := NewImporter(testMeta(t), store.NewMemory())
	_, err := im.Import(context.Background(), model.DatasetGeographicalDivisions, 1385, "/nonexistent/divisions.csv")
	assert.Error(t, err)
}
