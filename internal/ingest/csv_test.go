package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	rows, err := collect(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestStreamCSV_TrimBOMAndBlankRows(t *testing.T) {
	input := "\ufeffID , Name\n 03 , Tabriz \n,,\n  ,\n04,Urmia\n"
	rows, err := collect(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ID", "Name"}, {"03", "Tabriz"}, {"04", "Urmia"}}, rows)
}

func TestStreamCSV_Windows1256(t *testing.T) {
	// "تهران" in Windows-1256.
	input := "Province_ID,Province_Name\n23,\xca\xe5\xd1\xc7\xe4\n"
	rows, err := collect(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Encoding: "windows-1256"}))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"23", "تهران"}, rows[1])

	_, err = collect(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Encoding: "klingon"}))
	assert.ErrorContains(t, err, "unsupported encoding")
}

func TestStreamCSV_Delimiter(t *testing.T) {
	input := "a;b\n1;2\n"
	rows, err := collect(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: ';'}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_VariableFields(t *testing.T) {
	input := "a,b,c\n1\n2,3\n"
	rows, err := collect(StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{}))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1"}, rows[1])
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString("1,2,3\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(sb.String()), CSVOptions{})

	<-rowCh
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-rowCh:
			if !ok {
				err := <-errCh
				require.Error(t, err)
				assert.Contains(t, err.Error(), "context cancelled")
				return
			}
		case <-deadline:
			t.Fatal("stream did not stop after cancel")
		}
	}
}
