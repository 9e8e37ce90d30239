package matchmaker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gdivir/internal/model"
)

func row(newCode, oldCode string, pop int64) TransformationRow {
	return TransformationRow{NewCode: newCode, OldCode: oldCode, SharedPopulation: pop}
}

func TestParseTieBreak(t *testing.T) {
	tests := []struct {
		in      string
		want    TieBreak
		wantErr bool
	}{
		{"", TieBreakSmallestOldCode, false},
		{"smallest_old_code", TieBreakSmallestOldCode, false},
		{" Largest_Old_Code ", TieBreakLargestOldCode, false},
		{"random", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTieBreak(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, must(ParseTieBreak(got.String())))
		})
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestDocument_Selection(t *testing.T) {
	table := &Table{Year: 1390, PreviousYear: 1385, Level: model.LevelCounty, Rows: []TransformationRow{
		row("0312", "0310", 10),
		row("0312", "0311", 40),
		row("0313", "0312", 5),
		row("0314", "0312", 20),
		row("0314", "0315", 20),
	}}

	tests := []struct {
		policy TieBreak
		want   Mapping
	}{
		{TieBreakSmallestOldCode, Mapping{"0312": "0311", "0313": "0312", "0314": "0312"}},
		{TieBreakLargestOldCode, Mapping{"0312": "0311", "0313": "0312", "0314": "0315"}},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			doc := Document(table, tt.policy)
			assert.Equal(t, tt.want, doc.Mapping())
			assert.Equal(t, []string{"0314"}, doc.Ties())

			require.Len(t, doc.Rows, 5)
			assert.Equal(t, "0311", doc.Rows[0].OldCode)
			assert.True(t, doc.Rows[0].Selected)
			assert.False(t, doc.Rows[1].Selected)
			assert.True(t, doc.Rows[3].Tied)
			assert.True(t, doc.Rows[4].Tied)
		})
	}

	// The input table is left untouched.
	assert.Equal(t, "0310", table.Rows[0].OldCode)
}

func TestDocumentation_OneToOneConflicts(t *testing.T) {
	doc := Document(&Table{Rows: []TransformationRow{
		row("0312", "0312", 30),
		row("0313", "0312", 20),
		row("0314", "0314", 50),
		row("0314", "0315", 10),
	}}, TieBreakSmallestOldCode)

	conflicts := doc.OneToOneConflicts()
	require.Len(t, conflicts, 2)
	assert.Equal(t, Conflict{Kind: ConflictSplit, Code: "0312", Others: []string{"0312", "0313"}}, conflicts[0])
	assert.Equal(t, Conflict{Kind: ConflictMerge, Code: "0314", Others: []string{"0314", "0315"}}, conflicts[1])
	assert.Equal(t, "split", ConflictSplit.String())
	assert.Equal(t, "merge", ConflictMerge.String())
}

func TestResolver_ManyToOne_Split(t *testing.T) {
	f := splitFixture(t)
	resolver := NewResolver(f.matcher(), TieBreakSmallestOldCode)
	ctx := context.Background()

	mapping, err := resolver.ManyToOne(ctx, 1390, model.LevelCounty)
	require.NoError(t, err)
	assert.Equal(t, Mapping{"0312": "0312", "0313": "0312"}, mapping)

	again, err := resolver.ManyToOne(ctx, 1390, model.LevelCounty)
	require.NoError(t, err)
	assert.Equal(t, mapping, again)

	doc, err := resolver.OneToOneDocumentation(ctx, 1390, model.LevelCounty)
	require.NoError(t, err)
	for _, r := range doc.Rows {
		assert.True(t, r.Selected)
		assert.InDelta(t, 50.0, r.OldPopulationShare, 1e-9)
	}
	conflicts := doc.OneToOneConflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictSplit, conflicts[0].Kind)

	provinces, err := resolver.ManyToOne(ctx, 1390, model.LevelProvince)
	require.NoError(t, err)
	assert.Equal(t, Mapping{"03": "03"}, provinces)
}
