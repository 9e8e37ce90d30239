package ingest

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gdivir/internal/metadata"
)

// Table is a raw survey table with named columns.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Has reports whether the table carries the named column.
func (t *Table) Has(column string) bool {
	return slices.Contains(t.Columns, column)
}

// Records returns every row keyed by column name. Short rows are padded
// with empty strings.
func (t *Table) Records() []Record {
	out := make([]Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(Record, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// Record is one raw row keyed by column name.
type Record map[string]string

// ReadTable loads a raw table from path. CSV files carry their own header
// row and are decoded with spec.Encoding. Spreadsheets (.xlsx, or a .zip holding a single workbook) are
// headerless after spec.HeaderRows() and take their column names from
// spec.Columns; every sheet is read. Columns whose name contains "_drop_"
// are discarded.
func ReadTable(ctx context.Context, path string, spec metadata.TableSpec) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSVTable(ctx, path, spec.Encoding)
	case ".xlsx":
		rows, err := ReadXLSX(path, XLSXOptions{AllSheets: true, SkipRows: spec.HeaderRows()})
		if err != nil {
			return nil, err
		}
		return namedTable(spec.Columns, rows)
	case ".zip":
		name, data, err := readZIPSingle(path)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			return nil, eris.Errorf("ingest: archive %s holds %s, want an .xlsx workbook", path, name)
		}
		rows, err := ReadXLSXBinary(data, XLSXOptions{AllSheets: true, SkipRows: spec.HeaderRows()})
		if err != nil {
			return nil, err
		}
		return namedTable(spec.Columns, rows)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

func readCSVTable(ctx context.Context, path, encoding string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rows, err := collect(StreamCSV(ctx, f, CSVOptions{Encoding: encoding}))
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("ingest: %s is empty", path)
	}
	return dropColumns(&Table{Columns: rows[0], Rows: rows[1:]}), nil
}

func namedTable(columns []string, rows [][]string) (*Table, error) {
	if len(columns) == 0 {
		return nil, eris.New("ingest: spreadsheet layout has no columns")
	}
	return dropColumns(&Table{Columns: columns, Rows: rows}), nil
}

func dropColumns(t *Table) *Table {
	var keep []int
	for i, c := range t.Columns {
		if !strings.Contains(strings.ToLower(c), "_drop_") {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(t.Columns) {
		return t
	}

	out := &Table{Columns: make([]string, len(keep)), Rows: make([][]string, len(t.Rows))}
	for j, i := range keep {
		out.Columns[j] = t.Columns[i]
	}
	for r, row := range t.Rows {
		kept := make([]string, len(keep))
		for j, i := range keep {
			if i < len(row) {
				kept[j] = row[i]
			}
		}
		out.Rows[r] = kept
	}
	return out
}
