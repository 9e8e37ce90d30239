package ingest

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetName string // if set, only this sheet is read
	AllSheets bool   // read every sheet and concatenate; otherwise the first
	SkipRows  int    // number of header rows to skip per sheet
}

// ReadXLSX reads an XLSX file and returns the rows as string slices.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	return readWorkbook(f, opts)
}

// ReadXLSXBinary parses an in-memory workbook, as found inside archives.
func ReadXLSXBinary(data []byte, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open binary")
	}
	return readWorkbook(f, opts)
}

func readWorkbook(f *xlsx.File, opts XLSXOptions) ([][]string, error) {
	sheets, err := getSheets(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for _, sheet := range sheets {
		for i, row := range sheet.Rows {
			if i < opts.SkipRows {
				continue
			}
			rows = append(rows, rowToStrings(row))
		}
	}
	return rows, nil
}

func getSheets(f *xlsx.File, opts XLSXOptions) ([]*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return []*xlsx.Sheet{sheet}, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	if opts.AllSheets {
		return f.Sheets, nil
	}
	return f.Sheets[:1], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
