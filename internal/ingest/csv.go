package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter rune // default ','
	// Encoding is a WHATWG label such as "windows-1256". Empty means UTF-8.
	Encoding string
}

// StreamCSV decodes CSV rows and sends them on the row channel. Fields are
// trimmed, a leading byte order mark is dropped, and rows whose fields are
// all blank (spreadsheet export padding) are skipped. The caller must
// drain the row channel; at most one error is sent on the error channel
// and both are closed when the stream ends.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		if opts.Encoding != "" {
			enc, err := htmlindex.Get(opts.Encoding)
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: unsupported encoding %q", opts.Encoding)
				return
			}
			r = enc.NewDecoder().Reader(r)
		}

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			if first && len(record) > 0 {
				record[0] = strings.TrimPrefix(record[0], "\ufeff")
				first = false
			}
			if blankRow(record) {
				continue
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// blankRow trims record in place and reports whether every field is empty.
func blankRow(record []string) bool {
	blank := true
	for i, field := range record {
		record[i] = strings.TrimSpace(field)
		if record[i] != "" {
			blank = false
		}
	}
	return blank
}

// collect drains a StreamCSV result into memory.
func collect(rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}
