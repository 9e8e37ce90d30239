package ingest

import (
	"archive/zip"
	"io"

	"github.com/rotisserie/eris"
)

// readZIPSingle returns the name and contents of the only non-empty file
// in a ZIP archive.
func readZIPSingle(zipPath string) (string, []byte, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var files []*zip.File
	for _, f := range r.File {
		if !f.FileInfo().IsDir() && f.UncompressedSize64 > 0 {
			files = append(files, f)
		}
	}
	if len(files) != 1 {
		return "", nil, eris.Errorf("zip: expected exactly 1 file, got %d", len(files))
	}

	rc, err := files[0].Open()
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: read entry")
	}
	return files[0].Name, data, nil
}
