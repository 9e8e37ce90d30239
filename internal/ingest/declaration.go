package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gdivir/internal/matchmaker"
	"github.com/sells-group/gdivir/internal/model"
)

// Declaration file columns.
const (
	colDeclYear   = "Year"
	colDeclCode   = "Code"
	colDeclCovers = "Covers"
	colDeclID     = "ID"
	coverSep      = "|"
)

// LoadDeclaration reads an external dataset's code declaration from a CSV
// file in one of two layouts:
//
//   - long: Year,Code[,Covers] with one row per dataset year and code;
//     Covers lists base codes separated by "|" and defaults to the code.
//   - wide: an ID column plus one column per dataset year; a non-empty
//     cell means the code is in use that year.
func LoadDeclaration(ctx context.Context, path string) (matchmaker.Declaration, error) {
	t, err := readCSVTable(ctx, path, "")
	if err != nil {
		return nil, err
	}
	switch {
	case t.Has(colDeclYear) && t.Has(colDeclCode):
		return longDeclaration(path, t)
	case t.Has(colDeclID):
		return wideDeclaration(path, t)
	default:
		return nil, eris.Errorf("ingest: declaration %s needs %s,%s or %s columns", path, colDeclYear, colDeclCode, colDeclID)
	}
}

func longDeclaration(path string, t *Table) (matchmaker.Declaration, error) {
	decl := make(matchmaker.Declaration)
	for i, rec := range t.Records() {
		year, err := strconv.Atoi(rec[colDeclYear])
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: declaration %s row %d: year", path, i+2)
		}
		code := rec[colDeclCode]
		if code == "" {
			return nil, eris.Errorf("ingest: declaration %s row %d: empty code", path, i+2)
		}
		var covers matchmaker.CodeSet
		if raw := rec[colDeclCovers]; raw != "" {
			var codes []string
			for _, c := range strings.Split(raw, coverSep) {
				if c = strings.TrimSpace(c); c != "" {
					codes = append(codes, c)
				}
			}
			covers = matchmaker.NewCodeSet(codes...)
		}
		if decl[year] == nil {
			decl[year] = make(map[string]matchmaker.CodeSet)
		}
		decl[year][code] = covers
	}
	return decl, nil
}

func wideDeclaration(path string, t *Table) (matchmaker.Declaration, error) {
	years := make(map[string]int)
	for _, col := range t.Columns {
		if col == colDeclID {
			continue
		}
		y, err := strconv.Atoi(col)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: declaration %s: column %q is not a year", path, col)
		}
		years[col] = y
	}

	decl := make(matchmaker.Declaration, len(years))
	for _, rec := range t.Records() {
		code := rec[colDeclID]
		if code == "" {
			continue
		}
		for col, y := range years {
			if rec[col] == "" {
				continue
			}
			if decl[y] == nil {
				decl[y] = make(map[string]matchmaker.CodeSet)
			}
			decl[y][code] = nil
		}
	}
	return decl, nil
}

// DeclarationPath returns the declaration file of ext at level under dir,
// e.g. declarations/hbsir/counties.csv.
func DeclarationPath(dir string, ext model.ExternalDataset, level model.Level) (string, error) {
	var name string
	switch level {
	case model.LevelProvince:
		name = "provinces.csv"
	case model.LevelCounty:
		name = "counties.csv"
	default:
		return "", eris.Errorf("ingest: no declarations at level %s", level)
	}
	return filepath.Join(dir, string(ext), name), nil
}

// LoadDeclarationSet reads the declarations of ext needed to reconcile
// level. Provinces are always required; counties only for the county
// level.
func LoadDeclarationSet(ctx context.Context, dir string, ext model.ExternalDataset, level model.Level) (matchmaker.DeclarationSet, error) {
	var set matchmaker.DeclarationSet

	levels := []model.Level{model.LevelProvince}
	if level == model.LevelCounty {
		levels = append(levels, model.LevelCounty)
	}
	for _, l := range levels {
		path, err := DeclarationPath(dir, ext, l)
		if err != nil {
			return set, err
		}
		decl, err := LoadDeclaration(ctx, path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return set, eris.Wrapf(err, "ingest: %s declares no %s", ext, strings.ToLower(l.String()))
			}
			return set, err
		}
		if l == model.LevelProvince {
			set.Provinces = decl
		} else {
			set.Counties = decl
		}
	}
	return set, nil
}
