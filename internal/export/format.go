// Package export writes mapping results: per-year county changes, the
// chained county mapping table and external code mappings.
package export

import (
	"cmp"
	"encoding/csv"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gdivir/internal/matchmaker"
)

// YearMapping is the many-to-one mapping of the division survey of Year
// onto its predecessor survey.
type YearMapping struct {
	Year         int
	PreviousYear int
	Mapping      matchmaker.Mapping
}

func quoted(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.SingleQuotedStyle}
}

func intKey(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}

// codeKey renders an external code as an integer key when it is numeric.
func codeKey(code string) *yaml.Node {
	if n, err := strconv.Atoi(code); err == nil {
		return intKey(n)
	}
	return quoted(code)
}

// compareCodes orders numeric codes by value, before any other code.
func compareCodes(a, b string) int {
	x, errA := strconv.Atoi(a)
	y, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(x, y)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	return cmp.Compare(a, b)
}

func encodeYAML(w io.Writer, doc *yaml.Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "export: encode yaml")
	}
	return eris.Wrap(enc.Close(), "export: flush yaml")
}

// WriteCountyChanges writes, per year, the new county codes whose
// predecessor code differs, as 'new': 'old'.
func WriteCountyChanges(w io.Writer, mappings []YearMapping) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, ym := range mappings {
		changes := &yaml.Node{Kind: yaml.MappingNode}
		for _, newCode := range slices.Sorted(maps.Keys(ym.Mapping)) {
			if old := ym.Mapping[newCode]; old != newCode {
				changes.Content = append(changes.Content, quoted(newCode), quoted(old))
			}
		}
		root.Content = append(root.Content, intKey(ym.Year), changes)
	}
	return encodeYAML(w, root)
}

// WriteMapping writes every pair of m as 'new': 'old'.
func WriteMapping(w io.Writer, m matchmaker.Mapping) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, newCode := range slices.Sorted(maps.Keys(m)) {
		root.Content = append(root.Content, quoted(newCode), quoted(m[newCode]))
	}
	return encodeYAML(w, root)
}

// WriteDocumentation writes an annotated transformation table as CSV.
func WriteDocumentation(w io.Writer, doc *matchmaker.Documentation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(documentationHeader); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, r := range doc.Rows {
		if err := cw.Write([]string{
			r.NewCode, r.OldCode,
			strconv.FormatInt(r.SharedRegionCount, 10),
			strconv.FormatInt(r.SharedPopulation, 10),
			strconv.FormatInt(r.SharedHouseholdCount, 10),
			strconv.FormatFloat(r.PopulationShare, 'f', 2, 64),
			strconv.FormatFloat(r.OldPopulationShare, 'f', 2, 64),
			strconv.FormatBool(r.Selected),
			strconv.FormatBool(r.Tied),
		}); err != nil {
			return eris.Wrap(err, "export: write documentation")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush documentation")
}

var documentationHeader = []string{
	"new_code", "old_code", "shared_region_count", "shared_population", "shared_household_count",
	"population_share", "old_population_share", "selected", "tied",
}

// MappingTable chains the yearly mappings into one row per code lineage.
// Columns are the survey years in ascending order; a row holds the code
// of the lineage in each year, empty where it has none. Rows are ordered
// by the latest year first, empty cells last.
func MappingTable(mappings []YearMapping) ([]int, [][]string) {
	if len(mappings) == 0 {
		return nil, nil
	}
	sorted := slices.Clone(mappings)
	slices.SortFunc(sorted, func(a, b YearMapping) int { return cmp.Compare(a.Year, b.Year) })

	index := map[int]int{sorted[0].PreviousYear: 0}
	columns := []int{sorted[0].PreviousYear}
	for _, ym := range sorted {
		if _, ok := index[ym.Year]; !ok {
			index[ym.Year] = len(columns)
			columns = append(columns, ym.Year)
		}
		if _, ok := index[ym.PreviousYear]; !ok {
			index[ym.PreviousYear] = len(columns)
			columns = append(columns, ym.PreviousYear)
		}
	}
	width := len(columns)

	var rows [][]string
	for i, ym := range sorted {
		newCol, oldCol := index[ym.Year], index[ym.PreviousYear]
		pairs := slices.Sorted(maps.Keys(ym.Mapping))
		if i == 0 {
			for _, newCode := range pairs {
				row := make([]string, width)
				row[newCol], row[oldCol] = newCode, ym.Mapping[newCode]
				rows = append(rows, row)
			}
			continue
		}

		byOld := make(map[string][]string)
		for _, newCode := range pairs {
			old := ym.Mapping[newCode]
			byOld[old] = append(byOld[old], newCode)
		}
		used := make(map[string]bool)
		var merged [][]string
		for _, row := range rows {
			news := byOld[row[oldCol]]
			if row[oldCol] == "" || len(news) == 0 {
				merged = append(merged, row)
				continue
			}
			for _, newCode := range news {
				r := slices.Clone(row)
				r[newCol] = newCode
				merged = append(merged, r)
				used[newCode] = true
			}
		}
		for _, newCode := range pairs {
			if !used[newCode] {
				row := make([]string, width)
				row[newCol], row[oldCol] = newCode, ym.Mapping[newCode]
				merged = append(merged, row)
			}
		}
		rows = merged
	}

	order := make([]int, width)
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return cmp.Compare(columns[a], columns[b]) })
	out := make([][]string, len(rows))
	for r, row := range rows {
		out[r] = make([]string, width)
		for j, i := range order {
			out[r][j] = row[i]
		}
	}
	slices.Sort(columns)

	slices.SortStableFunc(out, func(a, b []string) int {
		for j := width - 1; j >= 0; j-- {
			x, y := a[j], b[j]
			switch {
			case x == y:
				continue
			case x == "":
				return 1
			case y == "":
				return -1
			}
			return cmp.Compare(x, y)
		}
		return 0
	})
	return columns, out
}

// WriteMappingTable writes MappingTable as CSV with a header of years.
func WriteMappingTable(w io.Writer, mappings []YearMapping) error {
	columns, rows := MappingTable(mappings)
	cw := csv.NewWriter(w)
	header := make([]string, len(columns))
	for i, y := range columns {
		header[i] = strconv.Itoa(y)
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "export: write mapping table")
	}
	return nil
}

// WriteExternalMapping writes a reconciliation as code: 'ID'. Codes whose
// ID changed over the dataset years are written as a nested mapping from
// the first dataset year of each distinct ID to that ID.
func WriteExternalMapping(w io.Writer, rec *matchmaker.Reconciliation) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	codes := slices.SortedFunc(maps.Keys(rec.Codes), compareCodes)
	for _, code := range codes {
		res := rec.Codes[code]
		if res.Stable() {
			root.Content = append(root.Content, codeKey(code), quoted(res.Code))
			continue
		}
		nested := &yaml.Node{Kind: yaml.MappingNode}
		seen := make(map[string]bool)
		for _, y := range slices.Sorted(maps.Keys(res.ByYear)) {
			id := res.ByYear[y]
			if seen[id] {
				continue
			}
			seen[id] = true
			nested.Content = append(nested.Content, intKey(y), quoted(id))
		}
		root.Content = append(root.Content, codeKey(code), nested)
	}
	return encodeYAML(w, root)
}
