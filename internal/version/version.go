// Package version tracks how region names change across division surveys
// and resolves externally supplied names back to region IDs.
package version

import (
	"maps"
	"slices"
	"strings"

	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/store"
	"github.com/sells-group/gdivir/internal/textnorm"
)

// Table is a version-era table: the raw names every region ID carried in
// each era.
type Table struct {
	// Eras are the era labels in ascending order.
	Eras    []int                `json:"eras"`
	Entries []store.VersionEntry `json:"entries"`
	// Mislabeled lists eras whose names were taken from a survey with a
	// different name set than the survey the era is labeled with.
	Mislabeled []int `json:"mislabeled,omitempty"`
}

// NameCounts returns how many named IDs each era holds.
func (t *Table) NameCounts() map[int]int {
	counts := make(map[int]int, len(t.Eras))
	for _, e := range t.Entries {
		counts[e.EraYear]++
	}
	return counts
}

// Build derives the version-era table of regions. Names are pivoted into
// one row per survey year and normalized; every distinct normalized row
// is an era. An era is labeled with the first year its row occurs in and
// takes its raw names from the year of the matching last occurrence,
// pairing both lists in order.
func Build(regions []model.Region, nameOf func(model.Region) string) *Table {
	raw := make(map[int]map[string]string)
	for _, r := range regions {
		name := nameOf(r)
		if name == "" {
			continue
		}
		if raw[r.Year] == nil {
			raw[r.Year] = make(map[string]string)
		}
		raw[r.Year][r.ID()] = name
	}

	years := slices.Sorted(maps.Keys(raw))
	keys := make(map[int]string, len(years))
	for _, y := range years {
		keys[y] = rowKey(raw[y])
	}

	var first []int
	seen := make(map[string]bool)
	for _, y := range years {
		if !seen[keys[y]] {
			seen[keys[y]] = true
			first = append(first, y)
		}
	}

	var last []int
	clear(seen)
	for i := len(years) - 1; i >= 0; i-- {
		if y := years[i]; !seen[keys[y]] {
			seen[keys[y]] = true
			last = append(last, y)
		}
	}
	slices.Reverse(last)

	t := &Table{Eras: first}
	for i, era := range first {
		source := last[i]
		if keys[source] != keys[era] {
			t.Mislabeled = append(t.Mislabeled, era)
		}
		for _, id := range slices.Sorted(maps.Keys(raw[source])) {
			t.Entries = append(t.Entries, store.VersionEntry{EraYear: era, RegionID: id, Name: raw[source][id]})
		}
	}
	return t
}

// fromEntries rebuilds a Table from stored entries.
func fromEntries(entries []store.VersionEntry) *Table {
	t := &Table{Entries: entries}
	for _, e := range entries {
		if !slices.Contains(t.Eras, e.EraYear) {
			t.Eras = append(t.Eras, e.EraYear)
		}
	}
	slices.Sort(t.Eras)
	return t
}

func rowKey(names map[string]string) string {
	var sb strings.Builder
	for _, id := range slices.Sorted(maps.Keys(names)) {
		sb.WriteString(id)
		sb.WriteByte(0)
		sb.WriteString(textnorm.Normalize(names[id]))
		sb.WriteByte(1)
	}
	return sb.String()
}
