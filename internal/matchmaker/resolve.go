package matchmaker

import (
	"context"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdivir/internal/model"
)

// TieBreak decides between old codes that contributed the same population
// to a new code.
type TieBreak int

const (
	// TieBreakSmallestOldCode selects the lexicographically smallest old code.
	TieBreakSmallestOldCode TieBreak = iota
	// TieBreakLargestOldCode selects the lexicographically largest old code.
	TieBreakLargestOldCode
)

func (p TieBreak) String() string {
	switch p {
	case TieBreakSmallestOldCode:
		return "smallest_old_code"
	case TieBreakLargestOldCode:
		return "largest_old_code"
	default:
		return "unknown"
	}
}

// ParseTieBreak converts a configured tie-break policy name.
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "smallest_old_code":
		return TieBreakSmallestOldCode, nil
	case "largest_old_code":
		return TieBreakLargestOldCode, nil
	default:
		return 0, eris.Errorf("matchmaker: unknown tie break %q", s)
	}
}

func (p TieBreak) compare(a, b string) int {
	if p == TieBreakLargestOldCode {
		return strings.Compare(b, a)
	}
	return strings.Compare(a, b)
}

// Mapping maps a new code to the old code it descends from.
type Mapping map[string]string

// DocumentationRow is a transformation row annotated with the resolver's
// decision.
type DocumentationRow struct {
	TransformationRow
	Selected bool `json:"selected"`
	Tied     bool `json:"tied,omitempty"`
}

// Documentation is a transformation table with every row annotated, in
// resolution order.
type Documentation struct {
	Year         int                `json:"year"`
	PreviousYear int                `json:"previous_year"`
	Level        model.Level        `json:"level"`
	Policy       TieBreak           `json:"-"`
	Rows         []DocumentationRow `json:"rows"`
}

// ConflictKind classifies a departure from a one-to-one mapping.
type ConflictKind int

const (
	// ConflictSplit is an old code selected by several new codes.
	ConflictSplit ConflictKind = iota + 1
	// ConflictMerge is a new code with several contributing old codes.
	ConflictMerge
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictSplit:
		return "split"
	case ConflictMerge:
		return "merge"
	default:
		return "unknown"
	}
}

func (k ConflictKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Conflict names the codes involved in a split or merge. For a split
// Code is the old code and Others the new codes selecting it; for a
// merge Code is the new code and Others its contributing old codes.
type Conflict struct {
	Kind   ConflictKind `json:"kind"`
	Code   string       `json:"code"`
	Others []string     `json:"others"`
}

// Document sorts the rows of t by new code, descending shared population
// and then policy, and marks the first row of every new code as selected.
// Rows whose population equals the selected row's are marked tied.
func Document(t *Table, policy TieBreak) *Documentation {
	doc := &Documentation{
		Year:         t.Year,
		PreviousYear: t.PreviousYear,
		Level:        t.Level,
		Policy:       policy,
		Rows:         make([]DocumentationRow, len(t.Rows)),
	}
	for i, r := range t.Rows {
		doc.Rows[i] = DocumentationRow{TransformationRow: r}
	}
	slices.SortStableFunc(doc.Rows, func(a, b DocumentationRow) int {
		if c := strings.Compare(a.NewCode, b.NewCode); c != 0 {
			return c
		}
		if a.SharedPopulation != b.SharedPopulation {
			if a.SharedPopulation > b.SharedPopulation {
				return -1
			}
			return 1
		}
		return policy.compare(a.OldCode, b.OldCode)
	})

	var selected *DocumentationRow
	for i := range doc.Rows {
		r := &doc.Rows[i]
		if selected == nil || selected.NewCode != r.NewCode {
			r.Selected = true
			selected = r
			continue
		}
		if r.SharedPopulation == selected.SharedPopulation {
			selected.Tied = true
			r.Tied = true
		}
	}
	return doc
}

// Ties returns the new codes whose selection was decided by the policy.
func (d *Documentation) Ties() []string {
	var codes []string
	for _, r := range d.Rows {
		if r.Selected && r.Tied {
			codes = append(codes, r.NewCode)
		}
	}
	return codes
}

// Mapping returns the selected old code of every new code.
func (d *Documentation) Mapping() Mapping {
	m := make(Mapping)
	for _, r := range d.Rows {
		if r.Selected {
			m[r.NewCode] = r.OldCode
		}
	}
	return m
}

// OneToOneConflicts lists the splits and merges that keep the selected
// mapping from being one-to-one, splits first, each ordered by code.
func (d *Documentation) OneToOneConflicts() []Conflict {
	selectedBy := make(map[string][]string)
	contributors := make(map[string][]string)
	for _, r := range d.Rows {
		contributors[r.NewCode] = append(contributors[r.NewCode], r.OldCode)
		if r.Selected {
			selectedBy[r.OldCode] = append(selectedBy[r.OldCode], r.NewCode)
		}
	}

	var conflicts []Conflict
	for _, old := range sortedKeys(selectedBy) {
		if news := selectedBy[old]; len(news) > 1 {
			slices.Sort(news)
			conflicts = append(conflicts, Conflict{Kind: ConflictSplit, Code: old, Others: news})
		}
	}
	for _, cur := range sortedKeys(contributors) {
		if olds := contributors[cur]; len(olds) > 1 {
			olds = slices.Clone(olds)
			slices.Sort(olds)
			conflicts = append(conflicts, Conflict{Kind: ConflictMerge, Code: cur, Others: olds})
		}
	}
	return conflicts
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Resolver turns transformation tables into predecessor mappings.
type Resolver struct {
	matcher *Matcher
	policy  TieBreak
	log     *zap.Logger
}

// NewResolver creates a Resolver breaking ties with policy.
func NewResolver(matcher *Matcher, policy TieBreak) *Resolver {
	return &Resolver{
		matcher: matcher,
		policy:  policy,
		log:     zap.L().With(zap.String("component", "matchmaker.resolve")),
	}
}

// Matcher returns the matcher the resolver reads tables from.
func (r *Resolver) Matcher() *Matcher { return r.matcher }

// ManyToOneDocumentation returns the annotated transformation table
// between the previous division year and year at level.
func (r *Resolver) ManyToOneDocumentation(ctx context.Context, year int, level model.Level) (*Documentation, error) {
	t, err := r.matcher.TransformationTable(ctx, year, level)
	if err != nil {
		return nil, err
	}
	doc := Document(t, r.policy)
	if ties := doc.Ties(); len(ties) > 0 {
		r.log.Warn("tied predecessors resolved by policy",
			zap.Int("year", year),
			zap.Stringer("level", level),
			zap.Stringer("policy", r.policy),
			zap.Strings("new_codes", ties),
		)
	}
	return doc, nil
}

// ManyToOne maps every new code at level in year to the old code that
// contributed most of its population. New codes without matched units
// have no entry.
func (r *Resolver) ManyToOne(ctx context.Context, year int, level model.Level) (Mapping, error) {
	doc, err := r.ManyToOneDocumentation(ctx, year, level)
	if err != nil {
		return nil, err
	}
	return doc.Mapping(), nil
}

// OneToOneDocumentation returns the same annotated table as
// ManyToOneDocumentation and logs the splits and merges it contains.
// Callers inspect them with OneToOneConflicts.
func (r *Resolver) OneToOneDocumentation(ctx context.Context, year int, level model.Level) (*Documentation, error) {
	doc, err := r.ManyToOneDocumentation(ctx, year, level)
	if err != nil {
		return nil, err
	}
	if conflicts := doc.OneToOneConflicts(); len(conflicts) > 0 {
		r.log.Debug("mapping is not one-to-one",
			zap.Int("year", year),
			zap.Stringer("level", level),
			zap.Int("conflicts", len(conflicts)),
		)
	}
	return doc, nil
}
