package metadata

import (
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gdivir/internal/model"
)

// ErrYearNotFound is returned when a year has no neighbour in the requested
// direction or is not part of the timeline at all.
var ErrYearNotFound = eris.New("metadata: year not found")

// Timeline is the ordered set of years for which a dataset has data.
type Timeline struct {
	dataset model.Dataset
	years   []int
}

// NewTimeline builds a timeline from the given years. Duplicates are
// dropped and the years sorted ascending.
func NewTimeline(dataset model.Dataset, years []int) *Timeline {
	ys := slices.Clone(years)
	slices.Sort(ys)
	return &Timeline{dataset: dataset, years: slices.Compact(ys)}
}

// Dataset returns the dataset the timeline belongs to.
func (t *Timeline) Dataset() model.Dataset { return t.dataset }

// Years returns a copy of the ordered years.
func (t *Timeline) Years() []int { return slices.Clone(t.years) }

// Len returns the number of years.
func (t *Timeline) Len() int { return len(t.years) }

// Contains reports whether year is part of the timeline.
func (t *Timeline) Contains(year int) bool {
	_, ok := slices.BinarySearch(t.years, year)
	return ok
}

// Next returns the year following year. It fails for the last year and
// for years not in the timeline.
func (t *Timeline) Next(year int) (int, error) {
	i, ok := slices.BinarySearch(t.years, year)
	if !ok || i == len(t.years)-1 {
		return 0, eris.Wrapf(ErrYearNotFound, "%s: no year after %d", t.dataset, year)
	}
	return t.years[i+1], nil
}

// Previous returns the year preceding year. It fails for the first year
// and for years not in the timeline.
func (t *Timeline) Previous(year int) (int, error) {
	i, ok := slices.BinarySearch(t.years, year)
	if !ok || i == 0 {
		return 0, eris.Wrapf(ErrYearNotFound, "%s: no year before %d", t.dataset, year)
	}
	return t.years[i-1], nil
}

// Nearest returns the timeline year closest to year. When two years are
// equally close, preferLater picks the later one, otherwise the earlier.
func (t *Timeline) Nearest(year int, preferLater bool) (int, error) {
	if len(t.years) == 0 {
		return 0, eris.Wrapf(ErrYearNotFound, "%s: empty timeline", t.dataset)
	}
	best := t.years[0]
	bestDist := abs(best - year)
	for _, y := range t.years[1:] {
		d := abs(y - year)
		switch {
		case d < bestDist:
			best, bestDist = y, d
		case d == bestDist && preferLater:
			// years are ascending, so a tie here is always later
			best = y
		}
	}
	return best, nil
}

// First returns the earliest year.
func (t *Timeline) First() (int, error) {
	if len(t.years) == 0 {
		return 0, eris.Wrapf(ErrYearNotFound, "%s: empty timeline", t.dataset)
	}
	return t.years[0], nil
}

// Last returns the latest year.
func (t *Timeline) Last() (int, error) {
	if len(t.years) == 0 {
		return 0, eris.Wrapf(ErrYearNotFound, "%s: empty timeline", t.dataset)
	}
	return t.years[len(t.years)-1], nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
