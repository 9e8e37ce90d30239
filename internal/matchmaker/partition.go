package matchmaker

import (
	"maps"
	"slices"

	"github.com/sells-group/gdivir/internal/model"
)

// CodeSet is a sorted set of base-region codes.
type CodeSet []string

// NewCodeSet returns the sorted, deduplicated set of codes.
func NewCodeSet(codes ...string) CodeSet {
	s := slices.Clone(codes)
	slices.Sort(s)
	return CodeSet(slices.Compact(s))
}

// Equal reports whether both sets hold the same codes.
func (s CodeSet) Equal(o CodeSet) bool { return slices.Equal(s, o) }

// Map returns the set with every code replaced through m; codes missing
// from m are kept.
func (s CodeSet) Map(m map[string]string) CodeSet {
	if len(m) == 0 {
		return s
	}
	out := make([]string, len(s))
	for i, c := range s {
		if r, ok := m[c]; ok {
			c = r
		}
		out[i] = c
	}
	return NewCodeSet(out...)
}

// Partition maps an internal year to the base-code set each region ID of
// that year covers.
type Partition map[int]map[string]CodeSet

// IdentityPartition builds the partition of level from division rows:
// every region of the level's type covers only its own code.
func IdentityPartition(regions []model.Region, level model.Level) Partition {
	p := make(Partition)
	for _, r := range regions {
		if r.Type != level.RegionType() {
			continue
		}
		code := level.Code(r.ProvinceID, r.CountyID, r.DistrictID, r.RuralDistrictOrCityID)
		if code == "" {
			continue
		}
		if p[r.Year] == nil {
			p[r.Year] = make(map[string]CodeSet)
		}
		p[r.Year][code] = CodeSet{code}
	}
	return p
}

// Era is a run of consecutive years sharing one partition.
type Era struct {
	Year    int                `json:"year"`
	Years   []int              `json:"years"`
	Members map[string]CodeSet `json:"members"`
}

// Eras collapses consecutive years with identical partitions. Each era is
// keyed by its first year; eras are returned in ascending order.
func (p Partition) Eras() []Era {
	years := slices.Sorted(maps.Keys(p))
	var eras []Era
	for _, y := range years {
		if n := len(eras); n > 0 && samePartition(eras[n-1].Members, p[y]) {
			eras[n-1].Years = append(eras[n-1].Years, y)
			continue
		}
		eras = append(eras, Era{Year: y, Years: []int{y}, Members: p[y]})
	}
	return eras
}

func samePartition(a, b map[string]CodeSet) bool {
	return maps.EqualFunc(a, b, CodeSet.Equal)
}

// Declaration maps an external dataset year to the codes the dataset uses
// that year and the base codes each covers. An empty cover set means the
// code covers only itself.
type Declaration map[int]map[string]CodeSet

// Years returns the declared dataset years in ascending order.
func (d Declaration) Years() []int {
	return slices.Sorted(maps.Keys(d))
}

// covers returns the cover set of code in year.
func (d Declaration) covers(year int, code string) CodeSet {
	if s := d[year][code]; len(s) > 0 {
		return s
	}
	return CodeSet{code}
}

// DeclarationSet holds an external dataset's province and county
// declarations. Counties are reconciled against the province standards,
// so both are needed for the county level.
type DeclarationSet struct {
	Provinces Declaration
	Counties  Declaration
}
