package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gdivir/internal/metadata"
	"github.com/sells-group/gdivir/internal/model"
	"github.com/sells-group/gdivir/internal/textnorm"
)

// Raw column names.
const (
	colID               = "ID"
	colProvinceID       = "Province_ID"
	colProvinceName     = "Province_Name"
	colCountyID         = "County_ID"
	colCountyName       = "County_Name"
	colDistrictID       = "District_ID"
	colDistrictName     = "District_Name"
	colRuralDistrictID  = "Rural_District_ID"
	colRuralDistrict    = "Rural_District_Name"
	colRDOrCityID       = "Rural_District_or_City_ID"
	colRDOrCityName     = "Rural_District_or_City_Name"
	colCityID           = "City_ID"
	colCityName         = "City_Name"
	colVillageID        = "Village_ID"
	colVillageName      = "Village_Name"
	colRegionType       = "Region_Type"
	colRegionName       = "Region_Name"
	colDIAG             = "DIAG"
	colHouseholdCount   = "Household_Count"
	colPopulation       = "Population"
	nonResidentDistrict = "99"
)

// cityDistrictMarker is the word "district" as used in municipal zone names.
const cityDistrictMarker = "\u0645\u0646\u0637\u0642\u0647"

// villagePrefixYears are the inclusive year ranges whose village codes
// carry a three-digit prefix repeating the parent code.
var villagePrefixYears = map[model.Dataset][2]int{
	model.DatasetGeographicalDivisions: {1365, 1385},
	model.DatasetCensusResults:         {1365, 1390},
}

var digitRunRe = regexp.MustCompile(`[0-9]+`)

// Cleaner turns raw tables into snapshot rows.
type Cleaner struct {
	meta *metadata.Metadata
}

// NewCleaner creates a Cleaner that reads ID layouts from meta.
func NewCleaner(meta *metadata.Metadata) *Cleaner {
	return &Cleaner{meta: meta}
}

// Stats counts rows dropped while cleaning.
type Stats struct {
	Read          int
	MissingID     int
	UnknownType   int
	Kept          int
	NonResidents  int
	CityDistricts int
}

// Clean normalizes a raw table of dataset for year. Rows without a code
// chain or with an unrecognized region type are dropped and counted.
func (c *Cleaner) Clean(dataset model.Dataset, year int, t *Table) ([]model.Region, Stats, error) {
	stats := Stats{Read: len(t.Rows)}
	records := t.Records()

	cols := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		cols[col] = true
	}

	if cols[colID] {
		kept := records[:0]
		for _, rec := range records {
			if strings.TrimSpace(rec[colID]) == "" {
				stats.MissingID++
				continue
			}
			kept = append(kept, rec)
		}
		records = kept
	}

	for _, rec := range records {
		cleanRecord(rec)
	}

	if !cols[colProvinceID] {
		if !cols[colID] {
			return nil, stats, eris.Errorf("ingest: %s %d has neither %s nor %s", dataset, year, colProvinceID, colID)
		}
		spec, err := c.meta.TableVersion(dataset, year)
		if err != nil {
			return nil, stats, err
		}
		if len(spec.ID) == 0 {
			return nil, stats, eris.Errorf("ingest: %s %d layout has no id ranges", dataset, year)
		}
		for col, rng := range spec.ID {
			for _, rec := range records {
				rec[col] = sliceCode(rec[colID], rng[0], rng[1])
			}
			cols[col] = true
		}
	}

	if !cols[colRDOrCityID] {
		if !cols[colRuralDistrictID] {
			return nil, stats, eris.Errorf("ingest: %s %d has no %s", dataset, year, colRuralDistrictID)
		}
		for _, rec := range records {
			rec[colRDOrCityID] = firstNonEmpty(rec[colRuralDistrictID], rec[colCityID])
		}
	}

	if rng, ok := villagePrefixYears[dataset]; ok && year >= rng[0] && year <= rng[1] {
		for _, rec := range records {
			rec[colVillageID] = sliceCode(rec[colVillageID], 3, len(rec[colVillageID]))
		}
	}

	if !cols[colVillageName] {
		for _, rec := range records {
			if rt := rec[colRegionType]; rt == "6" || rt == "8" {
				rec[colVillageName] = rec[colRegionName]
			}
		}
	}

	if !cols[colRDOrCityName] {
		switch {
		case cols[colCityName]:
			for _, rec := range records {
				rec[colRDOrCityName] = firstNonEmpty(rec[colRuralDistrict], rec[colCityName])
			}
		case cols[colRegionType] && cols[colRegionName]:
			for _, rec := range records {
				name := rec[colRuralDistrict]
				if name == "" && rec[colRegionType] == "5" {
					name = rec[colRegionName]
				}
				rec[colRDOrCityName] = name
			}
		default:
			return nil, stats, eris.Errorf("ingest: %s %d cannot derive %s", dataset, year, colRDOrCityName)
		}
	}

	if !cols[colRegionType] {
		for _, rec := range records {
			rec[colRegionType] = inferRegionType(rec)
		}
	}

	out := make([]model.Region, 0, len(records))
	for _, rec := range records {
		r := toRegion(year, rec)
		if r.ID() == "" {
			stats.MissingID++
			continue
		}
		rt, err := model.ParseRegionType(rec[colRegionType])
		if err != nil {
			stats.UnknownType++
			continue
		}
		r.Type = refineRegionType(rt, r)
		switch r.Type {
		case model.RegionTypeNonResident:
			stats.NonResidents++
		case model.RegionTypeCityDistrict:
			stats.CityDistricts++
		}
		out = append(out, r)
	}
	stats.Kept = len(out)
	return out, stats, nil
}

// cleanRecord applies the column-class cleaning rules: names are run
// through the text normalizer, codes keep only their digits and counts
// keep their first digit run.
func cleanRecord(rec Record) {
	for col, v := range rec {
		switch {
		case col == colHouseholdCount || col == colPopulation:
			rec[col] = digitRunRe.FindString(asciiDigits(v))
		case strings.Contains(col, "ID") || col == colRegionType || col == colDIAG:
			rec[col] = digitsOnly(v)
		case strings.Contains(col, "Name"):
			rec[col] = textnorm.Clean(v)
		}
	}
}

// asciiDigits maps Persian and Arabic-Indic digits to ASCII.
func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '\u06f0' && r <= '\u06f9':
			return '0' + (r - '\u06f0')
		case r >= '\u0660' && r <= '\u0669':
			return '0' + (r - '\u0660')
		}
		return r
	}, s)
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, asciiDigits(s))
}

// sliceCode is a bounds-clamped substring of s.
func sliceCode(s string, start, end int) string {
	start = max(0, min(start, len(s)))
	end = max(start, min(end, len(s)))
	return s[start:end]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// inferRegionType derives the numeric survey code for tables that predate
// the explicit type column. Later rules override earlier ones.
func inferRegionType(rec Record) string {
	rt := ""
	if rec[colDIAG] != "" {
		rt = "8"
	}
	if (rec[colVillageName] != "" || rec[colVillageID] != "") && rt == "" {
		rt = "6"
	}
	if rec[colCityName] != "" {
		rt = "5"
	}
	if (rec[colRuralDistrict] != "" || rec[colRDOrCityID] != "") && rt == "" {
		rt = "4"
	}
	if rec[colCountyName] == "" {
		rt = "1"
	}
	if rec[colDistrictName] == "" && rec[colDistrictID] == "" && rt == "" {
		rt = "2"
	}
	if rt == "" {
		rt = "3"
	}
	return rt
}

// refineRegionType splits cities into municipal districts and virtual
// districts, and marks the non-resident pseudo district.
func refineRegionType(rt model.RegionType, r model.Region) model.RegionType {
	if rt == model.RegionTypeCity {
		name := r.RuralDistrictOrCityName
		switch {
		case strings.IndexFunc(name, unicode.IsDigit) >= 0, strings.Contains(name, cityDistrictMarker):
			rt = model.RegionTypeCityDistrict
		case r.VillageName != "" || r.VillageID != "":
			rt = model.RegionTypeCityVirtualDistrict
		}
	}
	if r.DistrictID == nonResidentDistrict {
		rt = model.RegionTypeNonResident
	}
	return rt
}

func toRegion(year int, rec Record) model.Region {
	return model.Region{
		Year:                    year,
		ProvinceID:              rec[colProvinceID],
		ProvinceName:            rec[colProvinceName],
		CountyID:                rec[colCountyID],
		CountyName:              rec[colCountyName],
		DistrictID:              rec[colDistrictID],
		DistrictName:            rec[colDistrictName],
		RuralDistrictOrCityID:   rec[colRDOrCityID],
		RuralDistrictOrCityName: rec[colRDOrCityName],
		VillageID:               rec[colVillageID],
		VillageName:             rec[colVillageName],
		HouseholdCount:          parseCount(rec[colHouseholdCount]),
		Population:              parseCount(rec[colPopulation]),
	}
}

func parseCount(s string) *int64 {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
