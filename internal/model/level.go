package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Level is an ancestor level for which region transformations between two
// survey years can be measured.
type Level int

const (
	LevelProvince Level = iota + 1
	LevelCounty
	LevelDistrict
	LevelRuralDistrict
)

// AllLevels returns the levels from coarsest to finest.
func AllLevels() []Level {
	return []Level{LevelProvince, LevelCounty, LevelDistrict, LevelRuralDistrict}
}

// String returns the region-type label of the level.
func (l Level) String() string {
	switch l {
	case LevelProvince:
		return "Province"
	case LevelCounty:
		return "County"
	case LevelDistrict:
		return "District"
	case LevelRuralDistrict:
		return "Rural_District"
	default:
		return "unknown"
	}
}

// MarshalText renders the level by its label in JSON.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// RegionType returns the region type whose rows define regions at this level.
func (l Level) RegionType() RegionType {
	switch l {
	case LevelProvince:
		return RegionTypeProvince
	case LevelCounty:
		return RegionTypeCounty
	case LevelDistrict:
		return RegionTypeDistrict
	default:
		return RegionTypeRuralDistrict
	}
}

// ParseLevel converts "province", "county", "district" or "rural_district".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "province":
		return LevelProvince, nil
	case "county":
		return LevelCounty, nil
	case "district":
		return LevelDistrict, nil
	case "rural_district", "rural-district":
		return LevelRuralDistrict, nil
	default:
		return 0, eris.Errorf("model: unknown level %q (valid: province, county, district, rural_district)", s)
	}
}

// Code returns the ancestor code of the given code chain at this level:
// the chain prefix down to and including the level, so a county code is
// ProvinceID followed by CountyID.
func (l Level) Code(provinceID, countyID, districtID, ruralDistrictOrCityID string) string {
	switch l {
	case LevelProvince:
		return provinceID
	case LevelCounty:
		return provinceID + countyID
	case LevelDistrict:
		return provinceID + countyID + districtID
	default:
		return provinceID + countyID + districtID + ruralDistrictOrCityID
	}
}
