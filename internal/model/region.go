package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// RegionType is the administrative hierarchy level of a surveyed unit.
type RegionType string

const (
	RegionTypeProvince            RegionType = "Province"
	RegionTypeCounty              RegionType = "County"
	RegionTypeDistrict            RegionType = "District"
	RegionTypeRuralDistrict       RegionType = "Rural_District"
	RegionTypeCity                RegionType = "City"
	RegionTypeCityDistrict        RegionType = "City_District"
	RegionTypeCityVirtualDistrict RegionType = "City_Virtual_District"
	RegionTypeRegularVillage      RegionType = "Regular_Village"
	RegionTypeBlockVillage        RegionType = "Block_Village"
	RegionTypeNonResident         RegionType = "Non_Resident"
)

// AllRegionTypes returns every region type in hierarchy order.
func AllRegionTypes() []RegionType {
	return []RegionType{
		RegionTypeProvince,
		RegionTypeCounty,
		RegionTypeDistrict,
		RegionTypeRuralDistrict,
		RegionTypeCity,
		RegionTypeCityDistrict,
		RegionTypeCityVirtualDistrict,
		RegionTypeRegularVillage,
		RegionTypeBlockVillage,
		RegionTypeNonResident,
	}
}

// surveyCodes maps the numeric region-type codes used by older surveys.
var surveyCodes = map[string]RegionType{
	"1": RegionTypeProvince,
	"2": RegionTypeCounty,
	"3": RegionTypeDistrict,
	"4": RegionTypeRuralDistrict,
	"5": RegionTypeCity,
	"6": RegionTypeRegularVillage,
	"8": RegionTypeBlockVillage,
}

// ParseRegionType accepts a region type label ("Rural_District") or a
// numeric survey code ("4").
func ParseRegionType(s string) (RegionType, error) {
	s = strings.TrimSpace(s)
	if rt, ok := surveyCodes[s]; ok {
		return rt, nil
	}
	for _, rt := range AllRegionTypes() {
		if strings.EqualFold(string(rt), s) {
			return rt, nil
		}
	}
	return "", eris.Errorf("model: unknown region type %q", s)
}

// IsVillage reports whether the type is a regular or block village.
func (rt RegionType) IsVillage() bool {
	return rt == RegionTypeRegularVillage || rt == RegionTypeBlockVillage
}

// Region is one administrative unit as surveyed in a given year. Censuses
// additionally carry household and population counts.
type Region struct {
	Year                    int        `json:"year"`
	ProvinceID              string     `json:"province_id"`
	ProvinceName            string     `json:"province_name,omitempty"`
	CountyID                string     `json:"county_id"`
	CountyName              string     `json:"county_name,omitempty"`
	DistrictID              string     `json:"district_id"`
	DistrictName            string     `json:"district_name,omitempty"`
	RuralDistrictOrCityID   string     `json:"rural_district_or_city_id"`
	RuralDistrictOrCityName string     `json:"rural_district_or_city_name,omitempty"`
	VillageID               string     `json:"village_id"`
	VillageName             string     `json:"village_name,omitempty"`
	Type                    RegionType `json:"region_type"`
	HouseholdCount          *int64     `json:"household_count,omitempty"`
	Population              *int64     `json:"population,omitempty"`
}

// ID is the concatenated code chain. It is unique within a year but not
// stable across years.
func (r Region) ID() string {
	return r.ProvinceID + r.CountyID + r.DistrictID + r.RuralDistrictOrCityID + r.VillageID
}

// Name returns the region's own name according to its type.
func (r Region) Name() string {
	switch r.Type {
	case RegionTypeProvince:
		return r.ProvinceName
	case RegionTypeCounty:
		return r.CountyName
	case RegionTypeDistrict:
		return r.DistrictName
	case RegionTypeRegularVillage, RegionTypeBlockVillage:
		return r.VillageName
	default:
		return r.RuralDistrictOrCityName
	}
}

// Int64 returns a pointer to v, for populating nullable counts.
func Int64(v int64) *int64 { return &v }
