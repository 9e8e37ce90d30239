package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Dataset identifies an internal survey series.
type Dataset string

const (
	DatasetGeographicalDivisions Dataset = "geographical_divisions"
	DatasetCensusResults         Dataset = "census_results"
)

// AllDatasets returns the internal datasets.
func AllDatasets() []Dataset {
	return []Dataset{DatasetGeographicalDivisions, DatasetCensusResults}
}

// ParseDataset converts a dataset name, accepting the short forms
// "divisions" and "census".
func ParseDataset(s string) (Dataset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "geographical_divisions", "divisions":
		return DatasetGeographicalDivisions, nil
	case "census_results", "census":
		return DatasetCensusResults, nil
	default:
		return "", eris.Errorf("model: unknown dataset %q (valid: geographical_divisions, census_results)", s)
	}
}

// ExternalDataset identifies a dataset with its own regional coding that
// must be reconciled against the internal divisions.
type ExternalDataset string

const (
	// ExternalHBSIR is the Household Budget Survey of Iran.
	ExternalHBSIR ExternalDataset = "hbsir"
)

// AllExternalDatasets returns the known external datasets.
func AllExternalDatasets() []ExternalDataset {
	return []ExternalDataset{ExternalHBSIR}
}

// ParseExternalDataset validates an external dataset name.
func ParseExternalDataset(s string) (ExternalDataset, error) {
	for _, d := range AllExternalDatasets() {
		if strings.EqualFold(string(d), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return "", eris.Errorf("model: unknown external dataset %q", s)
}
