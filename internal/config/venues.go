package config

import (
	"os"

	yaml "gopkg.in/yaml.v2"
)

// VenueMap is the Euronext-style feed's static venue-name→MIC table
// (spec.md §4.3, Feed A). Loaded with yaml.v2 deliberately, distinct from
// config.yaml's yaml.v3: this table is a rarely-changed reference file,
// not live runtime config, and the teacher's go.mod already carries both
// major versions of the YAML library.
type VenueMap map[string]string

// DefaultVenues is used when no venues file is configured; a small,
// illustrative starter set covering the major Euronext markets.
func DefaultVenues() VenueMap {
	return VenueMap{
		"Euronext Paris":     "XPAR",
		"Euronext Amsterdam": "XAMS",
		"Euronext Brussels":  "XBRU",
		"Euronext Lisbon":    "XLIS",
		"Euronext Dublin":    "XMSM",
		"Euronext Milan":     "MTAA",
	}
}

// LoadVenues reads a venue→MIC YAML file. A missing file is not an error:
// LoadVenues returns DefaultVenues instead.
func LoadVenues(path string) (VenueMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultVenues(), nil
		}
		return nil, err
	}
	var m VenueMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
