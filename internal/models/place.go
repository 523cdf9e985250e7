// Package models defines core data structures for places, intents, scored results and request state.
package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
}

// OpenState is the tri-state opening status reported by a provider.
// The zero value is OpenUnknown; the core never infers a value the provider did not report.
type OpenState int8

const (
	OpenUnknown OpenState = iota
	OpenTrue
	OpenFalse
)

func (o OpenState) String() string {
	switch o {
	case OpenTrue:
		return "true"
	case OpenFalse:
		return "false"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the state as true, false or "UNKNOWN".
func (o OpenState) MarshalJSON() ([]byte, error) {
	switch o {
	case OpenTrue:
		return []byte("true"), nil
	case OpenFalse:
		return []byte("false"), nil
	default:
		return []byte(`"UNKNOWN"`), nil
	}
}

// UnmarshalJSON accepts true, false, null or a string.
func (o *OpenState) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return o.set(v)
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (o *OpenState) UnmarshalYAML(node *yaml.Node) error {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return err
	}
	return o.set(v)
}

func (o *OpenState) set(v interface{}) error {
	switch t := v.(type) {
	case nil:
		*o = OpenUnknown
	case bool:
		if t {
			*o = OpenTrue
		} else {
			*o = OpenFalse
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "open", "yes":
			*o = OpenTrue
		case "false", "closed", "no":
			*o = OpenFalse
		case "unknown", "":
			*o = OpenUnknown
		default:
			return fmt.Errorf("invalid open state %q", t)
		}
	default:
		return fmt.Errorf("invalid open state %v", v)
	}
	return nil
}

// Place is a raw record returned by a place provider.
type Place struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Location    LatLng    `json:"location" yaml:"location"`
	Address     string    `json:"address,omitempty" yaml:"address"`
	Category    string    `json:"category,omitempty" yaml:"category"`
	Cuisines    []string  `json:"cuisines,omitempty" yaml:"cuisines"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags"`
	Rating      *float64  `json:"rating,omitempty" yaml:"rating"`
	ReviewCount *int      `json:"reviewCount,omitempty" yaml:"review_count"`
	PriceLevel  *int      `json:"priceLevel,omitempty" yaml:"price_level"`
	OpenNow     OpenState `json:"openNow" yaml:"open_now"`
}

// Granularity describes how precise a resolved location is.
type Granularity string

const (
	GranularityStreet       Granularity = "street"
	GranularityNeighborhood Granularity = "neighborhood"
	GranularityCity         Granularity = "city"
	GranularityUnknown      Granularity = "unknown"
)

// ResolvedLocation is the result of geocoding free-form location text.
type ResolvedLocation struct {
	Label       string      `json:"label"`
	Center      LatLng      `json:"center"`
	Granularity Granularity `json:"granularity"`
}
