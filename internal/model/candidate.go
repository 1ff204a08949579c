package model

import (
	"strconv"
	"strings"
)

// External geocoding providers plus the synthetic sources written by the
// pipeline itself.
const (
	ProviderGoogle       = "google"
	ProviderGooglePlaces = "google_places"
	ProviderBing         = "bing"
	ProviderHere         = "here"
	ProviderOSM          = "osm"
	ProviderTomtom       = "tomtom"
	ProviderMapbox       = "mapbox"
	ProviderMapquest     = "mapquest"
	ProviderArcgis       = "arcgis"
	ProviderBaidu        = "baidu"
	ProviderGeonames     = "geonames"

	ProviderTrivago      = "trivago"
	ProviderCityPolygons = "city_polygons"
)

// KnownProviders lists the external providers accepted in geocoder tasks.
var KnownProviders = []string{
	ProviderGoogle,
	ProviderGooglePlaces,
	ProviderBing,
	ProviderHere,
	ProviderOSM,
	ProviderTomtom,
	ProviderMapbox,
	ProviderMapquest,
	ProviderArcgis,
	ProviderBaidu,
	ProviderGeonames,
}

// ConsolidatedProvider returns the provider name of the winner row for the
// given environment.
func ConsolidatedProvider(environment string) string {
	return "consolidated_" + environment
}

// IsConsolidated reports whether a provider name marks a winner row. Both the
// current "consolidated_" form and the legacy "consolidator_" alias are
// recognised so that old rows never re-enter the candidate pool.
func IsConsolidated(provider string) bool {
	return strings.HasPrefix(provider, "consolidated") || strings.HasPrefix(provider, "consolidator")
}

// Candidate is one coordinate proposal for an entity, attributed to exactly
// one provider. It is the row stored under the (entity, provider) key.
type Candidate struct {
	Entity     string     `json:"entity"`
	EntityID   uint64     `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
	Provider   string     `json:"provider"`

	Longitude *float64 `json:"longitude,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`

	// Opaque provider-supplied quality indicators, consumed only by rulesets.
	Accuracy   string   `json:"accuracy,omitempty"`
	Confidence string   `json:"confidence,omitempty"`
	Quality    string   `json:"quality,omitempty"`
	Score      *float64 `json:"score,omitempty"`

	City        string `json:"city,omitempty"`
	CountryCode string `json:"country_code,omitempty"`

	BatchID string         `json:"batch_id,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`

	// Timestamp is a unix-second TTL marker, zero when the row is permanent.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Key returns the composite store key for this candidate.
func (c Candidate) Key() string {
	if c.Entity != "" {
		return c.Entity
	}
	return EntityKey(c.EntityType, c.EntityID)
}

// HasCoordinate reports whether both longitude and latitude are set.
func (c Candidate) HasCoordinate() bool {
	return c.Longitude != nil && c.Latitude != nil
}

// RuleField returns the candidate's value for a ruleset field name. The
// second return is false when the field is unknown or unset; unset fields
// never satisfy a rule.
func (c Candidate) RuleField(name string) (string, bool) {
	var v string
	switch name {
	case "provider":
		v = c.Provider
	case "accuracy":
		v = c.Accuracy
	case "confidence":
		v = c.Confidence
	case "quality":
		v = c.Quality
	case "city":
		v = c.City
	case "country_code":
		v = c.CountryCode
	case "score":
		if c.Score != nil {
			v = FormatDecimal(*c.Score)
		}
	case "longitude":
		if c.Longitude != nil {
			v = FormatDecimal(*c.Longitude)
		}
	case "latitude":
		if c.Latitude != nil {
			v = FormatDecimal(*c.Latitude)
		}
	}
	return v, v != ""
}

// FormatDecimal renders a float as the shortest decimal string that
// round-trips exactly. Coordinates are stored in this form to avoid floating
// point drift across read-modify-write cycles.
func FormatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseDecimal is the inverse of FormatDecimal.
func ParseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// Float returns a pointer to v, for literal candidate construction.
func Float(v float64) *float64 { return &v }
