// Package model holds the shared domain types of the geocoding pipeline:
// entities, addresses, candidates and the task messages exchanged between
// worker stages.
package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// EntityType tags the kind of entity a candidate belongs to.
type EntityType string

const (
	EntityAccommodation          EntityType = "accommodation"
	EntityCandidateAccommodation EntityType = "candidate_accommodation"
	EntityReferenceAccommodation EntityType = "reference_accommodation"
	EntityPointOfInterest        EntityType = "point_of_interest"
	EntityDestination            EntityType = "destination"
)

// Valid reports whether the tag is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityAccommodation,
		EntityCandidateAccommodation,
		EntityReferenceAccommodation,
		EntityPointOfInterest,
		EntityDestination:
		return true
	}
	return false
}

// EntityKey builds the composite store key "{entity_type}:{entity_id}".
func EntityKey(entityType EntityType, entityID uint64) string {
	return fmt.Sprintf("%s:%d", entityType, entityID)
}

// ValidateCoordinate checks a WGS-84 coordinate pair.
func ValidateCoordinate(longitude, latitude float64) error {
	if longitude < -180 || longitude > 180 {
		return eris.Errorf("model: longitude %g out of range [-180,180]", longitude)
	}
	if latitude < -90 || latitude > 90 {
		return eris.Errorf("model: latitude %g out of range [-90,90]", latitude)
	}
	return nil
}
