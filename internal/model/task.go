package model

// GeocoderTask asks the dispatcher to geocode one entity with one provider.
type GeocoderTask struct {
	Provider   string     `json:"provider"`
	EntityID   uint64     `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
	BatchID    string     `json:"batch_id,omitempty"`
	Address    Address    `json:"address"`
}

// Key returns the composite entity key of the task.
func (t GeocoderTask) Key() string {
	return EntityKey(t.EntityType, t.EntityID)
}

// ConsolidatorTask asks the consolidator to recompute the winner for one
// entity.
type ConsolidatorTask struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   uint64     `json:"entity_id"`
	BatchID    string     `json:"batch_id,omitempty"`
}

// Key returns the composite entity key of the task.
func (t ConsolidatorTask) Key() string {
	return EntityKey(t.EntityType, t.EntityID)
}

// ConsolidationMeta carries the winner's locality fields on the output
// stream.
type ConsolidationMeta struct {
	City        string `json:"city,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// Consolidation is the record published for a newly elected winner.
type Consolidation struct {
	Entity     string            `json:"entity"`
	EntityID   uint64            `json:"entity_id"`
	EntityType EntityType        `json:"entity_type"`
	BatchID    string            `json:"batch_id,omitempty"`
	Longitude  float64           `json:"longitude"`
	Latitude   float64           `json:"latitude"`
	Score      float64           `json:"score"`
	Meta       ConsolidationMeta `json:"meta"`
}
