// Package router ingests candidate accommodations from the content stream
// and fans them out: trusted coordinates are stored as consolidations right
// away, the rest become geocoder tasks.
package router

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/country"
	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/pb"
)

// DefaultProviders are the geocoding services every untrusted candidate is
// sent to.
var DefaultProviders = []string{
	model.ProviderGoogle,
	model.ProviderOSM,
	model.ProviderArcgis,
	model.ProviderTomtom,
}

// InboundCandidate is one accommodation from the source feed, with its
// country normalised to an alpha-2 code.
type InboundCandidate struct {
	ID          uint64
	Name        string
	Street      string
	District    string
	PostalCode  string
	City        string
	Region      string
	Country     string
	CountryCode string
	Longitude   float64
	Latitude    float64
	Trusted     bool
}

// Key returns the composite entity key of the candidate.
func (c InboundCandidate) Key() string {
	return model.EntityKey(model.EntityCandidateAccommodation, c.ID)
}

// HasCoordinate reports whether the feed supplied a usable coordinate pair.
func (c InboundCandidate) HasCoordinate() bool {
	return c.Longitude != 0 && c.Latitude != 0
}

// Address assembles the geocoder input address. The feed coordinate rides
// along as a guess when present.
func (c InboundCandidate) Address() model.Address {
	a := model.Address{
		Name:        c.Name,
		Street:      c.Street,
		District:    c.District,
		PostalCode:  c.PostalCode,
		City:        c.City,
		Region:      c.Region,
		Country:     c.Country,
		CountryCode: c.CountryCode,
	}
	if c.HasCoordinate() {
		a.Guess = &model.Guess{Longitude: c.Longitude, Latitude: c.Latitude}
	}
	return a
}

// AsConsolidation returns the immediate consolidation row of a trusted
// candidate.
func (c InboundCandidate) AsConsolidation(batchID string) model.Consolidation {
	return model.Consolidation{
		Entity:     c.Key(),
		EntityID:   c.ID,
		EntityType: model.EntityCandidateAccommodation,
		BatchID:    batchID,
		Longitude:  c.Longitude,
		Latitude:   c.Latitude,
		Score:      1.0,
		Meta: model.ConsolidationMeta{
			City:        c.City,
			CountryCode: c.CountryCode,
		},
	}
}

// ParseCandidates decodes the protobuf feed records and normalises their
// countries. Undecodable records are logged and dropped.
func ParseCandidates(payloads [][]byte, mapper *country.Mapper) []InboundCandidate {
	var out []InboundCandidate
	for _, payload := range payloads {
		msg, err := pb.UnmarshalCandidate(payload)
		if err != nil {
			zap.L().Error("undecodable candidate record", zap.Error(err))
			continue
		}

		c := InboundCandidate{
			ID:         msg.CandidateID,
			Name:       msg.Name,
			Street:     msg.Street,
			District:   msg.District,
			PostalCode: msg.PostalCode,
			City:       msg.City,
			Region:     msg.Region,
			Country:    msg.Country,
			Longitude:  msg.Longitude,
			Latitude:   msg.Latitude,
			Trusted:    msg.IsValidGeocode,
		}
		c.CountryCode = resolveCountryCode(msg.Country, mapper)
		if c.CountryCode == "" {
			zap.L().Info("missing country code", zap.String("country", msg.Country))
		}

		zap.L().Info("candidate received",
			zap.Uint64("entity_id", c.ID),
			zap.String("name", c.Name),
		)
		out = append(out, c)
	}
	return out
}

// resolveCountryCode accepts an alpha-2 code as is, then tries alpha-3 and
// finally a fuzzy name lookup.
func resolveCountryCode(value string, mapper *country.Mapper) string {
	if value == "" {
		return ""
	}
	if mapper.Valid(value) {
		return value
	}
	if code, ok := mapper.MapAlpha3(value); ok {
		return code
	}
	if code, ok := mapper.MapName(value); ok {
		return code
	}
	return ""
}

// Store is the storage surface the handler needs.
type Store interface {
	RegisterEntities(ctx context.Context, entities []string) error
	PutCandidates(ctx context.Context, candidates []model.Candidate) error
	PutConsolidations(ctx context.Context, consolidations []model.Consolidation) error
}

// Sender delivers geocoder task messages.
type Sender interface {
	SendMessages(ctx context.Context, queueURL string, bodies []string) error
}

// Handler routes one batch of inbound candidates.
type Handler struct {
	store         Store
	sender        Sender
	geocoderQueue string
	providers     []string
	newBatchID    func() string
}

// NewHandler wires the router to its storage and task queue.
func NewHandler(store Store, sender Sender, geocoderQueue string, providers []string) *Handler {
	if len(providers) == 0 {
		providers = DefaultProviders
	}
	return &Handler{
		store:         store,
		sender:        sender,
		geocoderQueue: geocoderQueue,
		providers:     providers,
		newBatchID:    uuid.NewString,
	}
}

// Process registers the batch, stores trusted coordinates as consolidations
// and sends everything else through the geocoder.
func (h *Handler) Process(ctx context.Context, candidates []InboundCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	batchID := h.newBatchID()

	entities := make([]string, len(candidates))
	for i, c := range candidates {
		entities[i] = c.Key()
	}
	if err := h.store.RegisterEntities(ctx, entities); err != nil {
		return eris.Wrap(err, "registering candidates")
	}
	zap.L().Info("registered candidates", zap.Int("count", len(candidates)))

	var trusted, others []InboundCandidate
	for _, c := range candidates {
		if c.Trusted {
			trusted = append(trusted, c)
		} else {
			others = append(others, c)
		}
	}

	if err := h.storeTrusted(ctx, trusted, batchID); err != nil {
		return err
	}
	if err := h.stashFeedCandidates(ctx, others, batchID); err != nil {
		return err
	}
	return h.sendGeocoderTasks(ctx, others, batchID)
}

// storeTrusted writes trusted coordinates straight to the winner rows.
func (h *Handler) storeTrusted(ctx context.Context, trusted []InboundCandidate, batchID string) error {
	if len(trusted) == 0 {
		return nil
	}
	consolidations := make([]model.Consolidation, len(trusted))
	for i, c := range trusted {
		consolidations[i] = c.AsConsolidation(batchID)
	}
	if err := h.store.PutConsolidations(ctx, consolidations); err != nil {
		return eris.Wrap(err, "storing trusted consolidations")
	}
	zap.L().Info("stored consolidations", zap.Int("count", len(consolidations)))
	return nil
}

// stashFeedCandidates records the feed's own coordinate as a provider row so
// the consolidator can fall back on it. Candidates without a coordinate have
// nothing to stash.
func (h *Handler) stashFeedCandidates(ctx context.Context, others []InboundCandidate, batchID string) error {
	var rows []model.Candidate
	for _, c := range others {
		if !c.HasCoordinate() {
			continue
		}
		meta := make(map[string]any)
		for k, v := range c.Address().Fields() {
			meta[k] = v
		}
		rows = append(rows, model.Candidate{
			Entity:     c.Key(),
			EntityID:   c.ID,
			EntityType: model.EntityCandidateAccommodation,
			Provider:   model.ProviderTrivago,
			Longitude:  model.Float(c.Longitude),
			Latitude:   model.Float(c.Latitude),
			BatchID:    batchID,
			Meta:       meta,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := h.store.PutCandidates(ctx, rows); err != nil {
		return eris.Wrap(err, "stashing feed candidates")
	}
	return nil
}

// sendGeocoderTasks creates one task per candidate and provider.
func (h *Handler) sendGeocoderTasks(ctx context.Context, others []InboundCandidate, batchID string) error {
	var bodies []string
	for _, c := range others {
		for _, provider := range h.providers {
			body, err := json.Marshal(model.GeocoderTask{
				Provider:   provider,
				EntityID:   c.ID,
				EntityType: model.EntityCandidateAccommodation,
				BatchID:    batchID,
				Address:    c.Address(),
			})
			if err != nil {
				return eris.Wrapf(err, "encoding geocoder task for %s", c.Key())
			}
			bodies = append(bodies, string(body))
		}
	}
	if len(bodies) == 0 {
		return nil
	}
	if err := h.sender.SendMessages(ctx, h.geocoderQueue, bodies); err != nil {
		return eris.Wrap(err, "sending geocoder tasks")
	}
	zap.L().Info("sent geocoder tasks", zap.Int("count", len(bodies)))
	return nil
}
