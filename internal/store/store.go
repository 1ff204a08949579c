// Package store persists candidate rows and transfer-table entries in
// DynamoDB, keyed by (entity, provider) with throttle-aware batch writes.
package store

import (
	"context"

	"github.com/tripforge/geopipeline/internal/model"
)

// Store is the persistence interface of the pipeline.
type Store interface {
	// CandidatesByEntity returns every provider row of an entity.
	CandidatesByEntity(ctx context.Context, entityKey string) ([]model.Candidate, error)

	// PutCandidates upserts candidate rows in batches.
	PutCandidates(ctx context.Context, candidates []model.Candidate) error

	// PutConsolidations writes winner rows under the environment's
	// consolidated provider name.
	PutConsolidations(ctx context.Context, consolidations []model.Consolidation) error

	// RegisterEntities inserts transfer entries for new entity keys,
	// leaving existing ones untouched.
	RegisterEntities(ctx context.Context, entityKeys []string) error

	// UpdateTransfer merges fields into an existing transfer entry. An
	// already expired entry is skipped silently.
	UpdateTransfer(ctx context.Context, entityKey string, fields map[string]any) error
}
