package consolidate

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tripforge/geopipeline/internal/model"
	"github.com/tripforge/geopipeline/internal/queue"
)

// CandidateStore is the storage surface the worker needs.
type CandidateStore interface {
	CandidatesByEntity(ctx context.Context, entity string) ([]model.Candidate, error)
	PutConsolidations(ctx context.Context, consolidations []model.Consolidation) error
}

// Broadcaster publishes consolidation records downstream.
type Broadcaster interface {
	PutRecords(ctx context.Context, streamName string, records []queue.Record) error
}

// Worker processes consolidator tasks end to end: fetch the pool, elect a
// winner, persist it and broadcast it.
type Worker struct {
	consolidator *Consolidator
	store        CandidateStore
	broadcaster  Broadcaster
	outputStream string
}

// NewWorker wires a worker to its storage and stream. The broadcaster may be
// nil when no output stream is configured.
func NewWorker(consolidator *Consolidator, store CandidateStore, broadcaster Broadcaster, outputStream string) *Worker {
	return &Worker{
		consolidator: consolidator,
		store:        store,
		broadcaster:  broadcaster,
		outputStream: outputStream,
	}
}

// Process consolidates every task's entity and pushes the new winners out in
// one batch.
func (w *Worker) Process(ctx context.Context, tasks []model.ConsolidatorTask) error {
	var consolidations []model.Consolidation

	for _, task := range tasks {
		candidates, err := w.store.CandidatesByEntity(ctx, task.Key())
		if err != nil {
			return eris.Wrapf(err, "fetching candidates for %s", task.Key())
		}

		winner, ok := w.consolidator.Consolidate(candidates)
		if !ok {
			zap.L().Info("NO RESULTS",
				zap.Uint64("entity_id", task.EntityID),
				zap.String("entity_type", string(task.EntityType)),
				zap.String("batch_id", task.BatchID),
			)
			continue
		}

		consolidations = append(consolidations, model.Consolidation{
			Entity:     task.Key(),
			EntityID:   task.EntityID,
			EntityType: task.EntityType,
			BatchID:    task.BatchID,
			Longitude:  *winner.Longitude,
			Latitude:   *winner.Latitude,
			Score:      *winner.Score,
			Meta: model.ConsolidationMeta{
				City:        winner.City,
				CountryCode: winner.CountryCode,
			},
		})

		zap.L().Info("OK",
			zap.Uint64("entity_id", task.EntityID),
			zap.String("entity_type", string(task.EntityType)),
			zap.String("batch_id", task.BatchID),
			zap.String("provider", winner.Provider),
			zap.Float64("score", *winner.Score),
		)
	}

	if len(consolidations) == 0 {
		return nil
	}

	if err := w.store.PutConsolidations(ctx, consolidations); err != nil {
		return eris.Wrap(err, "storing consolidations")
	}
	return w.broadcast(ctx, consolidations)
}

// broadcast streams new winners to the output stream, partitioned by entity
// key so per-entity ordering survives resharding.
func (w *Worker) broadcast(ctx context.Context, consolidations []model.Consolidation) error {
	if w.broadcaster == nil || w.outputStream == "" {
		return nil
	}

	records := make([]queue.Record, 0, len(consolidations))
	for _, c := range consolidations {
		data, err := json.Marshal(c)
		if err != nil {
			return eris.Wrapf(err, "encoding consolidation %s", c.Entity)
		}
		records = append(records, queue.Record{PartitionKey: c.Entity, Data: data})
	}
	return w.broadcaster.PutRecords(ctx, w.outputStream, records)
}
