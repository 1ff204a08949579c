package locator

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TransferStore is the storage surface the worker needs.
type TransferStore interface {
	UpdateTransfer(ctx context.Context, entity string, fields map[string]any) error
}

// Worker consumes consolidation records and writes the located results back
// to the transfer table.
type Worker struct {
	client *Client
	store  TransferStore
}

// NewWorker wires a worker to the locator client and transfer storage.
func NewWorker(client *Client, store TransferStore) *Worker {
	return &Worker{client: client, store: store}
}

// Process parses the raw consolidation records, resolves their localities and
// updates the corresponding transfer rows. Records that fail to parse are
// dropped.
func (w *Worker) Process(ctx context.Context, records [][]byte) error {
	var locations []Location
	for _, record := range records {
		location, err := ParseLocation(record)
		if err != nil {
			zap.L().Warn("unparseable consolidation record", zap.Error(err))
			continue
		}
		locations = append(locations, location)
	}

	located, err := w.client.Process(ctx, locations)
	if err != nil {
		return err
	}

	for _, l := range located {
		if err := w.store.UpdateTransfer(ctx, l.Key(), l.TransferFields()); err != nil {
			return eris.Wrapf(err, "updating transfer row %s", l.Key())
		}
	}
	return nil
}
