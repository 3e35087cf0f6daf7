package storage

import (
	"context"
	"fmt"

	"jobevents/internal/model"
)

// Sink receives batches of normalized job event records.
type Sink interface {
	PutEventBatch(ctx context.Context, records []model.RawEventRecord) error
}

// EventSource loads the persisted raw events of one job in chain order.
type EventSource interface {
	LoadJobEvents(ctx context.Context, jobID string) ([]model.RawEvent, error)
}

// MultiSink writes every batch to each sink in order and stops at the first failure.
type MultiSink []Sink

func (m MultiSink) PutEventBatch(ctx context.Context, records []model.RawEventRecord) error {
	for i, sink := range m {
		if err := sink.PutEventBatch(ctx, records); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}
