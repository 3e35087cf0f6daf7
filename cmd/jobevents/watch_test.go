package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jobevents/internal/codec"
	"jobevents/internal/model"
	"jobevents/internal/pipeline"
	"jobevents/internal/storage"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	worker  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func TestWatcherAppendsAndRecomputes(t *testing.T) {
	ctx := context.Background()
	store := storage.NewJSONLSink(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, store.PutEventBatch(ctx, []model.RawEventRecord{
		watchRecord(t, 10, "0x0a", creator, 100, model.CreatedDetails{Title: "Audit", Amount: uint256.NewInt(3)}),
	}))

	var lines []watchLine
	emit := func(l watchLine) error {
		lines = append(lines, l)
		return nil
	}
	w := newWatcher("1", store, pipeline.New(nil, pipeline.Config{}), nil, emit, zap.NewNop())

	require.NoError(t, w.recompute(ctx))
	require.Len(t, lines, 1)
	assert.Equal(t, "reset", lines[0].Kind)
	assert.Len(t, lines[0].Events, 1)

	taken := watchRecord(t, 20, "0x14", worker, 200, model.TakenDetails{EscrowID: uint256.NewInt(1)})
	require.NoError(t, w.handle(ctx, taken))
	require.Len(t, lines, 2)
	assert.Equal(t, "event", lines[1].Kind)
	require.Len(t, lines[1].Events, 1)
	assert.Equal(t, model.JobStateTaken, lines[1].Events[0].Job.State)

	require.NoError(t, w.handle(ctx, taken))
	assert.Len(t, lines, 2, "duplicate must not emit")

	late := watchRecord(t, 5, "0x05", creator, 50, model.PaidDetails{})
	require.NoError(t, w.handle(ctx, late))
	require.Len(t, lines, 3)
	assert.Equal(t, "reset", lines[2].Kind)
	require.Len(t, lines[2].Events, 3)
	assert.Equal(t, model.EventPaid, lines[2].Events[0].Type)

	removed := taken
	removed.Removed = true
	require.NoError(t, w.handle(ctx, removed))
	require.Len(t, lines, 4)
	assert.Equal(t, "reset", lines[3].Kind)
	require.Len(t, lines[3].Events, 2)
	assert.Equal(t, model.JobStateOpen, lines[3].Events[1].Job.State)
}

func TestWatcherDropsStaleUpdates(t *testing.T) {
	var lines []watchLine
	w := newWatcher("1", nil, pipeline.New(nil, pipeline.Config{}), nil, func(l watchLine) error {
		lines = append(lines, l)
		return nil
	}, zap.NewNop())
	w.generation = 2

	require.NoError(t, w.apply(generationUpdate{generation: 1}))
	assert.Empty(t, lines)
}

func TestEventsUntil(t *testing.T) {
	events := []model.RawEvent{{Timestamp: 10}, {Timestamp: 20}, {Timestamp: 30}}
	assert.Len(t, eventsUntil(events, 0), 3)
	assert.Len(t, eventsUntil(events, 20), 2)
	assert.Len(t, eventsUntil(events, 5), 0)
}

func watchRecord(t *testing.T, block uint64, tx string, from common.Address, ts uint64, details model.Details) model.RawEventRecord {
	t.Helper()
	data, err := codec.Encode(details)
	require.NoError(t, err)
	record := model.NewRawEventRecord("1", model.RawEvent{
		Type:        details.EventType(),
		Address:     from,
		Data:        data,
		Timestamp:   ts,
		BlockNumber: block,
	})
	record.TxHash = tx
	return record
}
