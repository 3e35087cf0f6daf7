package content

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobevents/internal/model"
	"jobevents/internal/sessionkey"
)

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	worker  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	key     = bytes.Repeat([]byte{0x5a}, sessionkey.KeySize)
)

type failingStore struct {
	Store
	fail  map[common.Hash]bool
	calls atomic.Int32
}

func (s *failingStore) Fetch(ctx context.Context, hash common.Hash) ([]byte, error) {
	s.calls.Add(1)
	if s.fail[hash] {
		return nil, errors.New("gateway unavailable")
	}
	return s.Store.Fetch(ctx, hash)
}

func TestResolveIsolatesFailures(t *testing.T) {
	mem := NewMemoryStore()
	h1, h2, h3 := putSealed(t, mem, 1, "hello"), putSealed(t, mem, 2, "lost"), putSealed(t, mem, 3, "bye")
	store := &failingStore{Store: mem, fail: map[common.Hash]bool{h2: true}}

	events := []model.JobEventWithDiffs{
		ownerMessage(h1),
		ownerMessage(h2),
		ownerMessage(h3),
	}
	keys := sessionkey.Keys{sessionkey.PairKey(creator, worker): key}

	resolved := NewResolver(store, ResolverConfig{Concurrency: 2}).Resolve(context.Background(), events, keys)
	require.Len(t, resolved, 3)

	assert.Equal(t, "hello", messageContent(t, resolved[0]))
	assert.Equal(t, model.EncryptedPlaceholder, messageContent(t, resolved[1]))
	assert.Equal(t, "bye", messageContent(t, resolved[2]))

	// inputs are untouched
	assert.Equal(t, "", messageContent(t, events[0]))
}

func TestResolveMissingKeyUsesPlaceholder(t *testing.T) {
	mem := NewMemoryStore()
	h := putSealed(t, mem, 1, "hello")

	resolved := NewResolver(mem, ResolverConfig{}).Resolve(context.Background(), []model.JobEventWithDiffs{ownerMessage(h)}, nil)
	assert.Equal(t, model.EncryptedPlaceholder, messageContent(t, resolved[0]))
}

func TestResolveReversedKeyPair(t *testing.T) {
	mem := NewMemoryStore()
	h := putSealed(t, mem, 1, "from the worker")

	ev := ownerMessage(h)
	d := ev.Details.(model.OwnerMessageDetails)
	ev.Type = model.EventWorkerMessage
	ev.Address = worker
	d.Recipient = creator
	ev.Details = model.WorkerMessageDetails{MessageDetails: d.MessageDetails}

	keys := sessionkey.Keys{sessionkey.PairKey(creator, worker): key}
	resolved := NewResolver(mem, ResolverConfig{}).Resolve(context.Background(), []model.JobEventWithDiffs{ev}, keys)

	got := resolved[0].Details.(model.WorkerMessageDetails)
	assert.Equal(t, "from the worker", got.Content)
}

func TestResolveDisputeAndArbitration(t *testing.T) {
	mem := NewMemoryStore()
	reasonHash := putSealed(t, mem, 9, "split 70/30")

	sealedDispute, err := sessionkey.Seal(key, []byte("missed deadline"))
	require.NoError(t, err)

	job := model.NewJob("1")
	job.Roles.Creator = creator
	job.Roles.Worker = worker

	events := []model.JobEventWithDiffs{
		{JobID: "1", Type: model.EventDisputed, Job: job, Details: model.DisputedDetails{EncryptedContent: sealedDispute}},
		{JobID: "1", Type: model.EventArbitrated, Job: job, Details: model.ArbitratedDetails{ReasonHash: reasonHash, Worker: worker}},
		{JobID: "1", Type: model.EventDisputed, Job: job, Details: model.DisputedDetails{EncryptedContent: []byte("garbage")}},
		{JobID: "1", Type: model.EventCompleted, Job: job, Details: model.CompletedDetails{}},
	}
	keys := sessionkey.Keys{sessionkey.PairKey(worker, creator): key}

	resolved := NewResolver(mem, ResolverConfig{}).Resolve(context.Background(), events, keys)
	assert.Equal(t, "missed deadline", resolved[0].Details.(model.DisputedDetails).Content)
	assert.Equal(t, "split 70/30", resolved[1].Details.(model.ArbitratedDetails).Reason)
	assert.Equal(t, model.EncryptedPlaceholder, resolved[2].Details.(model.DisputedDetails).Content)
	assert.Equal(t, model.CompletedDetails{}, resolved[3].Details)
}

func TestStreamEmitsOnlyResolvable(t *testing.T) {
	mem := NewMemoryStore()
	h := putSealed(t, mem, 1, "hello")
	events := []model.JobEventWithDiffs{
		{JobID: "1", Type: model.EventCompleted, Details: model.CompletedDetails{}},
		ownerMessage(h),
		{JobID: "1", Type: model.EventType(77)},
	}
	keys := sessionkey.Keys{sessionkey.PairKey(creator, worker): key}

	var updates []Update
	for u := range NewResolver(mem, ResolverConfig{}).Stream(context.Background(), events, keys) {
		updates = append(updates, u)
	}
	require.Len(t, updates, 1)
	assert.Equal(t, 1, updates[0].Index)
	assert.Equal(t, "1", updates[0].JobID)
}

func TestStreamCancelled(t *testing.T) {
	blocking := &blockingStore{release: make(chan struct{})}
	defer close(blocking.release)

	events := make([]model.JobEventWithDiffs, 0, 20)
	for i := 0; i < 20; i++ {
		events = append(events, ownerMessage(common.BytesToHash([]byte{byte(i)})))
	}
	keys := sessionkey.Keys{sessionkey.PairKey(creator, worker): key}

	ctx, cancel := context.WithCancel(context.Background())
	updates := NewResolver(blocking, ResolverConfig{Concurrency: 2}).Stream(ctx, events, keys)
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("stream did not close after cancellation")
		}
	}
}

type blockingStore struct {
	release chan struct{}
}

func (s *blockingStore) Fetch(ctx context.Context, _ common.Hash) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.release:
		return nil, ErrNotFound
	}
}

func TestApplyCopyOnWrite(t *testing.T) {
	events := []model.JobEventWithDiffs{ownerMessage(common.Hash{1}), ownerMessage(common.Hash{2})}
	resolved := events[0].Details.(model.OwnerMessageDetails)
	resolved.Content = "hi"

	out := Apply(events,
		Update{JobID: "1", Index: 0, Details: resolved},
		Update{JobID: "other", Index: 1, Details: resolved},
		Update{JobID: "1", Index: 5, Details: resolved},
		Update{JobID: "1", Index: 1, Details: model.CompletedDetails{}},
	)

	assert.Equal(t, "hi", messageContent(t, out[0]))
	assert.Equal(t, "", messageContent(t, out[1]))
	assert.Equal(t, "", messageContent(t, events[0]))
}

func putSealed(t *testing.T, store *MemoryStore, seed byte, plaintext string) common.Hash {
	t.Helper()
	sealed, err := sessionkey.Seal(key, []byte(plaintext))
	require.NoError(t, err)
	hash := common.BytesToHash(bytes.Repeat([]byte{seed}, 32))
	store.Put(hash, sealed)
	return hash
}

func ownerMessage(hash common.Hash) model.JobEventWithDiffs {
	job := model.NewJob("1")
	job.Roles.Creator = creator
	job.Roles.Worker = worker
	return model.JobEventWithDiffs{
		JobID:   "1",
		Type:    model.EventOwnerMessage,
		Address: creator,
		Job:     job,
		Details: model.OwnerMessageDetails{MessageDetails: model.MessageDetails{Recipient: worker, ContentHash: hash}},
	}
}

func messageContent(t *testing.T, ev model.JobEventWithDiffs) string {
	t.Helper()
	switch d := ev.Details.(type) {
	case model.OwnerMessageDetails:
		return d.Content
	case model.WorkerMessageDetails:
		return d.Content
	}
	t.Fatalf("not a message: %T", ev.Details)
	return ""
}
