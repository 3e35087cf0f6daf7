package content

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobevents/internal/codec"
	"jobevents/internal/metrics"
	"jobevents/internal/model"
	"jobevents/internal/sessionkey"
)

const defaultConcurrency = 8

// Update carries resolved details for the event at Index of a job's event list.
type Update struct {
	JobID   string
	Index   int
	Details model.Details
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Concurrency int
	Logger      *zap.Logger
	Metrics     metrics.Sink
}

// Resolver fills in message bodies, dispute content and arbitration reasons.
// Every failure degrades to model.EncryptedPlaceholder for the affected event only.
type Resolver struct {
	store       Store
	concurrency int
	logger      *zap.Logger
	metrics     metrics.Sink
}

func NewResolver(store Store, cfg ResolverConfig) *Resolver {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Resolver{
		store:       store,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		metrics:     metrics.OrNoop(cfg.Metrics),
	}
}

// Resolve waits for every resolvable event and returns a new slice with the results
// merged. events is not modified.
func (r *Resolver) Resolve(ctx context.Context, events []model.JobEventWithDiffs, keys sessionkey.Keys) []model.JobEventWithDiffs {
	var updates []Update
	for u := range r.Stream(ctx, events, keys) {
		updates = append(updates, u)
	}
	return Apply(events, updates...)
}

// Stream resolves events concurrently and emits one Update per resolvable event as it
// completes. The channel is closed when all work is done or ctx is cancelled; results
// finishing after cancellation are dropped.
func (r *Resolver) Stream(ctx context.Context, events []model.JobEventWithDiffs, keys sessionkey.Keys) <-chan Update {
	out := make(chan Update)
	snapshot := append([]model.JobEventWithDiffs(nil), events...)

	go func() {
		defer close(out)

		g := new(errgroup.Group)
		g.SetLimit(r.concurrency)
		for i := range snapshot {
			if !snapshot[i].Resolvable() {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			i, ev := i, snapshot[i]
			g.Go(func() error {
				details := r.resolve(ctx, ev, keys)
				select {
				case out <- Update{JobID: ev.JobID, Index: i, Details: details}:
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

func (r *Resolver) resolve(ctx context.Context, ev model.JobEventWithDiffs, keys sessionkey.Keys) model.Details {
	switch d := ev.Details.(type) {
	case model.OwnerMessageDetails:
		d.MessageDetails = r.resolveMessage(ctx, ev, d.MessageDetails, keys)
		return d
	case model.WorkerMessageDetails:
		d.MessageDetails = r.resolveMessage(ctx, ev, d.MessageDetails, keys)
		return d
	case model.ArbitratedDetails:
		worker := ev.Job.Roles.Worker
		if worker == (common.Address{}) {
			worker = d.Worker
		}
		reason, err := r.fetchAndOpen(ctx, keys, ev.Job.Roles.Creator, worker, d.ReasonHash)
		r.observe(ev, "arbitration", err)
		d.Reason = placeholderOn(reason, err)
		return d
	case model.DisputedDetails:
		key, err := keys.Lookup(ev.Job.Roles.Creator, ev.Job.Roles.Worker)
		if err != nil {
			r.observe(ev, "dispute", err)
			return codec.DecryptDisputed(d, nil)
		}
		opened := codec.DecryptDisputed(d, key)
		if opened.Content == model.EncryptedPlaceholder {
			r.observe(ev, "dispute", fmt.Errorf("decrypt dispute failed"))
		} else {
			r.observe(ev, "dispute", nil)
		}
		return opened
	default:
		return ev.Details
	}
}

func (r *Resolver) resolveMessage(ctx context.Context, ev model.JobEventWithDiffs, msg model.MessageDetails, keys sessionkey.Keys) model.MessageDetails {
	content, err := r.fetchAndOpen(ctx, keys, ev.Address, msg.Recipient, msg.ContentHash)
	r.observe(ev, "message", err)
	msg.Content = placeholderOn(content, err)
	return msg
}

func (r *Resolver) fetchAndOpen(ctx context.Context, keys sessionkey.Keys, a, b common.Address, hash common.Hash) (string, error) {
	key, err := keys.Lookup(a, b)
	if err != nil {
		return "", err
	}
	sealed, err := r.store.Fetch(ctx, hash)
	if err != nil {
		return "", fmt.Errorf("fetch content: %w", err)
	}
	plaintext, err := sessionkey.OpenString(key, sealed)
	if err != nil {
		return "", fmt.Errorf("open content: %w", err)
	}
	return plaintext, nil
}

func (r *Resolver) observe(ev model.JobEventWithDiffs, kind string, err error) {
	r.metrics.ContentResolved(kind, err == nil)
	if err != nil {
		r.logger.Debug("content unresolved",
			zap.String("job_id", ev.JobID),
			zap.String("event_type", ev.Type.String()),
			zap.Uint64("timestamp", ev.Timestamp),
			zap.Error(err),
		)
	}
}

func placeholderOn(content string, err error) string {
	if err != nil {
		return model.EncryptedPlaceholder
	}
	return content
}

// Apply returns a copy of events with each update's details swapped in. Updates for a
// different job, an out-of-range index or a mismatched event type are ignored.
func Apply(events []model.JobEventWithDiffs, updates ...Update) []model.JobEventWithDiffs {
	out := append([]model.JobEventWithDiffs(nil), events...)
	for _, u := range updates {
		if u.Index < 0 || u.Index >= len(out) || u.Details == nil {
			continue
		}
		if out[u.Index].JobID != u.JobID || out[u.Index].Type != u.Details.EventType() {
			continue
		}
		out[u.Index] = out[u.Index].WithDetails(u.Details)
	}
	return out
}
