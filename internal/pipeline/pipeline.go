// Package pipeline turns raw job events into enriched snapshot sequences.
//
// Processing is two-phase: Process and Append are synchronous and deterministic, while
// Enrich resolves encrypted content in the background and reports results as updates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobevents/internal/content"
	"jobevents/internal/metrics"
	"jobevents/internal/model"
	"jobevents/internal/reducer"
	"jobevents/internal/sessionkey"
)

// ErrSequenceGap indicates new events cannot be appended to a computed sequence. The
// caller must recompute the job from its authoritative event source.
var ErrSequenceGap = errors.New("event sequence gap")

// Config configures a Pipeline.
type Config struct {
	Logger  *zap.Logger
	Metrics metrics.Sink
}

type Pipeline struct {
	resolver *content.Resolver
	logger   *zap.Logger
	metrics  metrics.Sink
}

// New builds a pipeline. resolver may be nil when content enrichment is not needed.
func New(resolver *content.Resolver, cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pipeline{
		resolver: resolver,
		logger:   cfg.Logger,
		metrics:  metrics.OrNoop(cfg.Metrics),
	}
}

// Process decodes, reduces and diffs a job's full event list.
func (p *Pipeline) Process(jobID string, raw []model.RawEvent) []model.JobEventWithDiffs {
	start := time.Now()
	out := reducer.Reduce(jobID, raw)
	for _, rec := range out {
		p.observe(rec)
	}
	p.metrics.ReduceCompleted(len(out), time.Since(start))
	return out
}

// Append extends base with tail without recomputing base. Events already present in
// base or earlier in tail, by (type, timestamp), are dropped. An event older than the
// last accepted one, or a sequence number that skips ahead, fails with ErrSequenceGap.
// base is never modified.
func (p *Pipeline) Append(jobID string, base []model.JobEventWithDiffs, tail []model.RawEvent) ([]model.JobEventWithDiffs, error) {
	start := time.Now()

	seen := make(map[model.EventKey]struct{}, len(base)+len(tail))
	for _, rec := range base {
		seen[rec.Raw().Key()] = struct{}{}
	}

	out := make([]model.JobEventWithDiffs, len(base), len(base)+len(tail))
	copy(out, base)

	job := model.NewJob(jobID)
	var last *model.RawEvent
	if len(base) > 0 {
		tip := base[len(base)-1]
		job = tip.Job
		raw := tip.Raw()
		last = &raw
	}

	appended := 0
	for _, ev := range tail {
		if _, dup := seen[ev.Key()]; dup {
			p.logger.Debug("duplicate event skipped",
				zap.String("job_id", jobID),
				zap.String("event_type", ev.Type.String()),
				zap.Uint64("timestamp", ev.Timestamp),
			)
			continue
		}
		if err := checkContiguous(last, ev); err != nil {
			p.metrics.SequenceGap()
			p.logger.Warn("sequence gap detected",
				zap.String("job_id", jobID),
				zap.String("event_type", ev.Type.String()),
				zap.Uint64("timestamp", ev.Timestamp),
				zap.Error(err),
			)
			return nil, err
		}

		rec := reducer.Apply(job, ev)
		p.observe(rec)
		out = append(out, rec)

		seen[ev.Key()] = struct{}{}
		job = rec.Job
		evCopy := ev
		last = &evCopy
		appended++
	}

	p.metrics.ReduceCompleted(appended, time.Since(start))
	return out, nil
}

func checkContiguous(last *model.RawEvent, next model.RawEvent) error {
	if last == nil {
		if next.Seq != nil && *next.Seq != 0 {
			return fmt.Errorf("first event has seq %d: %w", *next.Seq, ErrSequenceGap)
		}
		return nil
	}
	if next.Before(*last) {
		return fmt.Errorf("%s at %d is older than last event at %d: %w", next.Type, next.Timestamp, last.Timestamp, ErrSequenceGap)
	}
	if last.Seq != nil && next.Seq != nil && *next.Seq != *last.Seq+1 {
		return fmt.Errorf("seq %d does not follow %d: %w", *next.Seq, *last.Seq, ErrSequenceGap)
	}
	return nil
}

// Enrich starts content resolution for events and returns the update stream. The
// channel is closed immediately when the pipeline has no resolver.
func (p *Pipeline) Enrich(ctx context.Context, events []model.JobEventWithDiffs, keys sessionkey.Keys) <-chan content.Update {
	if p.resolver == nil {
		ch := make(chan content.Update)
		close(ch)
		return ch
	}
	return p.resolver.Stream(ctx, events, keys)
}

// ProcessAndResolve runs both phases and waits for enrichment to settle.
func (p *Pipeline) ProcessAndResolve(ctx context.Context, jobID string, raw []model.RawEvent, keys sessionkey.Keys) []model.JobEventWithDiffs {
	events := p.Process(jobID, raw)
	var updates []content.Update
	for u := range p.Enrich(ctx, events, keys) {
		updates = append(updates, u)
	}
	return content.Apply(events, updates...)
}

func (p *Pipeline) observe(rec model.JobEventWithDiffs) {
	switch {
	case rec.DecodeError != "":
		p.metrics.DecodeFailed(rec.Type.String())
	case !rec.Type.Known():
		p.metrics.UnknownEvent()
	default:
		p.metrics.EventDecoded(rec.Type.String())
	}
}
