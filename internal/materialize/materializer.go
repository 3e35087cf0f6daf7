package materialize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobevents/internal/metrics"
	"jobevents/internal/model"
	"jobevents/internal/reducer"
)

// Source is an event store that can report which jobs changed since a block.
type Source interface {
	JobsTouchedSince(ctx context.Context, fromBlock uint64) ([]string, uint64, error)
	LoadJobEvents(ctx context.Context, jobID string) ([]model.RawEvent, error)
}

// SnapshotWriter persists reduced job snapshots.
type SnapshotWriter interface {
	UpsertJobSnapshots(ctx context.Context, jobs []model.Job) error
}

// Config controls materialization behavior.
type Config struct {
	BatchSize     int
	Concurrency   int
	RecomputeFrom uint64
	StateStore    StateStore
	Metrics       metrics.Sink
}

// Result summarizes one materialization run.
type Result struct {
	Jobs      int
	Events    int
	LastBlock uint64
}

// Materializer folds the full history of every changed job into its current snapshot.
type Materializer struct {
	cfg    Config
	source Source
	writer SnapshotWriter
	logger *zap.Logger
	sink   metrics.Sink
}

func NewMaterializer(cfg Config, source Source, writer SnapshotWriter, logger *zap.Logger) *Materializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Materializer{
		cfg:    cfg,
		source: source,
		writer: writer,
		logger: logger,
		sink:   metrics.OrNoop(cfg.Metrics),
	}
}

// Run recomputes snapshots for jobs with events after the saved state.
func (m *Materializer) Run(ctx context.Context) (Result, error) {
	if m.source == nil {
		return Result{}, fmt.Errorf("source is nil")
	}
	if m.writer == nil {
		return Result{}, fmt.Errorf("snapshot writer is nil")
	}

	startBlock, err := m.loadStartBlock(ctx)
	if err != nil {
		return Result{}, err
	}

	jobs, highest, err := m.source.JobsTouchedSince(ctx, startBlock)
	if err != nil {
		return Result{}, fmt.Errorf("list touched jobs: %w", err)
	}
	if len(jobs) == 0 {
		m.logger.Info("nothing to materialize", zap.Uint64("from_block", startBlock))
		return Result{LastBlock: startBlock}, nil
	}

	result := Result{LastBlock: highest}
	for start := 0; start < len(jobs); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(jobs) {
			end = len(jobs)
		}

		snapshots, events, err := m.reduceBatch(ctx, jobs[start:end])
		if err != nil {
			return result, err
		}
		if err := m.writer.UpsertJobSnapshots(ctx, snapshots); err != nil {
			return result, fmt.Errorf("upsert snapshots: %w", err)
		}
		result.Jobs += len(snapshots)
		result.Events += events

		m.logger.Info("batch complete", zap.Int("jobs", len(snapshots)), zap.Int("events", events))
	}

	// State advances only after every batch is written.
	if m.cfg.StateStore != nil {
		if err := m.cfg.StateStore.Save(ctx, highest); err != nil {
			return result, fmt.Errorf("save state: %w", err)
		}
	}

	m.logger.Info("materialize complete",
		zap.Int("jobs", result.Jobs),
		zap.Int("events", result.Events),
		zap.Uint64("last_block", result.LastBlock),
	)
	return result, nil
}

func (m *Materializer) reduceBatch(ctx context.Context, jobIDs []string) ([]model.Job, int, error) {
	snapshots := make([]model.Job, len(jobIDs))
	var (
		mu     sync.Mutex
		events int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for i, jobID := range jobIDs {
		i, jobID := i, jobID
		g.Go(func() error {
			history, err := m.source.LoadJobEvents(gctx, jobID)
			if err != nil {
				return fmt.Errorf("load job %s: %w", jobID, err)
			}

			started := time.Now()
			reduced := reducer.Reduce(jobID, history)
			m.sink.ReduceCompleted(len(history), time.Since(started))

			job := model.NewJob(jobID)
			if n := len(reduced); n > 0 {
				job = reduced[n-1].Job
			}
			snapshots[i] = job

			mu.Lock()
			events += len(history)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return snapshots, events, nil
}

func (m *Materializer) loadStartBlock(ctx context.Context) (uint64, error) {
	if m.cfg.RecomputeFrom > 0 {
		return m.cfg.RecomputeFrom - 1, nil
	}
	if m.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := m.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}
