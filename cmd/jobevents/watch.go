package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobevents/internal/chain"
	"jobevents/internal/config"
	"jobevents/internal/content"
	"jobevents/internal/indexer"
	"jobevents/internal/model"
	"jobevents/internal/pipeline"
	"jobevents/internal/sessionkey"
	"jobevents/internal/storage"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow one job live and stream its snapshots, diffs and resolved content",
		RunE:  runWatch,
	}

	cmd.Flags().String("rpc", "", "websocket RPC URL")
	cmd.Flags().StringSlice("contract", nil, "marketplace contract addresses (comma-separated)")
	cmd.Flags().String("job", "", "job id to follow")
	cmd.Flags().String("in", "./data/job_events.jsonl", "event store JSONL for history and new events")
	cmd.Flags().String("pg-dsn", "", "use Postgres as the event store")
	cmd.Flags().String("out", "", "output JSONL path, empty writes to stdout")
	addContentFlags(cmd)
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

// watchLine is one line of watch output. Kind is "event" for a newly applied event,
// "reset" after a full recompute and "update" for resolved content.
type watchLine struct {
	Kind   string                    `json:"kind"`
	Events []model.JobEventWithDiffs `json:"events,omitempty"`
	Update *watchUpdate              `json:"update,omitempty"`
}

type watchUpdate struct {
	Index   int           `json:"index"`
	Details model.Details `json:"details"`
}

type generationUpdate struct {
	generation int
	update     content.Update
}

// watcher keeps the computed event list of one job current as live records arrive.
type watcher struct {
	jobID      string
	store      eventStore
	pipe       *pipeline.Pipeline
	keys       sessionkey.Keys
	emit       func(watchLine) error
	logger     *zap.Logger
	events     []model.JobEventWithDiffs
	generation int
	updates    chan generationUpdate
}

func newWatcher(jobID string, store eventStore, pipe *pipeline.Pipeline, keys sessionkey.Keys, emit func(watchLine) error, logger *zap.Logger) *watcher {
	return &watcher{
		jobID:   jobID,
		store:   store,
		pipe:    pipe,
		keys:    keys,
		emit:    emit,
		logger:  logger,
		updates: make(chan generationUpdate, 64),
	}
}

// recompute rebuilds the job from the event store and emits it as a reset.
func (w *watcher) recompute(ctx context.Context) error {
	raw, err := w.store.LoadJobEvents(ctx, w.jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", w.jobID, err)
	}
	w.events = w.pipe.Process(w.jobID, raw)
	w.generation++
	w.enrich(ctx, 0)
	return w.emit(watchLine{Kind: "reset", Events: w.events})
}

// handle stores a live record and appends it, falling back to a full recompute when
// the record was reorged out or does not extend the current sequence.
func (w *watcher) handle(ctx context.Context, record model.RawEventRecord) error {
	if err := w.store.PutEventBatch(ctx, []model.RawEventRecord{record}); err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	if record.Removed {
		w.logger.Warn("event removed by reorg, recomputing",
			zap.Uint64("block_number", record.BlockNumber),
			zap.Uint64("log_index", record.LogIndex),
		)
		return w.recompute(ctx)
	}

	ev, err := record.ToRawEvent()
	if err != nil {
		return fmt.Errorf("convert record: %w", err)
	}

	next, err := w.pipe.Append(w.jobID, w.events, []model.RawEvent{ev})
	if errors.Is(err, pipeline.ErrSequenceGap) {
		return w.recompute(ctx)
	}
	if err != nil {
		return err
	}

	offset := len(w.events)
	w.events = next
	if len(next) == offset {
		return nil
	}
	w.enrich(ctx, offset)
	return w.emit(watchLine{Kind: "event", Events: next[offset:]})
}

// enrich resolves events from offset on in the background. Updates are tagged with
// the current generation so results for a replaced sequence are dropped.
func (w *watcher) enrich(ctx context.Context, offset int) {
	generation := w.generation
	updates := w.pipe.Enrich(ctx, w.events[offset:], w.keys)
	go func() {
		for u := range updates {
			u.Index += offset
			select {
			case w.updates <- generationUpdate{generation: generation, update: u}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *watcher) apply(gu generationUpdate) error {
	if gu.generation != w.generation {
		return nil
	}
	w.events = content.Apply(w.events, gu.update)
	return w.emit(watchLine{Kind: "update", Update: &watchUpdate{Index: gu.update.Index, Details: gu.update.Details}})
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWatch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.JobID == "" {
		return fmt.Errorf("job id is required")
	}
	addresses, err := indexer.ParseAddresses(cfg.Contracts)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("contract address is required")
	}
	jobID, err := chain.ParseJobID(cfg.JobID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, pg, err := openEventStore(ctx, cfg.In, cfg.PGDSN)
	if err != nil {
		return err
	}
	if pg != nil {
		defer pg.Close()
	}

	var keys sessionkey.Keys
	if cfg.Content.SessionKeys != "" {
		if keys, err = sessionkey.Load(cfg.Content.SessionKeys); err != nil {
			return err
		}
	}
	resolver, closeContent, err := newResolver(ctx, cfg.Content, nil, logger)
	if err != nil {
		return err
	}
	defer closeContent()

	emit, closeOut, err := newLineEmitter(cfg.Out)
	if err != nil {
		return err
	}
	defer closeOut()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	logs := make(chan types.Log, 64)
	sub, err := chainClient.SubscribeJobEvents(ctx, addresses, []*big.Int{jobID}, logs)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	id := jobID.String()
	w := newWatcher(id, store, pipeline.New(resolver, pipeline.Config{Logger: logger}), keys, emit, logger)

	logger.Info("watch start",
		zap.String("job_id", id),
		zap.Int("contracts", len(addresses)),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("resolve", resolver != nil),
	)

	if err := w.recompute(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		case err := <-sub.Err():
			return fmt.Errorf("subscription: %w", err)
		case log := <-logs:
			record, err := chain.DecodeLog(log, time.Now().UTC())
			if err != nil {
				logger.Warn("skip undecodable log", zap.Error(err), zap.String("tx_hash", log.TxHash.Hex()))
				continue
			}
			if err := w.handle(ctx, record); err != nil {
				return err
			}
		case gu := <-w.updates:
			if err := w.apply(gu); err != nil {
				return err
			}
		}
	}
}

// newLineEmitter writes watch lines to path, or to stdout when path is empty.
func newLineEmitter(path string) (func(watchLine) error, func(), error) {
	if path == "" {
		enc := json.NewEncoder(os.Stdout)
		return func(line watchLine) error { return enc.Encode(line) }, func() {}, nil
	}

	w, err := storage.NewJSONLWriter(path, true)
	if err != nil {
		return nil, nil, err
	}
	emit := func(line watchLine) error {
		if err := w.Write(line); err != nil {
			return err
		}
		return w.Flush()
	}
	return emit, func() { _ = w.Close() }, nil
}
