package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"jobevents/internal/chain"
	"jobevents/internal/config"
	"jobevents/internal/indexer"
	"jobevents/internal/storage"
	"jobevents/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "jobevents",
		Short:        "Job marketplace event pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull JobEvent logs from the chain into the event store",
		RunE:  runSync,
	}

	syncCmd.Flags().String("rpc", "", "RPC URL")
	syncCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	syncCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	syncCmd.Flags().StringSlice("contract", nil, "marketplace contract addresses (comma-separated)")
	syncCmd.Flags().StringSlice("job", nil, "only sync these job ids (comma-separated)")
	syncCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	syncCmd.Flags().String("out", "./data/job_events.jsonl", "output JSONL path, empty to disable")
	syncCmd.Flags().String("pg-dsn", "", "optional Postgres DSN to also store events")
	syncCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	syncCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	syncCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	syncCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	syncCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(syncCmd)
	root.AddCommand(newReplayCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newMaterializeCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newEncodeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
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
	if cfg.Out == "" && cfg.PGDSN == "" {
		return fmt.Errorf("either out or pg-dsn is required")
	}

	addresses, err := indexer.ParseAddresses(cfg.Contracts)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("contract address is required")
	}
	jobIDs, err := indexer.ParseJobIDs(cfg.JobIDs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var sinks storage.MultiSink
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJSONLSink(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := openStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         addresses,
		JobIDs:            jobIDs,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, sinks, logger)

	logger.Info("sync start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("contracts", len(addresses)),
		zap.Int("jobs", len(jobIDs)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	last, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("sync complete", zap.Uint64("last_block", last))
	return nil
}

// newLogger builds a production JSON logger tagged with a per-process run id.
func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("run_id", uuid.NewString())), nil
}

func openStore(ctx context.Context, dsn string) (*postgres.Store, error) {
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
