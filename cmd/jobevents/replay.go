package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobevents/internal/config"
	"jobevents/internal/model"
	"jobevents/internal/pipeline"
	"jobevents/internal/sessionkey"
	"jobevents/internal/storage"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild job histories with snapshots and diffs from stored events",
		RunE:  runReplay,
	}

	cmd.Flags().String("in", "./data/job_events.jsonl", "input job events JSONL")
	cmd.Flags().String("pg-dsn", "", "read events from Postgres instead of the JSONL file")
	cmd.Flags().StringSlice("job", nil, "job ids to replay (comma-separated), empty means all")
	cmd.Flags().String("out", "./data/job_history.jsonl", "output enriched events JSONL")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	cmd.Flags().String("until", "", "only replay events up to this time (unix seconds or RFC3339)")
	cmd.Flags().Bool("resolve", false, "resolve encrypted message content")
	addContentFlags(cmd)
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func addContentFlags(cmd *cobra.Command) {
	cmd.Flags().String("session-keys", "", "JSON file of session keys by address pair")
	cmd.Flags().String("gateway-url", "", "content gateway base URL")
	cmd.Flags().String("s3-bucket", "", "S3 bucket holding content by hash")
	cmd.Flags().String("s3-prefix", "", "S3 key prefix")
	cmd.Flags().String("s3-region", "", "S3 region")
	cmd.Flags().String("s3-endpoint", "", "custom S3 endpoint")
	cmd.Flags().String("s3-profile", "", "AWS shared config profile")
	cmd.Flags().Bool("s3-path-style", false, "use path-style S3 addressing")
	cmd.Flags().String("redis-addr", "", "optional Redis address for content caching")
	cmd.Flags().Duration("redis-ttl", time.Hour, "content cache TTL")
	cmd.Flags().Float64("content-rps", 10, "content fetches per second")
	cmd.Flags().Int("content-retries", 3, "content fetch retries")
	cmd.Flags().Duration("content-timeout", 30*time.Second, "content gateway timeout")
	cmd.Flags().Int("resolve-concurrency", 8, "parallel content resolutions")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	until, err := config.ParseTimestamp(cfg.Until)
	if err != nil {
		return fmt.Errorf("parse until: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, pg, err := openEventStore(ctx, cfg.In, cfg.PGDSN)
	if err != nil {
		return err
	}
	if pg != nil {
		defer pg.Close()
	}

	var keys sessionkey.Keys
	pipe := pipeline.New(nil, pipeline.Config{Logger: logger})
	if cfg.Resolve {
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
		pipe = pipeline.New(resolver, pipeline.Config{Logger: logger})
	}

	jobIDs := cfg.JobIDs
	if len(jobIDs) == 0 {
		if jobIDs, _, err = source.JobsTouchedSince(ctx, 0); err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
	}

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	var errWriter *storage.JSONLWriter
	if cfg.Errors != "" {
		if errWriter, err = storage.NewJSONLWriter(cfg.Errors, false); err != nil {
			return err
		}
		defer errWriter.Close()
	}

	logger.Info("replay start",
		zap.String("in", cfg.In),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("jobs", len(jobIDs)),
		zap.Uint64("until", until),
		zap.Bool("resolve", cfg.Resolve),
	)

	var total, failed int
	for _, jobID := range jobIDs {
		raw, err := source.LoadJobEvents(ctx, jobID)
		if err != nil {
			return fmt.Errorf("load job %s: %w", jobID, err)
		}
		raw = eventsUntil(raw, until)
		if len(raw) == 0 {
			continue
		}

		var events []model.JobEventWithDiffs
		if cfg.Resolve {
			events = pipe.ProcessAndResolve(ctx, jobID, raw, keys)
		} else {
			events = pipe.Process(jobID, raw)
		}

		for _, ev := range events {
			if err := outWriter.Write(ev); err != nil {
				return err
			}
			if ev.DecodeError == "" {
				continue
			}
			failed++
			if errWriter != nil {
				if err := errWriter.Write(decodeErrorFromEvent(ev)); err != nil {
					logger.Warn("write decode error", zap.Error(err))
				}
			}
		}
		total += len(events)

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	logger.Info("replay complete",
		zap.Int("jobs", len(jobIDs)),
		zap.Int("events", total),
		zap.Int("failed", failed),
	)
	return nil
}

// eventsUntil keeps the prefix of events at or before until; zero keeps everything.
func eventsUntil(events []model.RawEvent, until uint64) []model.RawEvent {
	if until == 0 {
		return events
	}
	for i, ev := range events {
		if ev.Timestamp > until {
			return events[:i]
		}
	}
	return events
}
