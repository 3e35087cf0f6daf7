package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobevents/internal/config"
	"jobevents/internal/content"
	"jobevents/internal/metrics"
	"jobevents/internal/model"
	"jobevents/internal/storage"
	"jobevents/internal/storage/postgres"
)

// eventStore is a backing store the commands can both read and append to.
type eventStore interface {
	storage.Sink
	storage.EventSource
	JobsTouchedSince(ctx context.Context, fromBlock uint64) ([]string, uint64, error)
}

// openEventStore prefers Postgres when a DSN is given and falls back to the JSONL file.
// The returned store is non-nil only for Postgres and must be closed by the caller.
func openEventStore(ctx context.Context, in, dsn string) (eventStore, *postgres.Store, error) {
	if dsn != "" {
		store, err := openStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
	if in == "" {
		return nil, nil, fmt.Errorf("either in or pg-dsn is required")
	}
	return storage.NewJSONLSink(in), nil, nil
}

// newResolver builds the content resolver chain: backend, rate limit and retries, then
// an optional Redis read-through cache. It returns nil when no backend is configured.
func newResolver(ctx context.Context, cfg config.ContentConfig, sink metrics.Sink, logger *zap.Logger) (*content.Resolver, func(), error) {
	noop := func() {}
	if !cfg.Enabled() {
		return nil, noop, nil
	}

	var backend content.Store
	switch {
	case cfg.S3Bucket != "":
		s3Store, err := content.NewS3Store(ctx, content.S3Config{
			Bucket:         cfg.S3Bucket,
			Prefix:         cfg.S3Prefix,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			Profile:        cfg.S3Profile,
			ForcePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("content s3: %w", err)
		}
		backend = s3Store
	default:
		backend = content.NewGatewayStore(cfg.GatewayURL, cfg.Timeout)
	}

	store := content.Store(content.NewLimitedStore(backend, cfg.RPS, cfg.MaxRetries, 0))

	closeFn := noop
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = content.NewRedisCache(client, store, cfg.RedisTTL, logger)
		closeFn = func() { _ = client.Close() }
	}

	return content.NewResolver(store, content.ResolverConfig{
		Concurrency: cfg.Concurrency,
		Logger:      logger,
		Metrics:     sink,
	}), closeFn, nil
}

func decodeErrorFromEvent(ev model.JobEventWithDiffs) model.DecodeError {
	return model.DecodeError{
		JobID:       ev.JobID,
		BlockNumber: ev.BlockNumber,
		LogIndex:    ev.LogIndex,
		Type:        uint8(ev.Type),
		Address:     ev.Address.Hex(),
		Timestamp:   ev.Timestamp,
		Error:       ev.DecodeError,
	}
}
