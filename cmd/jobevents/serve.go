package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobevents/internal/config"
	"jobevents/internal/httpapi"
	"jobevents/internal/metrics"
	"jobevents/internal/pipeline"
	"jobevents/internal/sessionkey"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve job histories and snapshots over HTTP",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", ":8080", "listen address")
	cmd.Flags().String("in", "./data/job_events.jsonl", "event store JSONL")
	cmd.Flags().String("pg-dsn", "", "use Postgres for events and snapshots")
	cmd.Flags().Duration("request-timeout", 30*time.Second, "per-request timeout")
	addContentFlags(cmd)
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sink := metrics.NewPrometheusSink(reg, logger)

	store, pg, err := openEventStore(ctx, cfg.In, cfg.PGDSN)
	if err != nil {
		return err
	}
	apiCfg := httpapi.Config{
		Events:         store,
		Gatherer:       reg,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	}
	if pg != nil {
		defer pg.Close()
		apiCfg.Snapshots = pg
	}

	if cfg.Content.SessionKeys != "" {
		if apiCfg.Keys, err = sessionkey.Load(cfg.Content.SessionKeys); err != nil {
			return err
		}
	}
	resolver, closeContent, err := newResolver(ctx, cfg.Content, sink, logger)
	if err != nil {
		return err
	}
	defer closeContent()
	apiCfg.Pipeline = pipeline.New(resolver, pipeline.Config{Logger: logger, Metrics: sink})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           httpapi.NewServer(apiCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			zap.String("listen", cfg.Listen),
			zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
			zap.Bool("resolve", resolver != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}
