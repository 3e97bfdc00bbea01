package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"example.com/salestrack/internal/config"
	"example.com/salestrack/internal/outbox"
	httptransport "example.com/salestrack/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := cfg.NewLogger("salestrack-dlqmanager")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dlq manager stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger.With("component", "dlq"))
	g, gctx := errgroup.WithContext(ctx)

	metricsCfg := httptransport.DefaultServerConfig(cfg.MetricsAddress)
	metricsSrv := httptransport.NewServer(metricsCfg, promhttp.Handler())
	g.Go(func() error { return httptransport.Run(gctx, metricsSrv, metricsCfg.ShutdownTimeout, logger) })

	logger.Info("dlq manager started", "interval", cfg.DLQPollInterval, "max_retries", cfg.DLQMaxRetries)
	g.Go(func() error { return manager.Run(gctx, cfg.DLQPollInterval, defaultDLQBatchSize) })

	return g.Wait()
}
