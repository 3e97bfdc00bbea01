package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"example.com/salestrack/internal/config"
	"example.com/salestrack/internal/consumer"
	httptransport "example.com/salestrack/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := cfg.NewLogger("salestrack-consumer")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if len(cfg.ConsumerTopics) == 0 {
		return errors.New("CONSUMER_TOPICS is empty")
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	handler := consumer.NewPersistenceHandler(pool)
	g, gctx := errgroup.WithContext(ctx)

	metricsCfg := httptransport.DefaultServerConfig(cfg.MetricsAddress)
	metricsSrv := httptransport.NewServer(metricsCfg, promhttp.Handler())
	g.Go(func() error { return httptransport.Run(gctx, metricsSrv, metricsCfg.ShutdownTimeout, logger) })

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		topicLogger := logger.With("component", "consumer", "topic", topic)
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(topicLogger))
		topic := topic

		g.Go(func() error {
			defer reader.Close()
			topicLogger.Info("consumer started", "group", cfg.ConsumerGroupID)
			if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume %s: %w", topic, err)
			}
			return nil
		})
	}

	return g.Wait()
}
