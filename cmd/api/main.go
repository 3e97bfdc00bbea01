package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	dbpostgres "example.com/salestrack/db/postgres"
	"example.com/salestrack/internal/api"
	"example.com/salestrack/internal/auth"
	"example.com/salestrack/internal/config"
	"example.com/salestrack/internal/domain"
	"example.com/salestrack/internal/outbox"
	"example.com/salestrack/internal/persistence/memory"
	persistence "example.com/salestrack/internal/persistence/postgres"
	httptransport "example.com/salestrack/internal/transport/http"
	authlib "example.com/salestrack/pkg/auth"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := cfg.NewLogger("salestrack-api")
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	var store domain.Store
	switch cfg.DataBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory backend; data is lost on restart and no events are published")
		store = memory.NewStore()
	default:
		if cfg.MigrateOnStart {
			if err := dbpostgres.Migrate(cfg.PostgresURL); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}

		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		store = persistence.NewRepository(pool)

		dispatcher, closeProducer, err := newDispatcher(cfg, pool, logger)
		if err != nil {
			return err
		}
		if dispatcher != nil {
			defer closeProducer()
			g.Go(func() error { return dispatcher.Run(gctx) })
		}
	}

	service := domain.NewService(store, auth.BcryptHasher{}, domain.WithLocation(cfg.Location()))
	issuer := authlib.NewIssuer(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	mux := http.NewServeMux()
	api.NewHandler(service, issuer, logger).RegisterRoutes(mux)

	limiter := api.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)
	g.Go(func() error { return limiter.Run(gctx) })

	middlewares := []api.Middleware{api.RequestID, api.ClientIP(cfg.TrustProxyHeaders), api.AccessLog(logger.With("component", "http"))}
	if cfg.CORSOrigin != "" {
		middlewares = append(middlewares, api.CORS(cfg.CORSOrigin))
	}
	middlewares = append(middlewares, limiter.Middleware, auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}).Wrap)

	apiCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	apiServer := httptransport.NewServer(apiCfg, api.Chain(mux, middlewares...))
	g.Go(func() error { return httptransport.Run(gctx, apiServer, apiCfg.ShutdownTimeout, logger) })

	metricsCfg := httptransport.DefaultServerConfig(cfg.MetricsAddress)
	metricsServer := httptransport.NewServer(metricsCfg, promhttp.Handler())
	g.Go(func() error { return httptransport.Run(gctx, metricsServer, metricsCfg.ShutdownTimeout, logger) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newDispatcher returns a nil dispatcher when event publishing is disabled.
func newDispatcher(cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*outbox.Dispatcher, func(), error) {
	var (
		producer outbox.MessageWriter
		closer   func() error
	)
	switch cfg.EventTransport {
	case config.TransportNone:
		logger.Info("event transport disabled; outbox rows stay queued")
		return nil, func() {}, nil
	case config.TransportAMQP:
		p, err := outbox.NewAMQPProducer(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		producer, closer = p, p.Close
	default:
		p := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		producer, closer = p, p.Close
	}

	var registry outbox.SchemaRegistrar
	if cfg.SchemaRegistryURL != "" {
		registry = outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	}

	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger.With("component", "outbox"))
	return dispatcher, func() {
		if err := closer(); err != nil {
			logger.Warn("closing producer", "err", err)
		}
	}, nil
}
