package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"opsync/internal/api"
	"opsync/internal/config"
	"opsync/internal/connectivity"
	"opsync/internal/domain"
	"opsync/internal/engine"
	"opsync/internal/events"
	"opsync/internal/intercept"
	"opsync/internal/logging"
	"opsync/internal/metrics"
	"opsync/internal/repository"
	"opsync/internal/store"
	"opsync/internal/transport"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	metrics.Register()

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open durable store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := events.NewEventBus()
	subscribeStatusEvents(notifier, logger)

	monitor := connectivity.NewMonitor(notifier, logger)

	resolver := transport.NewResolver(cfg.Endpoints)
	httpClient := transport.NewHTTPClient(resolver, cfg.Transport.TimeoutDuration(), logger)

	cache := buildCache(cfg, db, logger)

	interceptor := intercept.New(httpClient, db, db, cache, monitor, notifier, logger)

	retryPolicy := engine.RetryPolicy{
		MaxRetries:    cfg.Sync.MaxRetries,
		InitialDelay:  cfg.Sync.InitialDelayDuration(),
		MaxDelay:      cfg.Sync.MaxDelayDuration(),
		BackoffFactor: cfg.Sync.BackoffFactor,
	}
	syncEngine := engine.New(db, httpClient, monitor, notifier, retryPolicy, cfg.Sync.BatchSize, cfg.Sync.Schedule, logger)

	prober := connectivity.NewProber(monitor, httpClient.Ping, cfg.Sync.ProbeIntervalDuration(), logger)
	go prober.Start(ctx)

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, db, syncEngine, monitor, interceptor, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("admin API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		go servePrometheus(cfg.Monitoring.PrometheusPort, logger)
	}

	logger.Info().Str("db", cfg.Database.Path).Str("endpoint", resolver.BaseURL()).Msg("syncd started")
	return syncEngine.Start(ctx)
}

// buildCache assembles the read-cache tiers: durable SQLite always, with
// a redis-fronted hot tier (memory fallback) when redis is configured.
func buildCache(cfg *config.Config, db *store.Store, logger *zerolog.Logger) domain.CacheRepository {
	durable := repository.NewDurableCache(db)
	if !cfg.Redis.Enabled {
		return repository.NewTieredCache(repository.NewMemoryCache(cfg.Redis.CacheTTLDuration()), durable, logger)
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	hot := repository.NewFailoverCache(
		repository.NewRedisCache(redisClient, cfg.Redis.CacheTTLDuration()),
		repository.NewMemoryCache(cfg.Redis.CacheTTLDuration()),
		logger,
	)
	return repository.NewTieredCache(hot, durable, logger)
}

func subscribeStatusEvents(notifier *events.EventBus, logger *zerolog.Logger) {
	notifier.Subscribe(events.EventSyncCompleted, func(e *events.Event) error {
		logger.Debug().RawJSON("summary", e.Payload).Msg("sync completed")
		return nil
	})
	notifier.Subscribe(events.EventOpFailed, func(e *events.Event) error {
		logger.Warn().RawJSON("operation", e.Payload).Msg("operation went terminal")
		return nil
	})
}

func servePrometheus(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("prometheus metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("prometheus server error")
	}
}
