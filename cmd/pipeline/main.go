package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/storywire/storywire/internal/analysis"
	"github.com/storywire/storywire/internal/cache"
	"github.com/storywire/storywire/internal/clustering"
	"github.com/storywire/storywire/internal/config"
	"github.com/storywire/storywire/internal/database"
	"github.com/storywire/storywire/internal/ingestion"
	"github.com/storywire/storywire/internal/logging"
	"github.com/storywire/storywire/internal/metrics"
	"github.com/storywire/storywire/internal/pipeline"
	"github.com/storywire/storywire/internal/resilience"
	"github.com/storywire/storywire/internal/scheduler"
	"github.com/storywire/storywire/internal/server"
)

func main() {
	// Local development convenience; production sets real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting storywire pipeline")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("connecting to database")
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.EnsureSchema(db, logger); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	logger.Info("connecting to cache", "addr", cfg.Redis.Addr)
	sharedCache, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to cache", "error", err)
		os.Exit(1)
	}
	defer sharedCache.Close()
	logger.Info("cache connected")

	articleRepo := database.NewPostgresArticleRepository(db)
	narrativeRepo := database.NewPostgresNarrativeRepository(db)

	keys := resilience.NewKeyManager(sharedCache, logger)
	providerKeys := map[string][]string{
		ingestion.FeedProviderName:     cfg.Providers.FeedKeys,
		analysis.AnalysisProviderName:  cfg.Providers.OpenAIKeys,
		analysis.EmbeddingProviderName: cfg.Providers.OpenAIKeys,
		analysis.SynthesisProviderName: cfg.Providers.OpenAIKeys,
	}
	for provider, pool := range providerKeys {
		if err := keys.Register(provider, pool); err != nil {
			logger.Error("failed to register provider keys", "provider", provider, "error", err)
			os.Exit(1)
		}
	}

	breaker := resilience.NewCircuitBreaker(sharedCache, logger)
	exec := resilience.NewExecutor(keys, breaker, logger)

	analyzerConfig := analysis.DefaultClientConfig()
	analyzerConfig.AnalysisModel = cfg.Providers.AnalysisModel
	analyzerConfig.EmbeddingModel = cfg.Providers.EmbeddingModel
	analyzerConfig.CallTimeout = cfg.Providers.CallTimeout
	analyzer := analysis.NewClient(exec, analyzerConfig, logger)

	connectors := []ingestion.Connector{
		ingestion.NewFeedConnector(cfg.Providers.FeedBaseURL, exec, cfg.Providers.CallTimeout, logger),
	}
	if len(cfg.Providers.RSSFeeds) > 0 {
		connectors = append(connectors, ingestion.NewRSSConnector(cfg.Providers.RSSFeeds, logger))
	}

	cycle, err := ingestion.NewCycleManager(sharedCache, cfg.Pipeline.FetchConfigs, logger)
	if err != nil {
		logger.Error("failed to create cycle manager", "error", err)
		os.Exit(1)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	gate := ingestion.NewQualityGate(ingestion.DefaultQualityConfig(), logger)
	seen := ingestion.NewSeenFilter(sharedCache, articleRepo, hostname, logger)
	assigner := clustering.NewAssigner(articleRepo, sharedCache, logger)
	visibility := clustering.NewVisibilityOptimizer(articleRepo, logger)
	trigger := clustering.NewNarrativeTrigger(articleRepo, narrativeRepo, analyzer, logger)

	collector, err := metrics.NewPipelineCollector()
	if err != nil {
		logger.Error("failed to create metrics collector", "error", err)
		os.Exit(1)
	}

	narrativeScheduler := scheduler.NewNarrativeScheduler(trigger, collector, logger)
	narrativeScheduler.Start(ctx)
	defer narrativeScheduler.Stop()

	pipe := pipeline.New(
		cycle,
		connectors,
		gate,
		seen,
		analyzer,
		assigner,
		visibility,
		narrativeScheduler,
		articleRepo,
		collector,
		logger,
		pipeline.Config{
			Interval:        cfg.Pipeline.Interval,
			AnalysisWorkers: cfg.Pipeline.AnalysisWorkers,
		},
	)

	srv := server.New(cfg.Server, logger, collector.Handler(), map[string]server.HealthChecker{
		"database": dbChecker{db: db},
		"cache":    sharedCache,
	})

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server failed", "error", err)
			cancel()
		}
	}()

	go func() {
		if err := pipe.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("pipeline stopped", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx := context.Background()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("storywire pipeline stopped")
}

// dbChecker adapts *sql.DB to the server health interface.
type dbChecker struct {
	db interface {
		PingContext(ctx context.Context) error
	}
}

func (c dbChecker) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
