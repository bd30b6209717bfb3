package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdigest/internal/config"
	"github.com/kailas-cloud/newsdigest/internal/db"
	dbRedis "github.com/kailas-cloud/newsdigest/internal/db/redis"
	"github.com/kailas-cloud/newsdigest/internal/domain"
	logpkg "github.com/kailas-cloud/newsdigest/internal/logger"
	"github.com/kailas-cloud/newsdigest/internal/metrics"
	budgetrepo "github.com/kailas-cloud/newsdigest/internal/repository/budget"
	digestrepo "github.com/kailas-cloud/newsdigest/internal/repository/digest"
	"github.com/kailas-cloud/newsdigest/internal/repository/respcache"
	"github.com/kailas-cloud/newsdigest/internal/transport/gemini"
	"github.com/kailas-cloud/newsdigest/internal/transport/market"
	openaiTransport "github.com/kailas-cloud/newsdigest/internal/transport/openai"
	"github.com/kailas-cloud/newsdigest/internal/usecase/annotate"
	"github.com/kailas-cloud/newsdigest/internal/usecase/digest"
	"github.com/kailas-cloud/newsdigest/internal/usecase/inference"
	"github.com/kailas-cloud/newsdigest/internal/version"
)

// deps is the composition root shared by every command.
type deps struct {
	env       string
	cfg       config.Config
	logger    *zap.Logger
	store     db.Store         // nil when the cache is disabled or unreachable
	archive   *digestrepo.Repo // nil when archiving is disabled
	provider  domain.Generator // bare transport, used for health checks
	budget    *inference.BudgetTracker
	annotator *annotate.Service
}

func loadConfig(c *cli.Context) (config.Config, string, error) {
	env := c.String("env")
	if path := c.String("config"); path != "" {
		cfg, err := config.LoadFile(path)
		return cfg, env, err
	}
	cfg, err := config.Load(env)
	return cfg, env, err
}

func bootstrap(c *cli.Context) (*deps, error) {
	cfg, env, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Info("Starting newsdigest",
		zap.String("command", c.Command.Name),
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("provider", cfg.Inference.Provider),
		zap.String("model", cfg.Inference.Model),
	)

	metrics.Register()

	d := &deps{env: env, cfg: cfg, logger: logger}
	ctx := c.Context

	if cfg.Cache.Enabled() {
		d.store = openStore(ctx, cfg.Cache, logger)
	}

	if cfg.Archive.Path != "" {
		archive, err := digestrepo.Open(ctx, cfg.Archive.Path)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		d.archive = archive
		logger.Info("Run archive opened", zap.String("path", cfg.Archive.Path))
	}

	d.provider, err = buildProvider(ctx, cfg.Inference, logger)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create %s provider: %w", cfg.Inference.Provider, err)
	}

	d.budget = buildBudget(ctx, cfg.Inference, d.store, logger)
	gen := buildGenerator(d.provider, cfg, d.store, d.budget, logger)
	d.annotator = annotate.New(gen, cfg.Taxonomy(), annotateConfig(cfg.Pipeline), logger)
	return d, nil
}

// openStore connects the response cache store. An unreachable store degrades
// to uncached calls and in-memory budget counters.
func openStore(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) db.Store {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
	})
	if err != nil {
		logger.Warn("Cache store unavailable, continuing without cache", zap.Error(err))
		return nil
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		logger.Warn("Cache store not ready, continuing without cache", zap.Error(err))
		store.Close()
		return nil
	}
	logger.Info("Connected to cache store", zap.Strings("addrs", cfg.Addrs))
	return store
}

func buildProvider(ctx context.Context, cfg config.InferenceConfig, logger *zap.Logger) (domain.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openaiTransport.NewGenerator(&openaiTransport.Config{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Provider: cfg.Provider,
			Logger:   logger,
		}), nil
	default:
		gen, err := gemini.NewGenerator(ctx, &gemini.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	}
}

// buildGenerator assembles the decorator chain: transport -> cached -> instrumented.
// The budget sits outside the cache so that cache hits stay free.
func buildGenerator(
	provider domain.Generator,
	cfg config.Config,
	store db.Store,
	tracker *inference.BudgetTracker,
	logger *zap.Logger,
) domain.Generator {
	gen := provider
	if store != nil {
		gen = respcache.New(provider, store, cfg.Inference.Model, cfg.Cache.TTL(), metrics.InferenceCacheTotal, logger)
	}

	// nil interface, not a typed nil pointer, when no budget is configured.
	var budget inference.BudgetChecker
	if tracker != nil {
		budget = tracker
	}
	return inference.NewInstrumentedGenerator(gen, cfg.Inference.Provider, cfg.Inference.Model, budget, logger)
}

func buildBudget(
	ctx context.Context,
	cfg config.InferenceConfig,
	store db.Store,
	logger *zap.Logger,
) *inference.BudgetTracker {
	b := cfg.Budget
	if b.DailyRequestLimit <= 0 && b.MonthlyRequestLimit <= 0 {
		return nil
	}
	action := inference.BudgetActionWarn
	if b.Action == "reject" {
		action = inference.BudgetActionReject
	}
	tracker := inference.NewBudgetTracker(cfg.Provider, b.DailyRequestLimit, b.MonthlyRequestLimit, action, logger)
	if store != nil {
		tracker.WithStore(ctx, budgetrepo.New(store, 0, 0))
	}
	return tracker
}

func annotateConfig(p config.PipelineConfig) annotate.Config {
	cfg := annotate.DefaultConfig()
	cfg.Annotation = p.Annotation()
	cfg.Retry = annotate.RetryPolicy{
		MaxAttempts:    p.MaxAttempts,
		RateLimitDelay: config.Seconds(p.RateLimitDelaySec),
		BaseDelay:      config.Seconds(p.AuditedBaseDelaySec),
	}
	cfg.LegacyRetry = annotate.RetryPolicy{
		MaxAttempts:    p.MaxAttempts,
		RateLimitDelay: config.Seconds(p.RateLimitDelaySec),
		BaseDelay:      config.Seconds(p.LegacyBaseDelaySec),
	}
	cfg.PassDelay = config.Seconds(p.PassDelaySec)
	cfg.ChunkDelay = config.Seconds(p.ChunkDelaySec)
	cfg.RecoveryDelay = config.Seconds(p.RecoveryDelaySec)
	if p.AuditGapFallback != nil {
		cfg.AuditGapFallback = *p.AuditGapFallback
	}
	return cfg
}

// buildMarket returns the futures source of the feed, or nil when disabled.
func buildMarket(cfg config.MarketConfig) digest.MarketSource {
	if cfg.Disabled {
		return nil
	}
	return market.NewClient(market.Config{
		BaseURL: cfg.BaseURL,
		Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
	})
}

// providerChecker adapts the transport to health.ProviderChecker.
type providerChecker struct {
	gen domain.Generator
}

func (p providerChecker) HealthCheck(ctx context.Context) error {
	hc, ok := p.gen.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("provider health check: %w", err)
	}
	return nil
}

// Close releases the store and the archive, then flushes the logger.
func (d *deps) Close() {
	if d.archive != nil {
		if err := d.archive.Close(); err != nil {
			d.logger.Warn("Failed to close archive", zap.Error(err))
		}
	}
	if d.store != nil {
		d.store.Close()
	}
	_ = d.logger.Sync()
}
