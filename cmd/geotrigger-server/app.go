package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	jsonfile "geotrigger/adapters/jsonfile"
	mem "geotrigger/adapters/memory"
	redisAdapter "geotrigger/adapters/redis"
	sqlxAdapter "geotrigger/adapters/sqlx"
	"geotrigger/analytics"
	"geotrigger/api/httpapi"
	"geotrigger/catalog"
	"geotrigger/config"
	"geotrigger/core"
	"geotrigger/engine"
	"geotrigger/integrations/push"
	"geotrigger/leaderboard"
	"geotrigger/metrics"
	"geotrigger/passport"
	"geotrigger/realtime"
	"geotrigger/rewards"
	"geotrigger/webhook"
)

// App aggregates the assembled server components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Hub       *realtime.Hub
	Bus       *engine.EventBus
	Board     *leaderboard.Standings
	Collector *analytics.Collector
	Analytics *analytics.AggregationEngine
	Metrics   *metrics.Metrics
	Sweeper   *engine.Sweeper
	Handler   http.Handler
	Server    *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	if path := os.Getenv("GEOTRIGGER_CONFIG"); path != "" {
		return config.LoadFromFile(path)
	}
	if profile := os.Getenv("GEOTRIGGER_PROFILE"); profile != "" {
		return config.LoadProfile(profile)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.Catalog.Path)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideBus(cfg *config.Config) *engine.EventBus {
	mode := engine.DispatchSync
	if cfg.Engine.Dispatch == "async" {
		mode = engine.DispatchAsync
	}
	return engine.NewEventBus(mode)
}

func provideBoard() *leaderboard.Standings {
	return leaderboard.NewStandings()
}

func provideCollector() *analytics.Collector {
	return analytics.NewCollector()
}

func provideAnalytics(collector *analytics.Collector) *analytics.AggregationEngine {
	return analytics.NewAggregationEngine(collector, time.Hour)
}

func provideMetrics(cfg *config.Config) *metrics.Metrics {
	return metrics.New(cfg.Metrics.CollectSystem)
}

func provideStorage(ctx context.Context, cfg *config.Config) (engine.Repository, error) {
	repo, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.DirectoryPath != "" {
		if err := seedDirectory(ctx, cfg.Storage.DirectoryPath, repo); err != nil {
			return nil, fmt.Errorf("seed user/venue directory: %w", err)
		}
	}
	return repo, nil
}

func provideNotifier(cfg *config.Config, logger *slog.Logger) engine.Notifier {
	return push.New(cfg.Notifications.PushEndpoints, push.WithLogger(logger))
}

func provideTiers(cat *catalog.Catalog) (*core.TierTable, error) {
	return cat.TierTable()
}

func provideCalculator(tiers *core.TierTable, cat *catalog.Catalog) *core.PointsCalculator {
	return core.NewPointsCalculator(tiers, cat.PointsRules)
}

func provideValidator(repo engine.Repository, cat *catalog.Catalog, logger *slog.Logger) (*passport.Validator, error) {
	return passport.NewValidator(repo, cat.Templates, cat.Achievements, cat.DefaultTemplateID,
		passport.WithLogger(logger))
}

func provideEvaluator(repo engine.Repository, cat *catalog.Catalog, cfg *config.Config, logger *slog.Logger) (*rewards.Evaluator, error) {
	codes := rewards.NewCodeGenerator("GEO", rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	return rewards.NewEvaluator(cat.Promotions, cat.HappyHours, cat.Weather,
		engine.NewDisplayGate(repo), codes,
		rewards.WithThreshold(cfg.Engine.TriggerThreshold),
		rewards.WithEvaluatorLogger(logger))
}

func provideRedeemer(repo engine.Repository) *rewards.Redeemer {
	return rewards.NewRedeemer(repo)
}

func provideGuard(repo engine.Repository, cfg *config.Config, logger *slog.Logger) *webhook.Guard {
	opts := []webhook.GuardOption{
		webhook.WithDedupWindow(cfg.Engine.DedupWindow),
		webhook.WithMaxAccuracy(cfg.Engine.MaxAccuracyMeters),
		webhook.WithGuardLogger(logger),
	}
	if cfg.Webhook.SigningSecret != "" {
		opts = append(opts, webhook.WithSigningSecret(cfg.Webhook.SigningSecret))
	}
	return webhook.NewGuard(repo, opts...)
}

func provideOrchestrator(repo engine.Repository, notifier engine.Notifier, bus *engine.EventBus,
	tiers *core.TierTable, calc *core.PointsCalculator, validator *passport.Validator,
	evaluator *rewards.Evaluator, cfg *config.Config, logger *slog.Logger) (*engine.Orchestrator, error) {
	return engine.NewOrchestrator(repo, notifier, bus, tiers, calc, validator, evaluator,
		engine.WithExtendedVisit(cfg.Engine.ExtendedVisit),
		engine.WithOrchestratorLogger(logger))
}

func provideSweeper(repo engine.Repository, bus *engine.EventBus, cfg *config.Config, logger *slog.Logger) *engine.Sweeper {
	return engine.NewSweeper(repo, bus,
		engine.WithSweepInterval(cfg.Engine.SweepInterval),
		engine.WithSweeperLogger(logger))
}

func provideHandler(orch *engine.Orchestrator, guard *webhook.Guard, redeemer *rewards.Redeemer,
	evaluator *rewards.Evaluator, repo engine.Repository, hub *realtime.Hub, bus *engine.EventBus,
	m *metrics.Metrics, board *leaderboard.Standings, cfg *config.Config) http.Handler {
	deps := httpapi.Deps{
		Orchestrator: orch,
		Guard:        guard,
		Redeemer:     redeemer,
		Evaluator:    evaluator,
		Repo:         repo,
		Hub:          hub,
		Bus:          bus,
		Metrics:      m,
		Board:        board,
	}
	if lister, ok := repo.(httpapi.RewardsLister); ok {
		deps.Lister = lister
	}
	return httpapi.NewMux(deps, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		MaxBodyBytes:     cfg.Webhook.MaxBodyBytes,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(ctx context.Context, cfg *config.Config) (engine.Repository, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		store, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

// seedDirectory loads the JSON user/venue registry into the operational store.
func seedDirectory(ctx context.Context, path string, repo engine.Repository) error {
	target, ok := repo.(jsonfile.Target)
	if !ok {
		return fmt.Errorf("storage adapter %T cannot be seeded", repo)
	}
	dir, err := jsonfile.New(path)
	if err != nil {
		return err
	}
	return dir.Seed(ctx, target)
}
