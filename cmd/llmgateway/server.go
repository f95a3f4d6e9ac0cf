package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/llmgateway/api/handlers"
	"github.com/BaSui01/llmgateway/config"
	"github.com/BaSui01/llmgateway/internal/auth"
	"github.com/BaSui01/llmgateway/internal/cost"
	"github.com/BaSui01/llmgateway/internal/database"
	"github.com/BaSui01/llmgateway/internal/metrics"
	"github.com/BaSui01/llmgateway/internal/pricing"
	"github.com/BaSui01/llmgateway/internal/ratelimit"
	"github.com/BaSui01/llmgateway/internal/server"
	"github.com/BaSui01/llmgateway/internal/store"
	"github.com/BaSui01/llmgateway/internal/telemetry"
	"github.com/BaSui01/llmgateway/llm"
	"github.com/BaSui01/llmgateway/llm/fallback"
	"github.com/BaSui01/llmgateway/llm/providers/deepseek"
	"github.com/BaSui01/llmgateway/llm/providers/huggingface"
	"github.com/BaSui01/llmgateway/llm/providers/openai"
	"github.com/BaSui01/llmgateway/llm/router"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	_ = fs.Parse(args)

	cfg := mustConfig(*configPath)
	logger := mustLogger(cfg)
	defer func() { _ = logger.Sync() }()

	if !cfg.AnyProviderConfigured() {
		logger.Fatal("no provider API keys configured")
	}
	if cfg.Database.URL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Fatal("gateway exited", zap.Error(err))
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tracing, err := telemetry.NewTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()

	st, err := store.Open(cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	poolCfg.ConnMaxLifetime = cfg.Database.ConnLifetime
	pool, err := database.Configure(st.DB(), poolCfg, logger)
	if err != nil {
		return fmt.Errorf("configure pool: %w", err)
	}
	defer func() { _ = pool.Close() }()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}

	collector := metrics.NewCollector()
	table := pricing.NewTable()
	authenticator := auth.New(st, logger)
	limiter := ratelimit.New()
	recorder := cost.New(st, table, collector, logger)
	executor := fallback.New(logger, fallback.WithTracer(tracing.Tracer()))
	rt := router.New(buildProviders(cfg, logger)...)

	logger.Info("providers registered", zap.Strings("providers", rt.Providers()))

	mux := buildMux(authenticator, limiter, rt, executor, recorder, st, table, collector, logger)

	apiServer := server.NewManager(server.Config{
		Addr:            cfg.Server.HTTPAddr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, Chain(mux, Recovery(logger), RequestLogger(logger)), logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", collector.Handler())
	metricsServer := server.NewManager(server.DefaultConfig(cfg.Server.MetricsAddr), metricsMux, logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return apiServer.Run(ctx) })
	group.Go(func() error { return metricsServer.Run(ctx) })
	return group.Wait()
}

// buildProviders registers an adapter for every configured upstream key.
func buildProviders(cfg *config.Config, logger *zap.Logger) []llm.Provider {
	var providers []llm.Provider
	timeout := cfg.Providers.Timeout

	if cfg.Providers.OpenAIAPIKey != "" {
		providers = append(providers, openai.New(openai.Config{
			APIKey:       cfg.Providers.OpenAIAPIKey,
			Organization: cfg.Providers.OpenAIOrg,
			Timeout:      timeout,
		}, logger))
	}
	if cfg.Providers.DeepSeekAPIKey != "" {
		providers = append(providers, deepseek.New(deepseek.Config{
			APIKey:  cfg.Providers.DeepSeekAPIKey,
			Timeout: timeout,
		}, logger))
	}
	if cfg.Providers.HuggingFaceAPIKey != "" {
		providers = append(providers, huggingface.New(huggingface.Config{
			APIKey:  cfg.Providers.HuggingFaceAPIKey,
			Timeout: timeout,
		}, logger))
	}
	return providers
}

// buildMux mounts every route on a fresh mux. Shared with the end-to-end
// tests so they exercise the same routing table as production.
func buildMux(
	authenticator *auth.Authenticator,
	limiter *ratelimit.Limiter,
	rt *router.Router,
	executor *fallback.Executor,
	recorder *cost.Recorder,
	st *store.Store,
	table *pricing.Table,
	collector *metrics.Collector,
	logger *zap.Logger,
) *http.ServeMux {
	chat := handlers.NewChatHandler(authenticator, limiter, rt, executor, recorder, st, collector, logger)
	costs := handlers.NewCostsHandler(authenticator, st, table, logger)
	routing := handlers.NewRoutingHandler(rt, logger)
	health := handlers.NewHealthHandler()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", chat.HandleChatCompletion)
	mux.HandleFunc("GET /v1/costs", costs.HandleCosts)
	mux.HandleFunc("GET /v1/costs/records", costs.HandleCostRecords)
	mux.HandleFunc("GET /v1/overview", costs.HandleOverview)
	mux.HandleFunc("GET /v1/analytics", costs.HandleAnalytics)
	mux.HandleFunc("GET /v1/transactions/recent", costs.HandleRecentTransactions)
	mux.HandleFunc("GET /v1/routing/preview", routing.HandleRoutingPreview)
	mux.HandleFunc("GET /v1/providers", routing.HandleProviders)
	mux.HandleFunc("GET /health", health.HandleHealth)
	// Also exposed on the dedicated metrics listener.
	mux.Handle("GET /metrics", collector.Handler())
	mux.HandleFunc("GET /", health.HandleRoot)
	return mux
}
