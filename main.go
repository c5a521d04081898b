package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/adapter/llm"
	"github.com/xiaot623/gogo/gateway/internal/config"
	"github.com/xiaot623/gogo/gateway/internal/dispatch"
	"github.com/xiaot623/gogo/gateway/internal/policy"
	"github.com/xiaot623/gogo/gateway/internal/repository"
	"github.com/xiaot623/gogo/gateway/internal/security"
	"github.com/xiaot623/gogo/gateway/internal/session"
	"github.com/xiaot623/gogo/gateway/internal/skills"
	"github.com/xiaot623/gogo/gateway/internal/telemetry"
	handler "github.com/xiaot623/gogo/gateway/internal/transport/http"
	"github.com/xiaot623/gogo/gateway/internal/transport/http/llmproxy"
	"github.com/xiaot623/gogo/gateway/internal/transport/ws"
	"github.com/xiaot623/gogo/gateway/internal/worker"
	"github.com/xiaot623/gogo/gateway/internal/workflow"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	telemetry.SetupLogging(cfg.LogLevel, cfg.LogPretty)

	ctx := context.Background()
	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:      cfg.OTelEnabled,
		OTLPEndpoint: cfg.OTelEndpoint,
		ServiceName:  cfg.OTelServiceName,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	authMode := cfg.Proxy.AuthMode.Resolve(cfg.Proxy.AllowLANAccess)
	log.Info().
		Str("addr", cfg.ListenAddr()).
		Str("database", cfg.DatabaseURL).
		Str("upstream", cfg.UpstreamURL).
		Str("auth_mode", string(authMode)).
		Str("zai_dispatch", string(cfg.Proxy.ZAI.DispatchMode)).
		Msg("starting gateway")
	if cfg.Proxy.GeneratedKey {
		// /internal routes always require the key, whatever the auth mode.
		log.Warn().Str("api_key", cfg.Proxy.APIKey).Msg("no PROXY_API_KEY configured, generated one for this run")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.MustNewMetrics(reg)

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer db.Close()

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize policy engine")
	}
	registry := security.NewRegistry()
	gate := security.NewGate(registry, policyEngine)

	// Skills adapter
	router := skills.NewProcessRouter(cfg.SkillsRouterCmd, cfg.SkillsRouterDir)
	loader, err := skills.NewLoader(cfg.SkillsIndexPath, cfg.SkillsBaseDir, cfg.SkillsCacheSize)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize skill loader")
	}

	pool := worker.NewPool(cfg.WorkerConcurrency)
	svc := session.New(
		session.Config{MaxSkills: cfg.MaxSkills, MaxBytes: cfg.MaxSkillBytes},
		db, gate, router, loader,
		workflow.NewExecutor(cfg.ArtifactDir),
		pool, metrics,
	)

	// Upstream dispatch
	primary := dispatch.NewStaticPool(dispatch.Target{
		Name:     "primary",
		BaseURL:  cfg.UpstreamURL,
		APIKey:   cfg.UpstreamAPIKey,
		Protocol: dispatch.ProtocolOpenAI,
	})
	dispatcher := dispatch.NewDispatcher(primary, nil, cfg.Proxy.ZAI)
	llmClient := llm.NewLLMClient(cfg.LLMTimeout)

	hub := ws.NewHub(metrics)
	wsServer := ws.NewServer(ws.Config{
		PingInterval:   cfg.WSPingInterval,
		WriteTimeout:   cfg.WSWriteTimeout,
		ReadTimeout:    cfg.WSReadTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
	}, hub, svc)

	server := handler.NewServer(handler.Options{
		AuthMode: authMode,
		APIKey:   cfg.Proxy.APIKey,
		WS:       wsServer,
		Hub:      hub,
		Proxy:    llmproxy.NewHandler(llmClient, dispatcher, metrics),
		Registry: registry,
		Skills:   loader,
		Gatherer: reg,
	})

	go func() {
		if err := server.Start(cfg.ListenAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Str("addr", cfg.ListenAddr()).Msg("gateway started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down gateway")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to shutdown server gracefully")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("failed to flush traces")
	}

	log.Info().Msg("gateway stopped")
}
