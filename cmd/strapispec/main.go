package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/bitechdev/StrapiSpec/pkg/builderapi"
	"github.com/bitechdev/StrapiSpec/pkg/cache"
	"github.com/bitechdev/StrapiSpec/pkg/config"
	"github.com/bitechdev/StrapiSpec/pkg/errortracking"
	"github.com/bitechdev/StrapiSpec/pkg/eventbroker"
	"github.com/bitechdev/StrapiSpec/pkg/logger"
	"github.com/bitechdev/StrapiSpec/pkg/metrics"
	"github.com/bitechdev/StrapiSpec/pkg/middleware"
	"github.com/bitechdev/StrapiSpec/pkg/server"
	"github.com/bitechdev/StrapiSpec/pkg/session"
	"github.com/bitechdev/StrapiSpec/pkg/strapi"
	"github.com/bitechdev/StrapiSpec/pkg/tracing"
)

func main() {
	// Load configuration
	cfgMgr := config.NewManager()
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg, err := cfgMgr.GetConfig()
	if err != nil {
		log.Fatalf("Failed to get configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logger with configuration
	logger.Init(cfg.Logger.Dev)
	if cfg.Logger.Path != "" {
		logger.UpdateLoggerPath(cfg.Logger.Path, cfg.Logger.Dev)
	}
	logger.Info("StrapiSpec query builder starting")

	if err := run(cfg); err != nil {
		logger.Error("Server failed: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker, err := errortracking.NewProviderFromConfig(cfg.ErrorTracking)
	if err != nil {
		return err
	}
	logger.InitErrorTracking(tracker)

	shutdownTracing, err := tracing.InitTracer(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Endpoint:       cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		return err
	}

	var prom *metrics.PrometheusProvider
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheusProvider(metrics.DefaultConfig())
		metrics.SetProvider(prom)
	}

	provider, err := cache.NewProviderFromConfig(cfg.Sessions)
	if err != nil {
		return err
	}
	if mem, ok := provider.(*cache.MemoryProvider); ok {
		go mem.RunCleanup(ctx, time.Minute)
	}
	logger.Info("Sessions are kept in the %s store", provider.Name())

	strapiTimeout := cfg.Strapi.Timeout
	clients := func(baseURL, apiKey string) session.Strapi {
		return strapi.NewClient(baseURL, apiKey, strapi.WithTimeout(strapiTimeout))
	}
	instanceID := session.NewID()
	events, err := eventbroker.NewProviderFromConfig(cfg.Events, instanceID)
	if err != nil {
		return err
	}
	if provider.Name() != cache.ProviderMemory && events.Name() == eventbroker.ProviderMemory {
		logger.Warn("Sessions are shared through %s but events are not; watchers only see edits made on this instance", provider.Name())
	}
	logger.Info("Session events go through the %s provider (instance %s)", events.Name(), instanceID)

	manager, err := session.NewManager(session.NewStore(provider, cfg.Sessions.TTL), clients,
		session.WithDefaultConnection(cfg.Strapi.URL, cfg.Strapi.APIKey),
		session.WithEventProvider(events))
	if err != nil {
		_ = events.Close()
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.Middleware.RateLimitRPS, cfg.Middleware.RateLimitBurst)
	go limiter.Run(ctx)
	rateLimit := limiter.Middleware
	if cfg.Middleware.RateLimitRPS == 0 {
		logger.Warn("Rate limiting disabled")
		rateLimit = func(next http.Handler) http.Handler { return next }
	}

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Middleware.CORSOrigins) > 0 {
		corsCfg.AllowedOrigins = cfg.Middleware.CORSOrigins
	}

	r := mux.NewRouter()
	r.Use(tracing.Middleware)
	if prom != nil {
		r.Use(prom.Middleware)
	}
	r.Use(rateLimit, middleware.NewRequestSizeLimiter(cfg.Middleware.MaxRequestSize).Middleware)

	handler := builderapi.NewHandler(manager, builderapi.WithCheckOrigin(corsCfg.AllowsOrigin))
	builderapi.SetupMuxRoutes(r, handler)

	if prom != nil {
		r.Handle(cfg.Metrics.Path, prom.Handler()).Methods("GET")
	}
	r.Handle("/admin/rate-limits", limiter.StatsHandler()).Methods("GET")

	// CORS wraps the router so preflight requests reach it even though no
	// route is registered for OPTIONS
	srv, err := server.NewGracefulServer(server.Config{
		Addr:            cfg.Server.Addr,
		Handler:         middleware.PanicRecovery(middleware.CORS(corsCfg)(r)),
		GZIP:            cfg.Server.GZIP,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DrainTimeout:    cfg.Server.DrainTimeout,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
	})
	if err != nil {
		return err
	}
	r.Handle("/healthz", srv.HealthCheckHandler()).Methods("GET")
	r.Handle("/readyz", srv.ReadinessHandler()).Methods("GET")

	// background loops stop once the server starts shutting down
	srv.OnShutdown(func(context.Context) error {
		cancel()
		return nil
	})

	logger.Info("Listening on %s (default Strapi %q)", cfg.Server.Addr, cfg.Strapi.URL)
	serveErr := srv.ListenAndServe(ctx)

	if err := manager.Close(); err != nil {
		logger.Warn("Failed to close sessions: %v", err)
	}
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("Failed to flush traces: %v", err)
	}
	if err := logger.CloseErrorTracking(); err != nil {
		logger.Warn("Failed to close error tracking: %v", err)
	}
	return serveErr
}
