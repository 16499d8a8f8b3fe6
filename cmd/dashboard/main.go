package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DukeRupert/mapaclientes/internal"
	"github.com/DukeRupert/mapaclientes/internal/apiclient"
	"github.com/DukeRupert/mapaclientes/internal/csrf"
	"github.com/DukeRupert/mapaclientes/internal/handler"
	"github.com/DukeRupert/mapaclientes/internal/metrics"
	"github.com/DukeRupert/mapaclientes/internal/middleware"
	"github.com/DukeRupert/mapaclientes/internal/monitor"
	"github.com/DukeRupert/mapaclientes/internal/service"
	"github.com/DukeRupert/mapaclientes/internal/session"
	"github.com/DukeRupert/mapaclientes/web"
)

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	isSecure := !cfg.IsDevelopment()

	// Backend client
	client := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIURL,
		Logger:  logger,
	})
	logger.Info("Backend configured", "api_url", client.BaseURL())

	// Connection monitor
	monitorCfg := monitor.DefaultConfig()
	monitorCfg.Interval = cfg.HealthInterval
	monitorCfg.Paths = cfg.HealthPaths
	mon, err := monitor.New(client, monitorCfg, logger)
	if err != nil {
		return fmt.Errorf("monitor initialization failed: %w", err)
	}
	mon.Start(ctx)
	defer mon.Stop()

	sampler, err := monitor.NewSampler(client, monitor.SamplerConfig{
		Interval:    cfg.StatsInterval,
		HistorySize: 10,
		Paths:       cfg.HealthPaths,
	}, logger)
	if err != nil {
		return fmt.Errorf("sampler initialization failed: %w", err)
	}
	defer sampler.Stop()

	// Initialize services
	panels := service.NewPanels(client, logger)
	diagnostics := service.NewDiagnostics(client, logger)
	authService := service.NewAuthService(client, logger)

	sessions := session.NewStore(cfg.SessionTTL, logger)
	go sessions.Run(ctx, 10*time.Minute)

	toasts := handler.NewToastStore(isSecure)
	go toasts.Run(ctx, time.Minute)

	// Initialize template renderer
	rendererCfg := handler.RendererConfig{FS: web.Templates(), Logger: logger}
	if cfg.IsDevelopment() {
		rendererCfg.WatchDir = cfg.TemplatesDir
	}
	renderer, err := handler.NewRenderer(rendererCfg)
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}
	logger.Info("Templates loaded", "count", len(renderer.ListTemplates()))
	if rendererCfg.WatchDir != "" {
		go func() {
			if err := renderer.Watch(ctx); err != nil {
				logger.Warn("template watcher stopped", "error", err)
			}
		}()
	}

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(sessions, logger, cfg.AuthRequired, isSecure)
	loginLimiter := middleware.NewLoginRateLimiter(logger)
	defer loginLimiter.Close()
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)
	if !metricsAuth.Enabled() && !cfg.IsDevelopment() {
		logger.Warn("/metrics is served without authentication")
	}

	// Initialize handlers
	shell := handler.NewShell(renderer, mon, toasts, logger, cfg.AuthRequired)
	hub := handler.NewStatusHub(mon, logger)
	go hub.Run(ctx)

	routes := handler.Routes{
		Dashboard: handler.NewDashboardHandler(shell, panels, logger),
		Clientes:  handler.NewClienteHandler(shell, panels.Clientes, logger),
		Camiones: handler.NewEntityHandler(shell, panels.Camiones, handler.EntityConfig{
			BasePath:     "/camiones",
			Title:        "Camiones",
			ListTemplate: "entidades/list",
		}, logger),
		DiasEntrega: handler.NewEntityHandler(shell, panels.DiasEntrega, handler.EntityConfig{
			BasePath:     "/dias-entrega",
			Title:        "Días de Entrega",
			ListTemplate: "entidades/list",
		}, logger),
		Config: handler.NewConfigHandler(handler.ConfigHandlerConfig{
			Shell:         shell,
			Status:        mon,
			Sampler:       sampler,
			Pinger:        diagnostics,
			APIURL:        client.BaseURL(),
			StatsInterval: cfg.StatsInterval,
			AppContext:    ctx,
			Logger:        logger,
		}),
		Status: handler.NewStatusHandler(mon, hub, renderer, logger),
		Auth: handler.NewAuthHandler(handler.AuthHandlerConfig{
			Auth:     authService,
			Sessions: sessions,
			Limiter:  loginLimiter,
			Renderer: renderer,
			Logger:   logger,
			IsSecure: isSecure,
			Required: cfg.AuthRequired,
		}),
		Static:      web.Static(),
		Metrics:     metricsAuth.Handler(promhttp.Handler()),
		RequireUser: authMw.RequireUser,
		LoginLimit:  loginLimiter.LimitLogin,
	}

	// ==========================================================================
	// Create router and apply the global middleware stack
	// ==========================================================================

	stack := middleware.Stack(
		middleware.NewRecoverer(logger).Handler,
		middleware.NewSecurityHeadersMiddleware(isSecure).Handler,
		metrics.Middleware,
		authMw.WithSession,
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		toasts.Middleware,
		csrf.NewMiddleware(isSecure, logger).Handler,
	)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           stack(handler.NewRouter(routes)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "auth_required", cfg.AuthRequired)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}

	// Stop background loops first so websocket clients are released before
	// the server waits on open connections.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
