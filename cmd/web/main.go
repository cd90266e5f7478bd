package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"sales-insights/internal/config"
	"sales-insights/internal/middleware"
	"sales-insights/internal/observability"
	"sales-insights/internal/server"
	"sales-insights/internal/services"
	"sales-insights/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	dataStore := store.New(cfg.Data, logger)

	start := time.Now()
	dataset, err := dataStore.Bootstrap()
	if err != nil {
		logger.Error("failed to bootstrap dataset", "error", err)
		os.Exit(1)
	}
	logger.Info("dataset ready",
		"rows", len(dataset.Rows),
		"duration", time.Since(start),
	)

	engine := services.NewInsights(dataset, logger)

	srv := server.NewServer(dataStore, engine, logger, cfg.Data.MaxUploadSize)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	handler := middlewareChain(srv)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
