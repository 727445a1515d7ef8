package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/budget-insights/internal/api/handlers"
	"github.com/dvloznov/budget-insights/internal/api/middleware"
	"github.com/dvloznov/budget-insights/internal/app"
	"github.com/dvloznov/budget-insights/internal/config"
	"github.com/dvloznov/budget-insights/internal/logger"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Parse command-line flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Bucket, "bucket", cfg.Bucket, "GCS bucket for exports and statements (or set GCS_BUCKET env)")
	flag.Parse()

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogJSON)
	ctx := logger.WithContext(context.Background(), log)

	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set - trusting X-User-ID header (development only)")
	}

	services, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Close()

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.QueueWorkers).Msg("Starting job workers")
	if err := services.StartWorkers(workerCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	var limiter *middleware.RateLimiter
	if services.Redis != nil && cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(services.Redis, cfg.RateLimit, time.Minute)
	}

	router := handlers.NewRouter(handlers.Deps{
		Ledger:      services.Ledger,
		Analysis:    services.Analysis,
		Exports:     services.Exports,
		Statements:  services.Statements,
		Jobs:        services.JobStore,
		JWTSecret:   cfg.JWTSecret,
		RateLimiter: limiter,
		Log:         log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.AnalysisTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := services.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
