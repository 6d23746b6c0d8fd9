package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finance-enricher/internal/cache"
	"finance-enricher/internal/common/logging"
	"finance-enricher/internal/config"
	"finance-enricher/internal/enrich"
	"finance-enricher/internal/label"
	"finance-enricher/internal/sequencer"
	"finance-enricher/internal/server"
	"finance-enricher/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.NewZapLogger(logging.LogConfig{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Prefix: "enricher",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	ctx := context.Background()

	durable, err := store.New(ctx, cfg)
	if err != nil {
		// The durable tier is an optimization; run memory-only rather than die.
		logger.Warn("durable store unavailable, running memory-only", logging.Err(err))
		durable = nil
	} else {
		defer durable.Close()
	}

	responseCache := cache.New(cache.Config{TTL: cfg.CacheTTL}, durable, logger)

	seq := sequencer.New(sequencer.Config{
		MinSpacing: cfg.MinSpacing(),
		MaxRetries: cfg.APIMaxRetries,
		BaseDelay:  cfg.APIRetryBaseDelay,
		MaxDelay:   cfg.APIRetryMaxDelay,
	}, logger)

	generator := enrich.NewHTTPGenerator(cfg.APIURL, cfg.APIKey, cfg.APITimeout)
	enricher := enrich.New(generator, responseCache, seq, logger)
	defer enricher.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.New(enricher, label.DefaultConfig(), durable, logger).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("enrichment service started",
			logging.Field{Key: "port", Value: cfg.Port},
			logging.Field{Key: "min_spacing", Value: cfg.MinSpacing().String()},
			logging.Field{Key: "cache_ttl", Value: cfg.CacheTTL.String()},
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}
