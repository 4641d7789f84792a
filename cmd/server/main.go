// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

// Package main is the entry point for the Shelfscout server.
//
// Shelfscout serves personalized book recommendations over a REST API,
// using user-to-user collaborative filtering over purchase history stored
// in DuckDB.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Database: Initialize DuckDB and the catalog/order schema
//  3. Circuit Breaker: Wrap the store so a failing database degrades cleanly
//  4. Recommendation Engine: Collaborative filtering with preference caching
//  5. HTTP Server: Chi-routed REST API with Prometheus metrics
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Example Usage
//
// Development with an in-memory database and sample data:
//
//	export DUCKDB_PATH=""
//	export SEED_SAMPLE_DATA=true
//	export LOG_FORMAT=console
//	./shelfscout
//
// Production:
//
//	export DUCKDB_PATH=/data/shelfscout.duckdb
//	export HTTP_PORT=8290
//	export CORS_ORIGINS=https://shop.example.com
//	./shelfscout
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it stops
// accepting new connections, waits for in-flight requests up to the
// configured shutdown timeout, then closes the database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/shelfscout/shelfscout/internal/api"
	"github.com/shelfscout/shelfscout/internal/config"
	"github.com/shelfscout/shelfscout/internal/database"
	"github.com/shelfscout/shelfscout/internal/logging"
	"github.com/shelfscout/shelfscout/internal/metrics"
	"github.com/shelfscout/shelfscout/internal/recommend"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Shelfscout")

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.SeedSampleData {
		if err := db.SeedSampleData(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to seed sample data")
		}
		logging.Info().Msg("Sample data seeded")
	}

	// All engine reads go through the circuit breaker so a failing
	// database surfaces as fast ErrDataSource responses instead of
	// piling up timeouts.
	store := database.NewResilientStore(db, database.DefaultBreakerConfig())

	engine, err := recommend.NewEngine(cfg.Recommend.EngineConfig(), store, store, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize recommendation engine")
	}

	handlers := api.NewHandlers(engine, db, store, version)
	router := api.NewRouter(handlers, &cfg.API)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed, forcing close")
		if err := server.Close(); err != nil {
			logging.Error().Err(err).Msg("Forced close failed")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
