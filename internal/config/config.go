// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

// Package config provides layered application configuration via Koanf v2:
// built-in defaults, an optional YAML config file and environment variable
// overrides, in that order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/shelfscout/shelfscout/internal/recommend"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
	Recommend RecommendConfig `koanf:"recommend"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the listen address.
	Host string `koanf:"host"`

	// Port is the listen port.
	Port int `koanf:"port"`

	// Timeout is the per-request read/write timeout.
	Timeout time.Duration `koanf:"timeout"`

	// ShutdownTimeout bounds graceful shutdown on SIGTERM.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the database file path. Empty means in-memory.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads sets DuckDB worker threads. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`

	// SeedSampleData loads a small sample catalog and order history on
	// startup when the books table is empty. Intended for development.
	SeedSampleData bool `koanf:"seed_sample_data"`
}

// APIConfig holds HTTP API settings.
type APIConfig struct {
	// CORSOrigins lists allowed CORS origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the allowed number of requests per window per IP.
	RateLimitReqs int `koanf:"rate_limit_reqs"`

	// RateLimitWindow is the rate limit window.
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// RateLimitDisabled turns off rate limiting entirely.
	RateLimitDisabled bool `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// RecommendConfig holds recommendation engine settings. It mirrors
// recommend.Config with koanf tags for layered loading.
type RecommendConfig struct {
	// SimilarityThreshold is the minimum cosine similarity for a user to
	// count as a neighbor. Range (0, 1].
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// MaxNeighbors caps the neighbor set per request.
	MaxNeighbors int `koanf:"max_neighbors"`

	// DefaultCount is the result size when the request omits count.
	DefaultCount int `koanf:"default_count"`

	// MaxCount caps the requested result size.
	MaxCount int `koanf:"max_count"`

	// KnownCategoryDiscount is the weight multiplier applied to neighbor
	// categories the target user already buys from. Range (0, 1].
	KnownCategoryDiscount float64 `koanf:"known_category_discount"`

	// CacheEnabled toggles the preference vector cache.
	CacheEnabled bool `koanf:"cache_enabled"`

	// CacheMaxEntries caps the preference cache size.
	CacheMaxEntries int `koanf:"cache_max_entries"`

	// CacheTTL is the preference cache entry lifetime.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// EngineConfig converts the loaded settings into the engine's own config
// type.
func (rc *RecommendConfig) EngineConfig() *recommend.Config {
	return &recommend.Config{
		Similarity: recommend.SimilarityConfig{
			Threshold:    rc.SimilarityThreshold,
			MaxNeighbors: rc.MaxNeighbors,
		},
		Limits: recommend.LimitsConfig{
			DefaultCount: rc.DefaultCount,
			MaxCount:     rc.MaxCount,
		},
		Cache: recommend.CacheConfig{
			Enabled:    rc.CacheEnabled,
			MaxEntries: rc.CacheMaxEntries,
			TTL:        rc.CacheTTL,
		},
		KnownCategoryDiscount: rc.KnownCategoryDiscount,
	}
}

// Validate checks configuration for correctness.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateAPI,
		c.validateLogging,
		c.validateRecommend,
	}

	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Threads < 0 {
		return fmt.Errorf("database.threads must be non-negative, got %d", c.Database.Threads)
	}
	if c.Database.MaxMemory == "" {
		return fmt.Errorf("database.max_memory must not be empty")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.RateLimitDisabled {
		return nil
	}
	if c.API.RateLimitReqs <= 0 {
		return fmt.Errorf("api.rate_limit_reqs must be positive, got %d", c.API.RateLimitReqs)
	}
	if c.API.RateLimitWindow <= 0 {
		return fmt.Errorf("api.rate_limit_window must be positive, got %s", c.API.RateLimitWindow)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("logging.level must be a valid log level, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateRecommend() error {
	// Delegate to the engine's own validation so the rules live in one
	// place.
	if err := c.Recommend.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("recommend: %w", err)
	}
	return nil
}
