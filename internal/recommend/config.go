// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package recommend

import (
	"fmt"
	"time"
)

// Config contains all configuration for the recommendation engine.
type Config struct {
	// Similarity contains neighbor-selection parameters.
	Similarity SimilarityConfig `json:"similarity"`

	// Limits contains operational limits.
	Limits LimitsConfig `json:"limits"`

	// Cache contains preference-vector caching parameters.
	Cache CacheConfig `json:"cache"`

	// KnownCategoryDiscount is the multiplier applied to the accumulated
	// neighbor weight of a category the target user has already purchased
	// from. Categories new to the user keep full weight, so discovery is
	// favored while known preferences can still reinforce. Must be in
	// (0, 1]; 1 disables the discount.
	KnownCategoryDiscount float64 `json:"known_category_discount"`
}

// SimilarityConfig contains neighbor-selection parameters.
type SimilarityConfig struct {
	// Threshold is the minimum cosine similarity for a user to qualify
	// as a neighbor. Range (0, 1].
	Threshold float64 `json:"threshold"`

	// MaxNeighbors is the maximum number of neighbors considered.
	MaxNeighbors int `json:"max_neighbors"`
}

// LimitsConfig contains operational limits.
type LimitsConfig struct {
	// DefaultCount is the recommendation count when a request leaves
	// Count zero.
	DefaultCount int `json:"default_count"`

	// MaxCount caps the recommendation count per request.
	MaxCount int `json:"max_count"`
}

// CacheConfig contains preference-vector caching parameters.
//
// The all-users neighbor scan rebuilds every purchasing user's vector per
// request, which is the engine's scalability ceiling. The cache trades
// that O(U) recomputation for O(U) lookups; entries are invalidated when a
// purchase for that user completes.
type CacheConfig struct {
	// Enabled turns preference-vector caching on.
	Enabled bool `json:"enabled"`

	// MaxEntries bounds the cache size.
	MaxEntries int `json:"max_entries"`

	// TTL bounds entry lifetime, covering invalidation signals that
	// never arrive.
	TTL time.Duration `json:"ttl"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Similarity: SimilarityConfig{
			Threshold:    0.3,
			MaxNeighbors: 5,
		},
		Limits: LimitsConfig{
			DefaultCount: 10,
			MaxCount:     100,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 10000,
			TTL:        5 * time.Minute,
		},
		KnownCategoryDiscount: 0.5,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Similarity.Threshold <= 0 || c.Similarity.Threshold > 1 {
		return fmt.Errorf("similarity.threshold must be in (0, 1], got %f", c.Similarity.Threshold)
	}
	if c.Similarity.MaxNeighbors < 1 {
		return fmt.Errorf("similarity.max_neighbors must be positive, got %d", c.Similarity.MaxNeighbors)
	}

	if c.Limits.DefaultCount < 1 {
		return fmt.Errorf("limits.default_count must be positive, got %d", c.Limits.DefaultCount)
	}
	if c.Limits.MaxCount < c.Limits.DefaultCount {
		return fmt.Errorf("limits.max_count must be >= limits.default_count, got %d < %d",
			c.Limits.MaxCount, c.Limits.DefaultCount)
	}

	if c.Cache.Enabled {
		if c.Cache.MaxEntries < 1 {
			return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
		}
	}

	if c.KnownCategoryDiscount <= 0 || c.KnownCategoryDiscount > 1 {
		return fmt.Errorf("known_category_discount must be in (0, 1], got %f", c.KnownCategoryDiscount)
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	// Direct field copy - all nested structs contain only value types
	return &Config{
		Similarity:            c.Similarity,
		Limits:                c.Limits,
		Cache:                 c.Cache,
		KnownCategoryDiscount: c.KnownCategoryDiscount,
	}
}
