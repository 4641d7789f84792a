// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package recommend

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shelfscout/shelfscout/internal/cache"
)

// Engine composes preference building, neighbor selection and the tiered
// fallback policy into a recommendation service. It holds no mutable
// preference state of its own; every request recomputes from the injected
// collaborators (modulo the optional preference cache), so concurrent
// requests are independent and the engine is safe for concurrent use.
type Engine struct {
	config  *Config
	logger  zerolog.Logger
	history PurchaseHistorySource
	catalog CatalogSource

	// prefCache holds normalized preference vectors keyed by user ID.
	// Nil when caching is disabled. Entries are dropped on
	// InvalidateUser when a purchase for that user completes.
	prefCache *cache.LRU[PreferenceVector]

	// Metrics
	requestCount atomic.Int64
	errorCount   atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	byStrategy   [3]atomic.Int64
}

// Metrics is a point-in-time snapshot of engine counters.
type Metrics struct {
	// RequestCount is the total number of recommendation requests.
	RequestCount int64 `json:"request_count"`

	// ErrorCount is the number of requests that failed on a collaborator.
	ErrorCount int64 `json:"error_count"`

	// PreferenceCacheHits counts vectors served from cache.
	PreferenceCacheHits int64 `json:"preference_cache_hits"`

	// PreferenceCacheMisses counts vectors rebuilt from purchase events.
	PreferenceCacheMisses int64 `json:"preference_cache_misses"`

	// ByStrategy counts responses per fallback tier.
	ByStrategy map[string]int64 `json:"by_strategy"`
}

// NewEngine creates a recommendation engine backed by the given
// collaborators.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEngine(cfg *Config, history PurchaseHistorySource, catalog CatalogSource, logger zerolog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if history == nil {
		return nil, fmt.Errorf("purchase history source not set")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog source not set")
	}

	e := &Engine{
		config:  cfg,
		logger:  logger.With().Str("component", "recommend").Logger(),
		history: history,
		catalog: catalog,
	}

	if cfg.Cache.Enabled {
		e.prefCache = cache.NewLRU[PreferenceVector](cfg.Cache.MaxEntries, cfg.Cache.TTL)
	}

	return e, nil
}

// Recommend generates a ranked, deduplicated book list for a user.
//
// The request degrades through three tiers: a user with no purchase
// history gets globally popular in-stock books; a user with history but no
// sufficiently similar neighbor gets books from their own preferred
// categories; otherwise categories are ranked by similarity-weighted
// neighbor scores. Whatever tier runs, the result excludes every book the
// user has ordered, contains no duplicate IDs, and is topped up from the
// popularity ranking when category pulls run short.
//
// Empty data never errors; only a failing collaborator does.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	e.requestCount.Add(1)

	req, err := e.prepareRequest(req)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With().
		Str("request_id", req.RequestID).
		Str("user_id", req.UserID).
		Logger()
	logger.Debug().Int("count", req.Count).Msg("processing recommendation request")

	purchased, err := e.history.PurchasedBookIDs(ctx, req.UserID)
	if err != nil {
		e.errorCount.Add(1)
		return nil, &DataSourceError{Op: "purchased book ids", Err: err}
	}

	target, cacheHit, err := e.preferenceFor(ctx, req.UserID)
	if err != nil {
		e.errorCount.Add(1)
		return nil, err
	}

	// Exclusion set owned by this request; grows as books are selected.
	exclude := make(map[int64]struct{}, len(purchased)+req.Count)
	for id := range purchased {
		exclude[id] = struct{}{}
	}

	var resp *Response
	switch {
	case target.IsEmpty():
		resp, err = e.recommendPopular(ctx, req, exclude)
	default:
		resp, err = e.recommendPersonalized(ctx, req, target, exclude, logger)
	}
	if err != nil {
		e.errorCount.Add(1)
		return nil, err
	}

	e.byStrategy[resp.Strategy].Add(1)
	resp.Metadata = ResponseMetadata{
		RequestID:          req.RequestID,
		UserID:             req.UserID,
		LatencyMS:          time.Since(start).Milliseconds(),
		PreferenceCacheHit: cacheHit,
		Timestamp:          time.Now(),
	}

	logger.Debug().
		Str("strategy", resp.Strategy.String()).
		Int("neighbors", resp.NeighborCount).
		Int("returned", len(resp.Books)).
		Int64("latency_ms", resp.Metadata.LatencyMS).
		Msg("recommendation complete")

	return resp, nil
}

// prepareRequest applies defaults and generates a request ID if needed.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) prepareRequest(req Request) (Request, error) {
	if req.Count < 0 {
		return req, fmt.Errorf("%w: got %d", ErrInvalidCount, req.Count)
	}
	if req.Count == 0 {
		req.Count = e.config.Limits.DefaultCount
	}
	if req.Count > e.config.Limits.MaxCount {
		req.Count = e.config.Limits.MaxCount
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	return req, nil
}

// recommendPopular serves users with no purchase history: the most popular
// in-stock books, ranked by popularity then recency. Terminal tier.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) recommendPopular(ctx context.Context, req Request, exclude map[int64]struct{}) (*Response, error) {
	books, err := e.catalog.CandidateBooks(ctx, CatalogQuery{
		Exclude:     exclude,
		InStockOnly: true,
		Limit:       req.Count,
		OrderBy:     OrderPopularity,
	})
	if err != nil {
		return nil, &DataSourceError{Op: "popular books", Err: err}
	}

	return &Response{
		Books:    dedupe(books, req.Count),
		Strategy: StrategyPopular,
	}, nil
}

// recommendPersonalized runs the neighbor scan and dispatches to the
// self-preference tier or the neighbor-weighted tier.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) recommendPersonalized(ctx context.Context, req Request, target PreferenceVector, exclude map[int64]struct{}, logger zerolog.Logger) (*Response, error) {
	candidates, err := e.allPreferences(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	neighbors := SelectNeighbors(target, candidates,
		e.config.Similarity.Threshold, e.config.Similarity.MaxNeighbors)

	if len(neighbors) == 0 {
		logger.Debug().Msg("no similar users, ranking by own preference")
		return e.recommendSelfPreference(ctx, req, target, exclude)
	}

	logger.Debug().
		Int("neighbors", len(neighbors)).
		Float64("top_similarity", neighbors[0].Similarity).
		Msg("selected neighbors")

	return e.recommendFromNeighbors(ctx, req, target, neighbors, exclude)
}

// recommendSelfPreference walks the user's own categories in descending
// score order, then tops up from the popularity ranking.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) recommendSelfPreference(ctx context.Context, req Request, target PreferenceVector, exclude map[int64]struct{}) (*Response, error) {
	categories := rankCategories(target.Scores)

	books, err := e.fillFromCategories(ctx, categories, exclude, req.Count)
	if err != nil {
		return nil, err
	}

	books, err = e.topUpPopular(ctx, books, exclude, req.Count)
	if err != nil {
		return nil, err
	}

	return &Response{
		Books:    books,
		Strategy: StrategySelfPreference,
	}, nil
}

// recommendFromNeighbors accumulates similarity-weighted category scores
// across all neighbors, discounts categories the target already buys from,
// and walks categories in that order. Tops up from popularity if short.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (e *Engine) recommendFromNeighbors(ctx context.Context, req Request, target PreferenceVector, neighbors []Neighbor, exclude map[int64]struct{}) (*Response, error) {
	weighted := make(map[CategoryCode]float64)
	for _, n := range neighbors {
		for cat, score := range n.Vector.Scores {
			weighted[cat] += n.Similarity * score
		}
	}

	// Favor categories the target has not bought from yet; known
	// categories keep a discounted share so reinforcement stays possible.
	for cat := range weighted {
		if _, known := target.Scores[cat]; known {
			weighted[cat] *= e.config.KnownCategoryDiscount
		}
	}

	categories := rankCategories(weighted)

	books, err := e.fillFromCategories(ctx, categories, exclude, req.Count)
	if err != nil {
		return nil, err
	}

	books, err = e.topUpPopular(ctx, books, exclude, req.Count)
	if err != nil {
		return nil, err
	}

	return &Response{
		Books:         books,
		Strategy:      StrategyNeighbor,
		NeighborCount: len(neighbors),
	}, nil
}

// fillFromCategories pulls in-stock, not-yet-excluded books category by
// category until count is reached or categories are exhausted. Selected
// book IDs are added to exclude so later pulls cannot duplicate them.
func (e *Engine) fillFromCategories(ctx context.Context, categories []CategoryCode, exclude map[int64]struct{}, count int) ([]CandidateBook, error) {
	books := make([]CandidateBook, 0, count)

	for _, cat := range categories {
		if len(books) >= count {
			break
		}

		batch, err := e.catalog.CandidateBooks(ctx, CatalogQuery{
			Exclude:     exclude,
			Category:    cat,
			InStockOnly: true,
			Limit:       count - len(books),
			OrderBy:     OrderPopularity,
		})
		if err != nil {
			return nil, &DataSourceError{Op: fmt.Sprintf("candidate books for category %s", cat), Err: err}
		}

		for _, b := range batch {
			if _, dup := exclude[b.BookID]; dup {
				continue
			}
			exclude[b.BookID] = struct{}{}
			books = append(books, b)
		}
	}

	return books, nil
}

// topUpPopular fills any remaining slots with popularity-ranked in-stock
// books not already selected or purchased.
func (e *Engine) topUpPopular(ctx context.Context, books []CandidateBook, exclude map[int64]struct{}, count int) ([]CandidateBook, error) {
	if len(books) >= count {
		return books, nil
	}

	batch, err := e.catalog.CandidateBooks(ctx, CatalogQuery{
		Exclude:     exclude,
		InStockOnly: true,
		Limit:       count - len(books),
		OrderBy:     OrderPopularity,
	})
	if err != nil {
		return nil, &DataSourceError{Op: "popular top-up", Err: err}
	}

	for _, b := range batch {
		if len(books) >= count {
			break
		}
		if _, dup := exclude[b.BookID]; dup {
			continue
		}
		exclude[b.BookID] = struct{}{}
		books = append(books, b)
	}

	return books, nil
}

// UserPreference returns the user's normalized preference vector. An
// unknown user yields an empty vector.
func (e *Engine) UserPreference(ctx context.Context, userID string) (PreferenceVector, error) {
	pref, _, err := e.preferenceFor(ctx, userID)
	return pref, err
}

// UserPurchaseStats returns the user's raw per-category purchase
// quantities before normalization.
func (e *Engine) UserPurchaseStats(ctx context.Context, userID string) (map[CategoryCode]int, error) {
	events, err := e.history.EventsForUser(ctx, userID)
	if err != nil {
		return nil, &DataSourceError{Op: "purchase events", Err: err}
	}
	return BuildPurchaseStats(events), nil
}

// InvalidateUser drops the user's cached preference vector. Call after a
// purchase for that user completes.
func (e *Engine) InvalidateUser(userID string) {
	if e.prefCache != nil {
		e.prefCache.Remove(userID)
	}
}

// GetMetrics returns a snapshot of engine counters.
func (e *Engine) GetMetrics() Metrics {
	return Metrics{
		RequestCount:          e.requestCount.Load(),
		ErrorCount:            e.errorCount.Load(),
		PreferenceCacheHits:   e.cacheHits.Load(),
		PreferenceCacheMisses: e.cacheMisses.Load(),
		ByStrategy: map[string]int64{
			StrategyPopular.String():        e.byStrategy[StrategyPopular].Load(),
			StrategySelfPreference.String(): e.byStrategy[StrategySelfPreference].Load(),
			StrategyNeighbor.String():       e.byStrategy[StrategyNeighbor].Load(),
		},
	}
}

// GetConfig returns a copy of the current configuration.
func (e *Engine) GetConfig() *Config {
	return e.config.Clone()
}

// preferenceFor returns the user's preference vector, consulting the
// cache when enabled. The bool reports whether the cache served it.
func (e *Engine) preferenceFor(ctx context.Context, userID string) (PreferenceVector, bool, error) {
	if e.prefCache != nil {
		if pref, ok := e.prefCache.Get(userID); ok {
			e.cacheHits.Add(1)
			return pref, true, nil
		}
		e.cacheMisses.Add(1)
	}

	events, err := e.history.EventsForUser(ctx, userID)
	if err != nil {
		return PreferenceVector{}, false, &DataSourceError{Op: "purchase events", Err: err}
	}

	pref := BuildPreference(userID, events)
	if e.prefCache != nil {
		e.prefCache.Add(userID, pref)
	}

	return pref, false, nil
}

// allPreferences builds the preference vector of every user with purchase
// history except the target. This is the O(U) neighbor scan; the cache
// keeps repeat requests from rebuilding all vectors from raw events.
func (e *Engine) allPreferences(ctx context.Context, excludeUserID string) ([]PreferenceVector, error) {
	userIDs, err := e.history.UsersWithHistory(ctx)
	if err != nil {
		return nil, &DataSourceError{Op: "users with history", Err: err}
	}

	prefs := make([]PreferenceVector, 0, len(userIDs))
	for _, uid := range userIDs {
		if uid == excludeUserID {
			continue
		}
		pref, _, err := e.preferenceFor(ctx, uid)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}

	return prefs, nil
}

// rankCategories orders categories by score descending, breaking ties by
// category code ascending so output never depends on map iteration order.
func rankCategories(scores map[CategoryCode]float64) []CategoryCode {
	cats := make([]CategoryCode, 0, len(scores))
	for cat := range scores {
		cats = append(cats, cat)
	}

	sort.Slice(cats, func(i, j int) bool {
		if scores[cats[i]] != scores[cats[j]] {
			return scores[cats[i]] > scores[cats[j]]
		}
		return cats[i] < cats[j]
	})

	return cats
}

// dedupe returns the first count books with unique IDs, preserving order.
func dedupe(books []CandidateBook, count int) []CandidateBook {
	seen := make(map[int64]struct{}, len(books))
	out := make([]CandidateBook, 0, min(len(books), count))

	for _, b := range books {
		if len(out) >= count {
			break
		}
		if _, dup := seen[b.BookID]; dup {
			continue
		}
		seen[b.BookID] = struct{}{}
		out = append(out, b)
	}

	return out
}
