// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shelfscout/shelfscout/internal/logging"
	"github.com/shelfscout/shelfscout/internal/metrics"
	"github.com/shelfscout/shelfscout/internal/models"
	"github.com/shelfscout/shelfscout/internal/recommend"
)

// Pinger reports database liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerStatus reports the circuit breaker state guarding the store.
type BreakerStatus interface {
	State() string
}

// Handlers contains the HTTP handlers and their dependencies.
type Handlers struct {
	engine    *recommend.Engine
	db        Pinger
	breaker   BreakerStatus
	version   string
	startTime time.Time
}

// NewHandlers creates the handler set. db and breaker may be nil; the
// health endpoint then skips the corresponding check.
func NewHandlers(engine *recommend.Engine, db Pinger, breaker BreakerStatus, version string) *Handlers {
	return &Handlers{
		engine:    engine,
		db:        db,
		breaker:   breaker,
		version:   version,
		startTime: time.Now(),
	}
}

// recommendationsRequest carries validated query parameters for the
// recommendations endpoint.
type recommendationsRequest struct {
	UserID string `validate:"required,min=1,max=128"`
	Count  int    `validate:"min=0,max=1000"`
}

// recommendedBook is the API shape of one recommended book.
type recommendedBook struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title,omitempty"`
	Category   string    `json:"category"`
	Stock      int       `json:"stock"`
	SalesCount int64     `json:"sales_count"`
	AddedAt    time.Time `json:"added_at"`
}

// recommendationList is the API shape of a recommendation response.
type recommendationList struct {
	UserID        string            `json:"user_id"`
	Strategy      string            `json:"strategy"`
	NeighborCount int               `json:"neighbor_count"`
	Books         []recommendedBook `json:"books"`
}

// Recommendations handles GET /api/v1/users/{userID}/recommendations.
//
// Query parameters:
//   - count: number of books to return (optional; server default applies)
func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID := chi.URLParam(r, "userID")

	req := recommendationsRequest{
		UserID: userID,
		Count:  getIntParam(r, "count", 0),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	resp, err := h.engine.Recommend(r.Context(), recommend.Request{
		UserID:    req.UserID,
		Count:     req.Count,
		RequestID: requestID(r),
	})
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	metrics.RecordRecommendation(resp.Strategy.String(), resp.NeighborCount, time.Since(start))

	books := make([]recommendedBook, 0, len(resp.Books))
	for _, b := range resp.Books {
		books = append(books, recommendedBook{
			ID:         b.BookID,
			Title:      b.Title,
			Category:   string(b.Category),
			Stock:      b.Stock,
			SalesCount: b.Popularity,
			AddedAt:    b.AddedAt,
		})
	}

	logging.Debug().
		Str("user_id", sanitizeLogValue(userID)).
		Str("strategy", resp.Strategy.String()).
		Int("books", len(books)).
		Int("neighbors", resp.NeighborCount).
		Msg("Recommendations served")

	respondSuccess(w, r, start, recommendationList{
		UserID:        req.UserID,
		Strategy:      resp.Strategy.String(),
		NeighborCount: resp.NeighborCount,
		Books:         books,
	})
}

// userIDRequest validates the path parameter shared by the per-user
// introspection endpoints.
type userIDRequest struct {
	UserID string `validate:"required,min=1,max=128"`
}

// Preference handles GET /api/v1/users/{userID}/preference.
// It exposes the user's normalized category preference vector.
func (h *Handlers) Preference(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID := chi.URLParam(r, "userID")

	if apiErr := validateRequest(&userIDRequest{UserID: userID}); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	vec, err := h.engine.UserPreference(r.Context(), userID)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	respondSuccess(w, r, start, map[string]interface{}{
		"user_id":    userID,
		"preference": vec,
	})
}

// PurchaseStats handles GET /api/v1/users/{userID}/purchase-stats.
// It exposes raw per-category purchase quantities.
func (h *Handlers) PurchaseStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID := chi.URLParam(r, "userID")

	if apiErr := validateRequest(&userIDRequest{UserID: userID}); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	stats, err := h.engine.UserPurchaseStats(r.Context(), userID)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	respondSuccess(w, r, start, map[string]interface{}{
		"user_id":        userID,
		"purchase_stats": stats,
	})
}

// InvalidatePreference handles POST /api/v1/users/{userID}/preference/invalidate.
// Call it after recording new orders so the next recommendation rebuilds
// the user's preference vector.
func (h *Handlers) InvalidatePreference(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	userID := chi.URLParam(r, "userID")

	if apiErr := validateRequest(&userIDRequest{UserID: userID}); apiErr != nil {
		respondValidationError(w, apiErr)
		return
	}

	h.engine.InvalidateUser(userID)
	metrics.PreferenceCacheInvalidations.Inc()

	logging.Info().Str("user_id", sanitizeLogValue(userID)).Msg("Preference cache invalidated")

	respondSuccess(w, r, start, map[string]interface{}{
		"user_id":     userID,
		"invalidated": true,
	})
}

// Health handles GET /api/v1/health. It pings the database and reports
// the store circuit breaker state. A failed ping or an open breaker
// degrades the status and the response code becomes 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.db.Ping(ctx)
		cancel()
		if err != nil {
			checks["database"] = "unreachable"
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	if h.breaker != nil {
		state := h.breaker.State()
		checks["circuit_breaker"] = state
		if state == "open" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	respondJSON(w, httpStatus, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"status":         status,
			"version":        h.version,
			"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
			"checks":         checks,
		},
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			RequestID:   requestID(r),
		},
	})
}

// Stats handles GET /api/v1/stats. It exposes engine counters for
// operational visibility; Prometheus metrics remain the primary surface.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondSuccess(w, r, start, h.engine.GetMetrics())
}

// respondEngineError maps engine errors to API error responses.
func (h *Handlers) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recommend.ErrInvalidCount):
		metrics.RecordRecommendationError("invalid_count")
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, recommend.ErrDataSource):
		metrics.RecordRecommendationError("data_source")
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR", "recommendation data source unavailable", err)
	default:
		metrics.RecordRecommendationError("internal")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", err)
	}
}
