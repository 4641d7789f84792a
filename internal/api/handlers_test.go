// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/shelfscout/shelfscout/internal/config"
	"github.com/shelfscout/shelfscout/internal/models"
	"github.com/shelfscout/shelfscout/internal/recommend"
)

// stubHistory implements recommend.PurchaseHistorySource over a fixed
// event map.
type stubHistory struct {
	events      map[string][]recommend.PurchaseEvent
	err         error
	eventsCalls atomic.Int32
}

func (s *stubHistory) EventsForUser(_ context.Context, userID string) ([]recommend.PurchaseEvent, error) {
	s.eventsCalls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.events[userID], nil
}

func (s *stubHistory) UsersWithHistory(_ context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	users := make([]string, 0, len(s.events))
	for uid := range s.events {
		users = append(users, uid)
	}
	sort.Strings(users)
	return users, nil
}

func (s *stubHistory) PurchasedBookIDs(_ context.Context, userID string) (map[int64]struct{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	ids := make(map[int64]struct{})
	for _, ev := range s.events[userID] {
		ids[ev.BookID] = struct{}{}
	}
	return ids, nil
}

// stubCatalog serves a fixed book list sorted by popularity.
type stubCatalog struct {
	books []recommend.CandidateBook
}

func (s *stubCatalog) CandidateBooks(_ context.Context, q recommend.CatalogQuery) ([]recommend.CandidateBook, error) {
	matched := make([]recommend.CandidateBook, 0, len(s.books))
	for _, b := range s.books {
		if q.InStockOnly && b.Stock <= 0 {
			continue
		}
		if q.Category != "" && b.Category != q.Category {
			continue
		}
		if _, excluded := q.Exclude[b.BookID]; excluded {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Popularity != matched[j].Popularity {
			return matched[i].Popularity > matched[j].Popularity
		}
		return matched[i].BookID < matched[j].BookID
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// failingPinger simulates an unreachable database.
type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

// okPinger simulates a healthy database.
type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

// staticBreaker reports a fixed circuit breaker state.
type staticBreaker struct{ state string }

func (b staticBreaker) State() string { return b.state }

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func newTestServer(t *testing.T, history *stubHistory, catalog *stubCatalog, db Pinger, breaker BreakerStatus) http.Handler {
	t.Helper()

	engine, err := recommend.NewEngine(nil, history, catalog, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	handlers := NewHandlers(engine, db, breaker, "test")
	router := NewRouter(handlers, &config.APIConfig{
		CORSOrigins:       []string{"*"},
		RateLimitDisabled: true,
	})
	return router.Handler()
}

func doRequest(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("unmarshal response: %v (body %q)", err, rec.Body.String())
		}
	}
	return rec, env
}

func catalogOf(books ...recommend.CandidateBook) *stubCatalog {
	return &stubCatalog{books: books}
}

func candidate(id int64, cat recommend.CategoryCode, popularity int64) recommend.CandidateBook {
	return recommend.CandidateBook{
		BookID:     id,
		Category:   cat,
		Stock:      5,
		Popularity: popularity,
		AddedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour),
	}
}

func TestRecommendationsColdUser(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{}}
	catalog := catalogOf(
		candidate(1, "A", 10),
		candidate(2, "B", 30),
		candidate(3, "C", 20),
	)
	h := newTestServer(t, history, catalog, okPinger{}, nil)

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/users/newbie/recommendations?count=3")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if env.Status != "success" {
		t.Fatalf("envelope status = %q, want success", env.Status)
	}

	var list recommendationList
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if list.Strategy != "popular" {
		t.Errorf("strategy = %q, want popular", list.Strategy)
	}
	wantIDs := []int64{2, 3, 1}
	if len(list.Books) != len(wantIDs) {
		t.Fatalf("got %d books, want %d", len(list.Books), len(wantIDs))
	}
	for i, want := range wantIDs {
		if list.Books[i].ID != want {
			t.Errorf("books[%d].ID = %d, want %d", i, list.Books[i].ID, want)
		}
	}
}

func TestRecommendationsNeighborStrategy(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{
		"alice": {{UserID: "alice", BookID: 1, Category: "T", Quantity: 2}},
		"bob": {
			{UserID: "bob", BookID: 1, Category: "T", Quantity: 3},
			{UserID: "bob", BookID: 2, Category: "T", Quantity: 1},
		},
	}}
	catalog := catalogOf(
		candidate(1, "T", 50),
		candidate(2, "T", 40),
		candidate(3, "T", 30),
		candidate(4, "A", 20),
	)
	h := newTestServer(t, history, catalog, okPinger{}, nil)

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/users/alice/recommendations?count=5")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var list recommendationList
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if list.Strategy != "neighbor" {
		t.Errorf("strategy = %q, want neighbor", list.Strategy)
	}
	if list.NeighborCount != 1 {
		t.Errorf("neighbor_count = %d, want 1", list.NeighborCount)
	}
	for _, b := range list.Books {
		if b.ID == 1 {
			t.Errorf("recommended already purchased book 1")
		}
	}
}

func TestRecommendationsCountValidation(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{}}
	h := newTestServer(t, history, catalogOf(), okPinger{}, nil)

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/users/alice/recommendations?count=-1")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v, want VALIDATION_ERROR", env.Error)
	}
}

func TestRecommendationsDataSourceError(t *testing.T) {
	history := &stubHistory{err: errors.New("store unavailable")}
	h := newTestServer(t, history, catalogOf(), okPinger{}, nil)

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/users/alice/recommendations")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if env.Error == nil || env.Error.Code != "DATABASE_ERROR" {
		t.Errorf("error = %+v, want DATABASE_ERROR", env.Error)
	}
}

func TestPreferenceEndpoint(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{
		"alice": {
			{UserID: "alice", BookID: 1, Category: "T", Quantity: 4},
			{UserID: "alice", BookID: 2, Category: "I", Quantity: 2},
		},
	}}
	h := newTestServer(t, history, catalogOf(), okPinger{}, nil)

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/users/alice/preference")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var data struct {
		UserID     string             `json:"user_id"`
		Preference map[string]float64 `json:"preference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.UserID != "alice" {
		t.Errorf("user_id = %q, want alice", data.UserID)
	}
	if got := data.Preference["T"]; got != 1.0 {
		t.Errorf("preference[T] = %v, want 1.0", got)
	}
	if got := data.Preference["I"]; got != 0.5 {
		t.Errorf("preference[I] = %v, want 0.5", got)
	}
}

func TestPurchaseStatsEndpoint(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{
		"bob": {
			{UserID: "bob", BookID: 1, Category: "T", Quantity: 2},
			{UserID: "bob", BookID: 2, Category: "T", Quantity: 1},
			{UserID: "bob", BookID: 3, Category: "A", Quantity: 1},
		},
	}}
	h := newTestServer(t, history, catalogOf(), okPinger{}, nil)

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/users/bob/purchase-stats")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var data struct {
		UserID string         `json:"user_id"`
		Stats  map[string]int `json:"purchase_stats"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Stats["T"] != 3 || data.Stats["A"] != 1 {
		t.Errorf("purchase_stats = %v, want T:3 A:1", data.Stats)
	}
}

func TestInvalidatePreferenceEndpoint(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{
		"alice": {{UserID: "alice", BookID: 1, Category: "T", Quantity: 1}},
	}}
	h := newTestServer(t, history, catalogOf(candidate(2, "T", 10)), okPinger{}, nil)

	// Warm the preference cache.
	if rec, _ := doRequest(t, h, http.MethodGet, "/api/v1/users/alice/preference"); rec.Code != http.StatusOK {
		t.Fatalf("warm-up status = %d", rec.Code)
	}
	warm := history.eventsCalls.Load()

	// Cached: no new source fetch.
	doRequest(t, h, http.MethodGet, "/api/v1/users/alice/preference")
	if got := history.eventsCalls.Load(); got != warm {
		t.Fatalf("eventsCalls after cached read = %d, want %d", got, warm)
	}

	rec, _ := doRequest(t, h, http.MethodPost, "/api/v1/users/alice/preference/invalidate")
	if rec.Code != http.StatusOK {
		t.Fatalf("invalidate status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Next read rebuilds from the source.
	doRequest(t, h, http.MethodGet, "/api/v1/users/alice/preference")
	if got := history.eventsCalls.Load(); got != warm+1 {
		t.Errorf("eventsCalls after invalidation = %d, want %d", got, warm+1)
	}
}

func TestHealthEndpoint(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{}}

	t.Run("healthy", func(t *testing.T) {
		h := newTestServer(t, history, catalogOf(), okPinger{}, staticBreaker{state: "closed"})
		rec, env := doRequest(t, h, http.MethodGet, "/api/v1/health")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		var data struct {
			Status  string            `json:"status"`
			Version string            `json:"version"`
			Checks  map[string]string `json:"checks"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
		if data.Status != "ok" {
			t.Errorf("health status = %q, want ok", data.Status)
		}
		if data.Checks["database"] != "ok" || data.Checks["circuit_breaker"] != "closed" {
			t.Errorf("checks = %v", data.Checks)
		}
	})

	t.Run("database down", func(t *testing.T) {
		h := newTestServer(t, history, catalogOf(), failingPinger{}, nil)
		rec, env := doRequest(t, h, http.MethodGet, "/api/v1/health")

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
		var data struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
		if data.Status != "degraded" {
			t.Errorf("health status = %q, want degraded", data.Status)
		}
	})

	t.Run("breaker open", func(t *testing.T) {
		h := newTestServer(t, history, catalogOf(), okPinger{}, staticBreaker{state: "open"})
		rec, _ := doRequest(t, h, http.MethodGet, "/api/v1/health")

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestStatsEndpoint(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{}}
	h := newTestServer(t, history, catalogOf(candidate(1, "A", 5)), okPinger{}, nil)

	// Serve one recommendation so the counters move.
	doRequest(t, h, http.MethodGet, "/api/v1/users/x/recommendations")

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var m recommend.Metrics
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if m.RequestCount != 1 {
		t.Errorf("request_count = %d, want 1", m.RequestCount)
	}
	if m.ByStrategy["popular"] != 1 {
		t.Errorf("by_strategy[popular] = %d, want 1", m.ByStrategy["popular"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{}}
	h := newTestServer(t, history, catalogOf(), okPinger{}, nil)

	rec, _ := doRequest(t, h, http.MethodGet, "/api/v1/health")

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{}}
	h := newTestServer(t, history, catalogOf(), okPinger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "preference_cache_hits_total") {
		t.Errorf("metrics output missing application metrics")
	}
}

func TestMissingUserIDRoutesNotFound(t *testing.T) {
	history := &stubHistory{events: map[string][]recommend.PurchaseEvent{}}
	h := newTestServer(t, history, catalogOf(), okPinger{}, nil)

	rec, _ := doRequest(t, h, http.MethodGet, "/api/v1/users//recommendations")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// Interface compliance.
var (
	_ recommend.PurchaseHistorySource = (*stubHistory)(nil)
	_ recommend.CatalogSource         = (*stubCatalog)(nil)
	_ Pinger                          = okPinger{}
	_ BreakerStatus                   = staticBreaker{}
)
