// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package recommend

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockHistory implements PurchaseHistorySource for testing.
type mockHistory struct {
	events map[string][]PurchaseEvent

	eventsErr    error
	usersErr     error
	purchasedErr error

	eventsCalls atomic.Int32
}

func (m *mockHistory) EventsForUser(ctx context.Context, userID string) ([]PurchaseEvent, error) {
	m.eventsCalls.Add(1)
	if m.eventsErr != nil {
		return nil, m.eventsErr
	}
	return m.events[userID], nil
}

func (m *mockHistory) UsersWithHistory(ctx context.Context) ([]string, error) {
	if m.usersErr != nil {
		return nil, m.usersErr
	}
	users := make([]string, 0, len(m.events))
	for uid, evs := range m.events {
		if len(evs) > 0 {
			users = append(users, uid)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (m *mockHistory) PurchasedBookIDs(ctx context.Context, userID string) (map[int64]struct{}, error) {
	if m.purchasedErr != nil {
		return nil, m.purchasedErr
	}
	ids := make(map[int64]struct{})
	for _, ev := range m.events[userID] {
		ids[ev.BookID] = struct{}{}
	}
	return ids, nil
}

// mockCatalog implements CatalogSource over an in-memory book list,
// applying the same filtering and ordering a real catalog store would.
type mockCatalog struct {
	books []CandidateBook
	err   error
}

func (m *mockCatalog) CandidateBooks(ctx context.Context, q CatalogQuery) ([]CandidateBook, error) {
	if m.err != nil {
		return nil, m.err
	}

	matched := make([]CandidateBook, 0, len(m.books))
	for _, b := range m.books {
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
		a, b := matched[i], matched[j]
		if q.OrderBy == OrderPopularity && a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		if !a.AddedAt.Equal(b.AddedAt) {
			return a.AddedAt.After(b.AddedAt)
		}
		return a.BookID < b.BookID
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func newTestEngine(t *testing.T, cfg *Config, history PurchaseHistorySource, catalog CatalogSource) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, history, catalog, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func book(id int64, cat CategoryCode, stock int, popularity int64) CandidateBook {
	return CandidateBook{
		BookID:     id,
		Category:   cat,
		Stock:      stock,
		Popularity: popularity,
		AddedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Hour),
	}
}

func bookIDs(books []CandidateBook) []int64 {
	ids := make([]int64, len(books))
	for i, b := range books {
		ids[i] = b.BookID
	}
	return ids
}

func TestRecommendColdUserPopularity(t *testing.T) {
	catalog := &mockCatalog{}
	for i := int64(1); i <= 12; i++ {
		catalog.books = append(catalog.books, book(i, "I", 5, i))
	}
	history := &mockHistory{events: map[string][]PurchaseEvent{}}

	engine := newTestEngine(t, nil, history, catalog)

	resp, err := engine.Recommend(context.Background(), Request{UserID: "u1", Count: 10})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if resp.Strategy != StrategyPopular {
		t.Errorf("Strategy = %s, want %s", resp.Strategy, StrategyPopular)
	}
	if len(resp.Books) != 10 {
		t.Fatalf("len(Books) = %d, want 10", len(resp.Books))
	}
	// The ten most popular books, descending.
	for i, b := range resp.Books {
		want := int64(12 - i)
		if b.BookID != want {
			t.Errorf("Books[%d].BookID = %d, want %d", i, b.BookID, want)
		}
	}
}

func TestRecommendUnknownUserTreatedAsCold(t *testing.T) {
	catalog := &mockCatalog{books: []CandidateBook{
		book(1, "A", 3, 10),
		book(2, "B", 3, 20),
	}}
	history := &mockHistory{events: map[string][]PurchaseEvent{
		"someone-else": {{UserID: "someone-else", BookID: 9, Category: "I", Quantity: 1}},
	}}

	engine := newTestEngine(t, nil, history, catalog)

	resp, err := engine.Recommend(context.Background(), Request{UserID: "never-seen", Count: 2})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if resp.Strategy != StrategyPopular {
		t.Errorf("Strategy = %s, want %s", resp.Strategy, StrategyPopular)
	}
	if got := bookIDs(resp.Books); len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Errorf("Books = %v, want [2 1]", got)
	}
}

func TestRecommendWarmUserNoNeighbors(t *testing.T) {
	history := &mockHistory{events: map[string][]PurchaseEvent{
		"u2": {
			{UserID: "u2", BookID: 1, Category: "I", Quantity: 2},
			{UserID: "u2", BookID: 2, Category: "I", Quantity: 1},
			{UserID: "u2", BookID: 3, Category: "A", Quantity: 1},
		},
	}}
	catalog := &mockCatalog{books: []CandidateBook{
		book(101, "I", 5, 30),
		book(102, "I", 5, 20),
		book(103, "I", 5, 10),
		book(201, "A", 5, 5),
		book(301, "C", 5, 100),
		// Already purchased, must never appear.
		book(1, "I", 5, 999),
	}}

	engine := newTestEngine(t, nil, history, catalog)

	resp, err := engine.Recommend(context.Background(), Request{UserID: "u2", Count: 5})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if resp.Strategy != StrategySelfPreference {
		t.Errorf("Strategy = %s, want %s", resp.Strategy, StrategySelfPreference)
	}

	want := []int64{101, 102, 103, 201, 301}
	got := bookIDs(resp.Books)
	if len(got) != len(want) {
		t.Fatalf("Books = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Books[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRecommendNeighborPath(t *testing.T) {
	history := &mockHistory{events: map[string][]PurchaseEvent{
		"u3": {{UserID: "u3", BookID: 10, Category: "T", Quantity: 5}},
		"u4": {{UserID: "u4", BookID: 11, Category: "T", Quantity: 3}},
	}}
	catalog := &mockCatalog{books: []CandidateBook{
		book(10, "T", 5, 60), // u3's own purchase
		book(11, "T", 5, 50),
		book(12, "T", 5, 40),
		book(20, "C", 5, 100),
	}}

	engine := newTestEngine(t, nil, history, catalog)

	resp, err := engine.Recommend(context.Background(), Request{UserID: "u3", Count: 2})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if resp.Strategy != StrategyNeighbor {
		t.Errorf("Strategy = %s, want %s", resp.Strategy, StrategyNeighbor)
	}
	if resp.NeighborCount != 1 {
		t.Errorf("NeighborCount = %d, want 1", resp.NeighborCount)
	}
	if got := bookIDs(resp.Books); len(got) != 2 || got[0] != 11 || got[1] != 12 {
		t.Errorf("Books = %v, want [11 12]", got)
	}
}

func TestRecommendThresholdExclusionFallsBackToSelf(t *testing.T) {
	history := &mockHistory{events: map[string][]PurchaseEvent{
		"u5": {{UserID: "u5", BookID: 1, Category: "A", Quantity: 1}},
		// Orthogonal taste with huge volume; never a neighbor.
		"u6": {{UserID: "u6", BookID: 2, Category: "Z", Quantity: 100}},
	}}
	catalog := &mockCatalog{books: []CandidateBook{
		book(30, "A", 5, 10),
		book(31, "Z", 5, 90),
	}}

	engine := newTestEngine(t, nil, history, catalog)

	resp, err := engine.Recommend(context.Background(), Request{UserID: "u5", Count: 1})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if resp.Strategy != StrategySelfPreference {
		t.Errorf("Strategy = %s, want %s", resp.Strategy, StrategySelfPreference)
	}
	if got := bookIDs(resp.Books); len(got) != 1 || got[0] != 30 {
		t.Errorf("Books = %v, want [30]", got)
	}
}

// Categories the target already buys from are discounted, so a category
// new to the target should outrank a known one with a slightly higher
// accumulated weight.
func TestRecommendKnownCategoryDiscount(t *testing.T) {
	history := &mockHistory{events: map[string][]PurchaseEvent{
		"target": {{UserID: "target", BookID: 1, Category: "I", Quantity: 4}},
		"peer": {
			{UserID: "peer", BookID: 2, Category: "I", Quantity: 5},
			{UserID: "peer", BookID: 3, Category: "B", Quantity: 3},
		},
	}}
	catalog := &mockCatalog{books: []CandidateBook{
		book(40, "I", 5, 100),
		book(41, "B", 5, 10),
	}}

	engine := newTestEngine(t, nil, history, catalog)

	resp, err := engine.Recommend(context.Background(), Request{UserID: "target", Count: 2})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if resp.Strategy != StrategyNeighbor {
		t.Fatalf("Strategy = %s, want %s", resp.Strategy, StrategyNeighbor)
	}
	// peer weights: I=1.0, B=0.6; target already buys I so I is halved
	// to 0.5 and B leads despite lower raw weight.
	if got := bookIDs(resp.Books); len(got) != 2 || got[0] != 41 || got[1] != 40 {
		t.Errorf("Books = %v, want [41 40]", got)
	}
}

func TestRecommendDeduplicationAndPurchaseExclusion(t *testing.T) {
	history := &mockHistory{events: map[string][]PurchaseEvent{
		"u2": {
			{UserID: "u2", BookID: 1, Category: "I", Quantity: 2},
		},
	}}
	catalog := &mockCatalog{books: []CandidateBook{
		book(1, "I", 5, 500),
		book(50, "I", 5, 50),
		book(51, "C", 5, 60),
	}}

	engine := newTestEngine(t, nil, history, catalog)

	resp, err := engine.Recommend(context.Background(), Request{UserID: "u2", Count: 10})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	seen := make(map[int64]struct{})
	for _, b := range resp.Books {
		if b.BookID == 1 {
			t.Error("recommended a purchased book")
		}
		if _, dup := seen[b.BookID]; dup {
			t.Errorf("duplicate book %d", b.BookID)
		}
		seen[b.BookID] = struct{}{}
	}
	if len(resp.Books) != 2 {
		t.Errorf("len(Books) = %d, want 2", len(resp.Books))
	}
}

func TestRecommendCountBounds(t *testing.T) {
	history := &mockHistory{events: map[string][]PurchaseEvent{}}
	catalog := &mockCatalog{}
	for i := int64(1); i <= 200; i++ {
		catalog.books = append(catalog.books, book(i, "C", 5, i))
	}

	cfg := DefaultConfig()
	engine := newTestEngine(t, cfg, history, catalog)

	t.Run("zero count uses default", func(t *testing.T) {
		resp, err := engine.Recommend(context.Background(), Request{UserID: "u"})
		if err != nil {
			t.Fatalf("Recommend() error = %v", err)
		}
		if len(resp.Books) != cfg.Limits.DefaultCount {
			t.Errorf("len(Books) = %d, want %d", len(resp.Books), cfg.Limits.DefaultCount)
		}
	})

	t.Run("count capped at max", func(t *testing.T) {
		resp, err := engine.Recommend(context.Background(), Request{UserID: "u", Count: 5000})
		if err != nil {
			t.Fatalf("Recommend() error = %v", err)
		}
		if len(resp.Books) != cfg.Limits.MaxCount {
			t.Errorf("len(Books) = %d, want %d", len(resp.Books), cfg.Limits.MaxCount)
		}
	})

	t.Run("negative count rejected", func(t *testing.T) {
		_, err := engine.Recommend(context.Background(), Request{UserID: "u", Count: -1})
		if !errors.Is(err, ErrInvalidCount) {
			t.Errorf("error = %v, want ErrInvalidCount", err)
		}
	})
}

func TestRecommendEmptyCatalog(t *testing.T) {
	history := &mockHistory{events: map[string][]PurchaseEvent{}}
	catalog := &mockCatalog{}

	engine := newTestEngine(t, nil, history, catalog)

	resp, err := engine.Recommend(context.Background(), Request{UserID: "u", Count: 10})
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Books) != 0 {
		t.Errorf("len(Books) = %d, want 0", len(resp.Books))
	}
}

func TestRecommendDataSourceErrors(t *testing.T) {
	underlying := errors.New("connection refused")

	t.Run("history failure", func(t *testing.T) {
		history := &mockHistory{events: map[string][]PurchaseEvent{}, purchasedErr: underlying}
		engine := newTestEngine(t, nil, history, &mockCatalog{})

		_, err := engine.Recommend(context.Background(), Request{UserID: "u", Count: 5})
		if !errors.Is(err, ErrDataSource) {
			t.Errorf("error = %v, want ErrDataSource", err)
		}
		if !errors.Is(err, underlying) {
			t.Errorf("error = %v does not preserve underlying cause", err)
		}
	})

	t.Run("catalog failure", func(t *testing.T) {
		history := &mockHistory{events: map[string][]PurchaseEvent{}}
		engine := newTestEngine(t, nil, history, &mockCatalog{err: underlying})

		_, err := engine.Recommend(context.Background(), Request{UserID: "u", Count: 5})
		if !errors.Is(err, ErrDataSource) {
			t.Errorf("error = %v, want ErrDataSource", err)
		}
	})
}

func TestPreferenceCacheInvalidation(t *testing.T) {
	history := &mockHistory{events: map[string][]PurchaseEvent{
		"u1": {{UserID: "u1", BookID: 1, Category: "I", Quantity: 1}},
	}}
	catalog := &mockCatalog{books: []CandidateBook{book(2, "I", 5, 10)}}

	engine := newTestEngine(t, nil, history, catalog)
	ctx := context.Background()

	if _, err := engine.Recommend(ctx, Request{UserID: "u1", Count: 1}); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	callsAfterFirst := history.eventsCalls.Load()

	if _, err := engine.Recommend(ctx, Request{UserID: "u1", Count: 1}); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if got := history.eventsCalls.Load(); got != callsAfterFirst {
		t.Errorf("cached request rebuilt vectors: %d calls, want %d", got, callsAfterFirst)
	}

	engine.InvalidateUser("u1")
	if _, err := engine.Recommend(ctx, Request{UserID: "u1", Count: 1}); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if got := history.eventsCalls.Load(); got != callsAfterFirst+1 {
		t.Errorf("invalidation did not force rebuild: %d calls, want %d", got, callsAfterFirst+1)
	}

	m := engine.GetMetrics()
	if m.PreferenceCacheHits == 0 {
		t.Error("expected preference cache hits")
	}
}

func TestUserPreferenceAndStats(t *testing.T) {
	history := &mockHistory{events: map[string][]PurchaseEvent{
		"u1": {
			{UserID: "u1", BookID: 1, Category: "I", Quantity: 3},
			{UserID: "u1", BookID: 2, Category: "A", Quantity: 1},
		},
	}}

	engine := newTestEngine(t, nil, history, &mockCatalog{})
	ctx := context.Background()

	pref, err := engine.UserPreference(ctx, "u1")
	if err != nil {
		t.Fatalf("UserPreference() error = %v", err)
	}
	if pref.Scores["I"] != 1.0 {
		t.Errorf("Scores[I] = %f, want 1.0", pref.Scores["I"])
	}

	stats, err := engine.UserPurchaseStats(ctx, "u1")
	if err != nil {
		t.Fatalf("UserPurchaseStats() error = %v", err)
	}
	if stats["I"] != 3 || stats["A"] != 1 {
		t.Errorf("stats = %v, want I:3 A:1", stats)
	}
}

func TestGetMetricsByStrategy(t *testing.T) {
	history := &mockHistory{events: map[string][]PurchaseEvent{}}
	catalog := &mockCatalog{books: []CandidateBook{book(1, "A", 1, 1)}}

	engine := newTestEngine(t, nil, history, catalog)

	if _, err := engine.Recommend(context.Background(), Request{UserID: "u", Count: 1}); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	m := engine.GetMetrics()
	if m.RequestCount != 1 {
		t.Errorf("RequestCount = %d, want 1", m.RequestCount)
	}
	if m.ByStrategy[StrategyPopular.String()] != 1 {
		t.Errorf("ByStrategy[popular] = %d, want 1", m.ByStrategy[StrategyPopular.String()])
	}
}

// Ensure interface compliance.
var (
	_ PurchaseHistorySource = (*mockHistory)(nil)
	_ CatalogSource         = (*mockCatalog)(nil)
)
