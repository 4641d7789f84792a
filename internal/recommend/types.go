// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Note: This package has no dependencies on other internal packages except
// the generic cache. The PurchaseHistorySource and CatalogSource interfaces
// allow integration with the database package without circular imports, and
// make the engine trivially testable with fixture data.

// CategoryCode is a single-letter taxonomy bucket derived from a book's
// classification string (e.g. "I247.5/1" -> "I").
type CategoryCode string

// CategoryUncategorized is the catch-all bucket for books whose
// classification string carries no alphabetic category letter. "Z" is the
// comprehensive-works class in the classification scheme in use.
const CategoryUncategorized CategoryCode = "Z"

// PurchaseEvent is one order line item that counts toward a user's
// category preference. Events are derived from orders in a paid, delivered
// or completed state; pending and cancelled orders never produce events.
type PurchaseEvent struct {
	// UserID is the purchasing user's identifier.
	UserID string `json:"user_id"`

	// BookID is the catalog identifier of the purchased book.
	BookID int64 `json:"book_id"`

	// Category is the book's category code at purchase time.
	Category CategoryCode `json:"category"`

	// Quantity is the number of copies in the line item.
	Quantity int `json:"quantity"`
}

// PreferenceVector is a sparse mapping from category code to a non-negative
// affinity score for one user. After normalization the maximum entry is 1.0;
// a user with no purchase history has an empty Scores map.
//
// Vectors are rebuilt on demand from purchase events and are never persisted.
type PreferenceVector struct {
	// UserID is the user the vector belongs to.
	UserID string `json:"user_id"`

	// Scores maps category codes to normalized affinity scores.
	Scores map[CategoryCode]float64 `json:"scores"`
}

// IsEmpty reports whether the vector carries no category scores.
func (v PreferenceVector) IsEmpty() bool {
	return len(v.Scores) == 0
}

// Neighbor pairs another user's preference vector with its similarity to
// the target user.
type Neighbor struct {
	// Vector is the neighbor's preference vector.
	Vector PreferenceVector `json:"vector"`

	// Similarity is the cosine similarity to the target user, in [0,1].
	Similarity float64 `json:"similarity"`
}

// CandidateBook is the minimal catalog projection the engine consumes.
// It is never mutated by this package.
type CandidateBook struct {
	// BookID is the catalog identifier.
	BookID int64 `json:"book_id"`

	// Category is the book's category code.
	Category CategoryCode `json:"category"`

	// Stock is the number of copies currently available.
	Stock int `json:"stock"`

	// Popularity is the cumulative purchase counter used for popularity
	// ranking (higher is more popular).
	Popularity int64 `json:"popularity"`

	// AddedAt is when the book entered the catalog; used as the recency
	// tie-break for popularity ordering.
	AddedAt time.Time `json:"added_at"`

	// Title is carried for display; the engine never inspects it.
	Title string `json:"title,omitempty"`
}

// CatalogOrder selects the ordering applied by the catalog collaborator.
type CatalogOrder int

const (
	// OrderPopularity orders by popularity descending, then recency
	// descending, then book ID ascending for determinism.
	OrderPopularity CatalogOrder = iota
	// OrderRecency orders by catalog entry date descending, then book ID
	// ascending.
	OrderRecency
)

// String returns a human-readable order name.
func (o CatalogOrder) String() string {
	switch o {
	case OrderPopularity:
		return "popularity"
	case OrderRecency:
		return "recency"
	default:
		return "unknown"
	}
}

// CatalogQuery describes one candidate-book pull from the catalog.
type CatalogQuery struct {
	// Exclude is a set of book IDs that must not be returned. Typically
	// the union of the user's purchase history and books already selected.
	Exclude map[int64]struct{}

	// Category restricts results to one category code. Empty means any.
	Category CategoryCode

	// InStockOnly restricts results to books with positive stock.
	InStockOnly bool

	// Limit caps the number of returned books. Non-positive means none.
	Limit int

	// OrderBy selects the result ordering.
	OrderBy CatalogOrder
}

// PurchaseHistorySource supplies completed purchase data.
//
// Implementations must only surface purchases in a counts-toward-preference
// status (paid, delivered or completed) from EventsForUser and
// UsersWithHistory. PurchasedBookIDs covers every order regardless of
// status, so a book in a still-pending order is not re-recommended.
type PurchaseHistorySource interface {
	// EventsForUser returns the purchase events for one user.
	EventsForUser(ctx context.Context, userID string) ([]PurchaseEvent, error)

	// UsersWithHistory returns the IDs of every user with at least one
	// counted purchase.
	UsersWithHistory(ctx context.Context) ([]string, error)

	// PurchasedBookIDs returns the set of book IDs the user has ever
	// ordered.
	PurchasedBookIDs(ctx context.Context, userID string) (map[int64]struct{}, error)
}

// CatalogSource supplies candidate books for recommendation.
type CatalogSource interface {
	// CandidateBooks returns books matching the query, in query order.
	CandidateBooks(ctx context.Context, q CatalogQuery) ([]CandidateBook, error)
}

// Strategy identifies which fallback tier produced a recommendation.
type Strategy int

const (
	// StrategyPopular ranks globally popular in-stock books. Used when the
	// target user has no purchase history.
	StrategyPopular Strategy = iota
	// StrategySelfPreference ranks the user's own preferred categories.
	// Used when no sufficiently similar neighbor exists.
	StrategySelfPreference
	// StrategyNeighbor aggregates similarity-weighted category scores
	// across the user's nearest neighbors. The normal path.
	StrategyNeighbor
)

// String returns a human-readable strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyPopular:
		return "popular"
	case StrategySelfPreference:
		return "self_preference"
	case StrategyNeighbor:
		return "neighbor"
	default:
		return "unknown"
	}
}

// Request is one recommendation request.
type Request struct {
	// UserID is the user to recommend for. An unknown user is treated as
	// a user with no purchase history, not as an error.
	UserID string `json:"user_id"`

	// Count is the number of books to return. Defaults to
	// Config.Limits.DefaultCount if zero; capped at Config.Limits.MaxCount.
	Count int `json:"count,omitempty"`

	// RequestID is a unique identifier for tracing.
	RequestID string `json:"request_id,omitempty"`
}

// Response is the result of one recommendation request.
type Response struct {
	// Books is the ordered recommendation list. It never contains two
	// entries with the same book ID, never contains a book the user has
	// purchased, and is at most Request.Count long.
	Books []CandidateBook `json:"books"`

	// Strategy is the tier that produced the list.
	Strategy Strategy `json:"strategy"`

	// NeighborCount is the number of neighbors that contributed.
	NeighborCount int `json:"neighbor_count"`

	// Metadata carries timing and diagnostic information.
	Metadata ResponseMetadata `json:"metadata"`
}

// ResponseMetadata contains timing and diagnostic information.
type ResponseMetadata struct {
	// RequestID is the unique request identifier.
	RequestID string `json:"request_id"`

	// UserID is the user the recommendations are for.
	UserID string `json:"user_id"`

	// LatencyMS is the total recommendation latency in milliseconds.
	LatencyMS int64 `json:"latency_ms"`

	// PreferenceCacheHit indicates the target vector came from cache.
	PreferenceCacheHit bool `json:"preference_cache_hit"`

	// Timestamp is when the response was generated.
	Timestamp time.Time `json:"timestamp"`
}

// Sentinel errors for the engine's two failure classes. Every empty-data
// condition (no history, no neighbors, exhausted catalog) degrades through
// the fallback tiers instead of erroring.
var (
	// ErrInvalidCount indicates a non-positive recommendation count.
	ErrInvalidCount = errors.New("recommendation count must be positive")

	// ErrDataSource indicates a collaborator failed to respond. The
	// underlying error is preserved via Unwrap.
	ErrDataSource = errors.New("recommendation data source unavailable")
)

// DataSourceError wraps a collaborator failure. It matches ErrDataSource
// with errors.Is while preserving the collaborator's own error chain.
type DataSourceError struct {
	// Op names the failed collaborator call.
	Op string

	// Err is the collaborator's error, propagated unchanged.
	Err error
}

// Error implements the error interface.
func (e *DataSourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the collaborator's error.
func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// Is matches ErrDataSource.
func (e *DataSourceError) Is(target error) bool {
	return target == ErrDataSource
}
