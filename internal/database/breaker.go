// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package database

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/shelfscout/shelfscout/internal/logging"
	"github.com/shelfscout/shelfscout/internal/metrics"
	"github.com/shelfscout/shelfscout/internal/recommend"
)

// BreakerConfig configures the store circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker in logs and metrics.
	Name string

	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureThreshold is the consecutive failure count that trips the
	// breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns production defaults for the store breaker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "store",
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// ResilientStore wraps the database with a circuit breaker so a failing
// DuckDB backend sheds load instead of queueing requests. It implements
// the same data source interfaces as DB and is a drop-in replacement when
// constructing the recommendation engine.
type ResilientStore struct {
	db *DB
	cb *gobreaker.CircuitBreaker[any]
}

// NewResilientStore wraps db with circuit breaker protection.
func NewResilientStore(db *DB, cfg BreakerConfig) *ResilientStore {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	}

	return &ResilientStore{
		db: db,
		cb: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// breakerStateValue maps a gobreaker state to its gauge value.
func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// execute runs fn through the breaker, recording the outcome.
func (s *ResilientStore) execute(fn func() (any, error)) (any, error) {
	result, err := s.cb.Execute(fn)

	outcome := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
	case err != nil:
		outcome = "failure"
	}
	metrics.CircuitBreakerRequests.WithLabelValues(s.cb.Name(), outcome).Inc()

	return result, err
}

// EventsForUser delegates to the database through the breaker.
func (s *ResilientStore) EventsForUser(ctx context.Context, userID string) ([]recommend.PurchaseEvent, error) {
	result, err := s.execute(func() (any, error) {
		return s.db.EventsForUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	events, _ := result.([]recommend.PurchaseEvent)
	return events, nil
}

// UsersWithHistory delegates to the database through the breaker.
func (s *ResilientStore) UsersWithHistory(ctx context.Context) ([]string, error) {
	result, err := s.execute(func() (any, error) {
		return s.db.UsersWithHistory(ctx)
	})
	if err != nil {
		return nil, err
	}
	users, _ := result.([]string)
	return users, nil
}

// PurchasedBookIDs delegates to the database through the breaker.
func (s *ResilientStore) PurchasedBookIDs(ctx context.Context, userID string) (map[int64]struct{}, error) {
	result, err := s.execute(func() (any, error) {
		return s.db.PurchasedBookIDs(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	ids, _ := result.(map[int64]struct{})
	return ids, nil
}

// CandidateBooks delegates to the database through the breaker.
func (s *ResilientStore) CandidateBooks(ctx context.Context, q recommend.CatalogQuery) ([]recommend.CandidateBook, error) {
	result, err := s.execute(func() (any, error) {
		return s.db.CandidateBooks(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	books, _ := result.([]recommend.CandidateBook)
	return books, nil
}

// State returns the breaker's current state string for health reporting.
func (s *ResilientStore) State() string {
	return s.cb.State().String()
}

var (
	_ recommend.PurchaseHistorySource = (*ResilientStore)(nil)
	_ recommend.CatalogSource         = (*ResilientStore)(nil)
)
