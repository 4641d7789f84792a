// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

// Package recommend implements user-to-user collaborative filtering over a
// sparse category-preference space for book recommendations.
//
// # Architecture
//
// A user's completed purchases are aggregated into a preference vector: a
// sparse mapping from single-letter category codes to affinity scores,
// normalized by the user's own maximum. Cosine similarity between vectors
// finds the nearest neighbors, and their similarity-weighted category
// scores drive candidate selection from the catalog.
//
// # Fallback Tiers
//
// Requests degrade gracefully based on data availability:
//
//   - Popular: no purchase history; globally popular in-stock books
//   - Self-preference: history but no similar neighbor; rank the user's
//     own categories by score
//   - Neighbor: the normal path; similarity-weighted neighbor categories,
//     with known categories discounted to favor discovery
//
// Every tier tops up short results from the popularity ranking, excludes
// books the user has ordered, and never duplicates a book ID.
//
// # Design Principles
//
//   - Deterministic: ties in neighbor and category ranking break on
//     stable keys, never on map iteration order
//   - Stateless: vectors are rebuilt per request from injected
//     collaborators; the optional LRU cache is the only shared state and
//     is invalidated when a purchase completes
//   - Observable: structured logging per request, counters via GetMetrics
//
// # Usage
//
//	engine, err := recommend.NewEngine(recommend.DefaultConfig(), history, catalog, logger)
//	if err != nil {
//	    return err
//	}
//
//	resp, err := engine.Recommend(ctx, recommend.Request{
//	    UserID: userID,
//	    Count:  10,
//	})
//
// # Thread Safety
//
// The engine is safe for concurrent use. Requests are read-only with
// respect to all shared state; no locks are held across collaborator
// calls.
package recommend
