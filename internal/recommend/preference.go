// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package recommend

// BuildPreference aggregates a user's purchase events into a normalized
// preference vector. Quantities are summed per category, then every
// category's total is divided by the user's own maximum so the largest
// entry is exactly 1.0.
//
// Normalizing by the user's own maximum (rather than a global maximum or
// the L2 norm) means two users with identical category proportions but
// different purchase volumes produce identical vectors. That is the point:
// similarity measures proportional taste, not volume.
//
// A user with no events gets an empty vector, not an error. The result is
// independent of event ordering; summation is the only aggregation.
func BuildPreference(userID string, events []PurchaseEvent) PreferenceVector {
	pref := PreferenceVector{
		UserID: userID,
		Scores: make(map[CategoryCode]float64, len(events)),
	}

	for _, ev := range events {
		pref.Scores[ev.Category] += float64(ev.Quantity)
	}

	var maxScore float64
	for _, s := range pref.Scores {
		if s > maxScore {
			maxScore = s
		}
	}

	if maxScore > 0 {
		for cat := range pref.Scores {
			pref.Scores[cat] /= maxScore
		}
	}

	return pref
}

// BuildPurchaseStats aggregates a user's purchase events into raw
// per-category quantities, without normalization. Used by callers that
// display preference analytics.
func BuildPurchaseStats(events []PurchaseEvent) map[CategoryCode]int {
	stats := make(map[CategoryCode]int, len(events))
	for _, ev := range events {
		stats[ev.Category] += ev.Quantity
	}
	return stats
}
