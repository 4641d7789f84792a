// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package recommend

import "math"

// CosineSimilarity computes the cosine similarity of two preference
// vectors over the union of their categories:
//
//	sim(a, b) = (a . b) / (|a| * |b|)
//
// Categories absent from a vector contribute zero, so the norms reduce to
// each vector's own non-zero entries. If either vector has zero magnitude
// the result is 0, never NaN.
//
// For non-negative inputs the result is commutative and bounded to [0,1].
func CosineSimilarity(a, b PreferenceVector) float64 {
	var dot, normA, normB float64

	for cat, scoreA := range a.Scores {
		normA += scoreA * scoreA
		if scoreB, ok := b.Scores[cat]; ok {
			dot += scoreA * scoreB
		}
	}
	for _, scoreB := range b.Scores {
		normB += scoreB * scoreB
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
