// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package recommend

import "sort"

// SelectNeighbors ranks candidate users by cosine similarity to the target
// and keeps the top maxNeighbors at or above threshold.
//
// The target's own vector is excluded by user ID. Ties on similarity are
// broken by user ID ascending so the result is deterministic regardless of
// candidate ordering; map iteration order must never leak into the output.
//
// An empty result is a valid outcome, not an error: it signals the caller
// to fall back to self-preference ranking.
func SelectNeighbors(target PreferenceVector, candidates []PreferenceVector, threshold float64, maxNeighbors int) []Neighbor {
	neighbors := make([]Neighbor, 0, len(candidates))

	for _, cand := range candidates {
		if cand.UserID == target.UserID {
			continue
		}

		sim := CosineSimilarity(target, cand)
		if sim < threshold {
			continue
		}

		neighbors = append(neighbors, Neighbor{Vector: cand, Similarity: sim})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].Vector.UserID < neighbors[j].Vector.UserID
	})

	if maxNeighbors > 0 && len(neighbors) > maxNeighbors {
		neighbors = neighbors[:maxNeighbors]
	}

	return neighbors
}
