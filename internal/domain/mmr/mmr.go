// Package mmr implements maximal marginal relevance selection: a greedy
// algorithm that picks candidates balancing relevance to the query against
// similarity to candidates already picked. It runs before the cross-encoder
// rerank so near-duplicate passages never reach the expensive call.
package mmr

import "math"

// Select returns the indices of up to k candidates in selection order
// (first selected = most relevant). lambda in [0,1] trades relevance (high)
// against diversity (low).
//
// score(c) = lambda*sim(query,c) - (1-lambda)*max over selected s of sim(s,c)
//
// Ties keep the lowest index, so for candidates pre-sorted by store
// similarity the tie-break follows the initial ranking and the output is
// deterministic. k >= len(candidates) returns every index exactly once.
func Select(query []float32, candidates [][]float32, k int, lambda float64) []int {
	n := len(candidates)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	// Query similarities are reused on every round.
	querySim := make([]float64, n)
	for i, c := range candidates {
		querySim[i] = Cosine(query, c)
	}

	selected := make([]int, 0, k)
	// maxSelSim[i] tracks max similarity between candidate i and the
	// selected set, updated incrementally as the set grows.
	maxSelSim := make([]float64, n)
	remaining := make([]bool, n)
	for i := range remaining {
		remaining[i] = true
	}

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := 0; i < n; i++ {
			if !remaining[i] {
				continue
			}
			score := lambda * querySim[i]
			if len(selected) > 0 {
				score -= (1 - lambda) * maxSelSim[i]
			}
			// Strict greater keeps the earliest index on ties.
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			break
		}

		selected = append(selected, best)
		remaining[best] = false
		for i := 0; i < n; i++ {
			if !remaining[i] {
				continue
			}
			if s := Cosine(candidates[best], candidates[i]); s > maxSelSim[i] {
				maxSelSim[i] = s
			}
		}
	}

	return selected
}

// Cosine returns the cosine similarity of two vectors.
// Mismatched lengths compare the common prefix; zero vectors score 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
