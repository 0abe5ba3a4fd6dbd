// Package similarity provides vector similarity and threshold-graph grouping.
package similarity

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0.0 for mismatched lengths, empty inputs, or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / math.Sqrt(normA*normB)
}
