package core

import "math"

// NormalizeVector normalizes a vector to unit length (L2 normalization).
// Returns a new slice; the input is not modified. Zero vectors are returned unchanged.
func NormalizeVector(vec []float32) []float32 {
	if len(vec) == 0 {
		return vec
	}

	norm := VectorNorm(vec)
	if norm == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}
	return normalized
}

// VectorNorm returns the Euclidean length of vec.
func VectorNorm(vec []float32) float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sumSquares))
}

// DotProduct calculates the dot product of two vectors.
func DotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Returns 0 when either vector has zero length.
func CosineSimilarity(a, b []float32) float32 {
	na, nb := VectorNorm(a), VectorNorm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return DotProduct(a, b) / (na * nb)
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) float32 {
	var sum float64
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
