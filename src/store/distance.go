package store

import "math"

// Dot returns the dot product of two vectors. Assumes the vectors are the
// same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// NormalizeL2Copy returns an L2-normalized copy of src. The second return
// value is false when src has zero L2 norm, in which case the copy is all
// zeros.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := make([]float32, len(src))

	var norm2 float32
	for _, v := range src {
		norm2 += v * v
	}
	if norm2 == 0 {
		return dst, false
	}

	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i, v := range src {
		dst[i] = v * inv
	}
	return dst, true
}

// cosineDistance returns 1 - dot(a, b) for L2-normalized a and b. It is the
// single similarity metric of the store: 0 for identical directions, 1 for
// orthogonal, 2 for opposite.
func cosineDistance(a, b []float32) float32 {
	return 1 - Dot(a, b)
}
