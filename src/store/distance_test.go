package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeL2Copy(t *testing.T) {
	normed, ok := NormalizeL2Copy([]float32{3, 4})
	assert.True(t, ok)
	assert.InDelta(t, 0.6, normed[0], 1e-6)
	assert.InDelta(t, 0.8, normed[1], 1e-6)

	// The input is not mutated.
	src := []float32{3, 4}
	NormalizeL2Copy(src)
	assert.Equal(t, []float32{3, 4}, src)

	_, ok = NormalizeL2Copy([]float32{0, 0, 0})
	assert.False(t, ok)
}

func TestCosineDistance(t *testing.T) {
	a, _ := NormalizeL2Copy([]float32{1, 0})
	b, _ := NormalizeL2Copy([]float32{0, 1})
	c, _ := NormalizeL2Copy([]float32{-1, 0})

	assert.InDelta(t, 0, cosineDistance(a, a), 1e-6)
	assert.InDelta(t, 1, cosineDistance(a, b), 1e-6)
	assert.InDelta(t, 2, cosineDistance(a, c), 1e-6)
}
