package store

import (
	"testing"

	"github.com/remnetwork/dvm-miner/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSize(t *testing.T) {
	size := RecordSize("abc", make([]float32, 10), map[string]string{"k": "val"})
	// 40 vector bytes + 3 id bytes + 4 metadata bytes
	assert.Equal(t, int64(47), size)
}

func TestInsertRespectsCommitment(t *testing.T) {
	s := New(1000, common.NewTestEntry(t))

	// 4 id bytes + 99*4 vector bytes = 400
	err := s.Insert("aaaa", make([]float32, 99), nil)
	require.NoError(t, err)

	// 4 id bytes + 174*4 vector bytes = 700; 400+700 > 1000
	err = s.Insert("bbbb", make([]float32, 174), nil)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.CapacityExceeded))

	// The failed insert must not change the accounting.
	stats := s.Stats()
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, int64(400), stats.BytesUsed)
	assert.Equal(t, int64(1000), stats.CommitmentBytes)

	// Deleting the first record frees enough room for the second.
	s.Delete("aaaa")
	err = s.Insert("bbbb", make([]float32, 174), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(700), s.Stats().BytesUsed)
}

func TestInsertReplaceAccounting(t *testing.T) {
	s := New(1000, common.NewTestEntry(t))

	require.NoError(t, s.Insert("id", []float32{1, 2, 3}, nil))
	used := s.Stats().BytesUsed

	// Replacing frees the old bytes before charging the new ones.
	require.NoError(t, s.Insert("id", []float32{4, 5, 6, 7}, nil))
	assert.Equal(t, used+4, s.Stats().BytesUsed)
	assert.Equal(t, 1, s.Stats().Records)

	// Replacement may even use the freed bytes: a record close to the full
	// commitment can replace itself.
	big := New(100, common.NewTestEntry(t))
	// 1 id byte + 24*4 vector bytes = 97, then 99 with the metadata
	require.NoError(t, big.Insert("x", make([]float32, 24), nil))
	require.NoError(t, big.Insert("x", make([]float32, 24), map[string]string{"a": "b"}))
	assert.Equal(t, int64(99), big.Stats().BytesUsed)
}

func TestInsertIdenticalIsIdempotent(t *testing.T) {
	s := New(1000, common.NewTestEntry(t))

	require.NoError(t, s.Insert("id", []float32{1, 2}, map[string]string{"k": "v"}))
	before := s.Stats()

	require.NoError(t, s.Insert("id", []float32{1, 2}, map[string]string{"k": "v"}))
	assert.Equal(t, before, s.Stats())
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	s := New(1000, common.NewTestEntry(t))

	require.NoError(t, s.Insert("id", []float32{1}, nil))
	s.Delete("missing")
	assert.Equal(t, 1, s.Stats().Records)

	s.Delete("id")
	assert.Equal(t, 0, s.Stats().Records)
	assert.Equal(t, int64(0), s.Stats().BytesUsed)
}

func TestSearchOrdersByCosineDistance(t *testing.T) {
	s := New(1<<20, common.NewTestEntry(t))

	require.NoError(t, s.Insert("orthogonal", []float32{0, 1}, nil))
	require.NoError(t, s.Insert("diagonal", []float32{1, 1}, nil))
	require.NoError(t, s.Insert("aligned", []float32{5, 0}, nil))

	results := s.Search([]float32{1, 0}, 3)
	require.Len(t, results, 3)

	assert.Equal(t, "aligned", results[0].ID)
	assert.Equal(t, "diagonal", results[1].ID)
	assert.Equal(t, "orthogonal", results[2].ID)

	// The metric is scale-invariant: "aligned" points the same way as the
	// query, so its distance is ~0.
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.InDelta(t, 1, results[2].Distance, 1e-6)
}

func TestSearchBreaksTiesByInsertionOrder(t *testing.T) {
	s := New(1<<20, common.NewTestEntry(t))

	require.NoError(t, s.Insert("second", []float32{2, 0}, nil))
	require.NoError(t, s.Insert("first", []float32{3, 0}, nil))

	// Both are at distance 0 from the query; the earlier insert wins.
	results := s.Search([]float32{1, 0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "second", results[0].ID)
	assert.Equal(t, "first", results[1].ID)
}

func TestSearchReturnsAtMostK(t *testing.T) {
	s := New(1<<20, common.NewTestEntry(t))

	require.NoError(t, s.Insert("a", []float32{1, 0}, nil))
	require.NoError(t, s.Insert("b", []float32{0, 1}, nil))
	require.NoError(t, s.Insert("c", []float32{1, 1}, nil))

	assert.Len(t, s.Search([]float32{1, 0}, 2), 2)

	// Fewer than k records yields fewer than k results, not an error.
	assert.Len(t, s.Search([]float32{1, 0}, 10), 3)

	assert.Nil(t, s.Search([]float32{1, 0}, 0))
}

func TestSearchRejectsZeroNormQuery(t *testing.T) {
	s := New(1<<20, common.NewTestEntry(t))

	require.NoError(t, s.Insert("a", []float32{1, 0}, nil))

	assert.Nil(t, s.Search([]float32{0, 0}, 5))
}

func TestSearchSkipsMismatchedDimensions(t *testing.T) {
	s := New(1<<20, common.NewTestEntry(t))

	require.NoError(t, s.Insert("dim2", []float32{1, 0}, nil))
	require.NoError(t, s.Insert("dim3", []float32{1, 0, 0}, nil))

	results := s.Search([]float32{1, 0}, 10)
	require.Len(t, results, 1)
	assert.Equal(t, "dim2", results[0].ID)
}

func TestSampleReturnsCopiesAndMissing(t *testing.T) {
	s := New(1<<20, common.NewTestEntry(t))

	require.NoError(t, s.Insert("a", []float32{1, 2}, map[string]string{"k": "v"}))
	require.NoError(t, s.Insert("b", []float32{3, 4}, nil))

	found, missing := s.Sample([]string{"a", "ghost", "b"})
	require.Len(t, found, 2)
	assert.Equal(t, []string{"ghost"}, missing)

	// Mutating the sampled copy must not leak into the store.
	found[0].Vector[0] = 99
	resampled, _ := s.Sample([]string{"a"})
	assert.Equal(t, float32(1), resampled[0].Vector[0])
}

func TestManifestIsSorted(t *testing.T) {
	s := New(1<<20, common.NewTestEntry(t))

	require.NoError(t, s.Insert("zebra", []float32{1}, nil))
	require.NoError(t, s.Insert("alpha", []float32{1}, nil))
	require.NoError(t, s.Insert("mango", []float32{1}, nil))

	assert.Equal(t, []string{"alpha", "mango", "zebra"}, s.Manifest())
}
