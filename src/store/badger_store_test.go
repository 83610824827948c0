package store

import (
	"testing"

	"github.com/remnetwork/dvm-miner/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadOrCreateBadger(1<<20, dir, common.NewTestEntry(t))
	require.NoError(t, err)

	require.NoError(t, s.Insert("a", []float32{1, 0}, map[string]string{"k": "v"}))
	require.NoError(t, s.Insert("b", []float32{0, 1}, nil))
	s.Delete("b")
	require.NoError(t, s.Insert("c", []float32{1, 1}, nil))
	require.NoError(t, s.Close())

	reloaded, err := LoadOrCreateBadger(1<<20, dir, common.NewTestEntry(t))
	require.NoError(t, err)
	defer reloaded.Close()

	stats := reloaded.Stats()
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, []string{"a", "c"}, reloaded.Manifest())

	found, missing := reloaded.Sample([]string{"a", "b", "c"})
	require.Len(t, found, 2)
	assert.Equal(t, []string{"b"}, missing)
	assert.Equal(t, map[string]string{"k": "v"}, found[0].Metadata)
}

func TestBadgerStoreKeepsTieBreakOrder(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadOrCreateBadger(1<<20, dir, common.NewTestEntry(t))
	require.NoError(t, err)

	// Equidistant from the query; insertion order decides.
	require.NoError(t, s.Insert("older", []float32{2, 0}, nil))
	require.NoError(t, s.Insert("newer", []float32{3, 0}, nil))
	require.NoError(t, s.Close())

	reloaded, err := LoadOrCreateBadger(1<<20, dir, common.NewTestEntry(t))
	require.NoError(t, err)
	defer reloaded.Close()

	results := reloaded.Search([]float32{1, 0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "older", results[0].ID)
	assert.Equal(t, "newer", results[1].ID)
}

func TestBadgerStoreDropsOverBudgetRecords(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadOrCreateBadger(1<<20, dir, common.NewTestEntry(t))
	require.NoError(t, err)

	// 5 id bytes + 10*4 vector bytes = 45 each
	require.NoError(t, s.Insert("rec-1", make([]float32, 10), nil))
	require.NoError(t, s.Insert("rec-2", make([]float32, 10), nil))
	require.NoError(t, s.Insert("rec-3", make([]float32, 10), nil))
	require.NoError(t, s.Close())

	// Reopen with a lowered commitment that only fits two records. The
	// earliest inserts are kept.
	reloaded, err := LoadOrCreateBadger(100, dir, common.NewTestEntry(t))
	require.NoError(t, err)
	defer reloaded.Close()

	assert.Equal(t, []string{"rec-1", "rec-2"}, reloaded.Manifest())
	assert.Equal(t, int64(90), reloaded.Stats().BytesUsed)
}
