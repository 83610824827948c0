package challenge

import (
	"testing"
	"time"

	"github.com/remnetwork/dvm-miner/src/common"
	"github.com/remnetwork/dvm-miner/src/protocol"
	"github.com/remnetwork/dvm-miner/src/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *store.Store {
	s := store.New(1<<20, common.NewTestEntry(t))

	require.NoError(t, s.Insert("a", []float32{1, 0}, map[string]string{"k": "v"}))
	require.NoError(t, s.Insert("b", []float32{0, 1}, nil))
	require.NoError(t, s.Insert("c", []float32{1, 1}, nil))

	return s
}

func futureChallenge(ids ...string) *protocol.Challenge {
	return &protocol.Challenge{
		Nonce:          "nonce-1",
		SampleIDs:      ids,
		DeadlineUnixMS: time.Now().Add(time.Minute).UnixMilli(),
	}
}

func TestDigestIsDeterministic(t *testing.T) {
	records := []store.Record{
		{ID: "b", Vector: []float32{0, 1}},
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]string{"k": "v"}},
	}

	first, err := Digest("nonce", records)
	require.NoError(t, err)

	// Same records in a different order produce the same digest.
	second, err := Digest("nonce", []store.Record{records[1], records[0]})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A different nonce produces a different digest.
	third, err := Digest("other", records)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestRespondMatchesDirectDigest(t *testing.T) {
	s := testStore(t)
	r := NewResponder(s, common.NewTestEntry(t))

	resp, err := r.Respond(futureChallenge("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, "nonce-1", resp.Nonce)
	assert.Empty(t, resp.MissingIDs)
	assert.NotEmpty(t, resp.Digest)

	// Responding twice to the same challenge yields the same digest.
	again, err := r.Respond(futureChallenge("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, resp.Digest, again.Digest)
}

func TestRespondReportsMissingIDs(t *testing.T) {
	s := testStore(t)
	r := NewResponder(s, common.NewTestEntry(t))

	resp, err := r.Respond(futureChallenge("a", "ghost", "phantom"))
	require.NoError(t, err)

	assert.Equal(t, []string{"ghost", "phantom"}, resp.MissingIDs)
}

func TestRespondAfterDeadlineFails(t *testing.T) {
	s := testStore(t)
	r := NewResponder(s, common.NewTestEntry(t))

	// Freeze the clock past the deadline.
	frozen := time.Now()
	r.now = func() time.Time { return frozen }

	expired := &protocol.Challenge{
		Nonce:          "nonce-late",
		SampleIDs:      []string{"a"},
		DeadlineUnixMS: frozen.Add(-time.Second).UnixMilli(),
	}

	_, err := r.Respond(expired)
	require.Error(t, err)
	assert.True(t, common.Is(err, common.ChallengeMissed))
}

func TestRespondDigestChangesWithContents(t *testing.T) {
	s := testStore(t)
	r := NewResponder(s, common.NewTestEntry(t))

	before, err := r.Respond(futureChallenge("a"))
	require.NoError(t, err)

	require.NoError(t, s.Insert("a", []float32{9, 9}, nil))

	after, err := r.Respond(futureChallenge("a"))
	require.NoError(t, err)

	assert.NotEqual(t, before.Digest, after.Digest)
}
