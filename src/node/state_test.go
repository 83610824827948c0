package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Connecting", Connecting.String())
	assert.Equal(t, "Registering", Registering.String())
	assert.Equal(t, "Active", Active.String())
	assert.Equal(t, "Closing", Closing.String())
	assert.Equal(t, "Unknown", State(99).String())
}

func TestGoFuncReportsDroppedWork(t *testing.T) {
	s := new(state)

	release := make(chan struct{})
	for i := 0; i < WGLIMIT; i++ {
		require.True(t, s.goFunc(func() { <-release }))
	}

	// At the limit, work is refused rather than silently lost.
	assert.False(t, s.goFunc(func() {}))

	close(release)
	s.waitRoutines()

	// Capacity is available again once the in-flight work drains.
	done := make(chan struct{})
	require.True(t, s.goFunc(func() { close(done) }))
	<-done
	s.waitRoutines()
}
