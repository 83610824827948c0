package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")

	m := &Manifest{
		NodeID:              "node-1",
		SavedAt:             time.Now().UTC().Truncate(time.Second),
		SessionState:        "Active",
		ConsecutiveFailures: 2,
		BytesUsed:           1234,
		Records:             []string{"a", "b", "c"},
	}

	require.NoError(t, WriteManifest(path, m))

	read, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, read)
}

func TestWriteManifestOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")

	require.NoError(t, WriteManifest(path, &Manifest{NodeID: "n", Records: []string{"old"}}))
	require.NoError(t, WriteManifest(path, &Manifest{NodeID: "n", Records: []string{"new"}}))

	read, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, read.Records)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadManifestFailsOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	_, err := ReadManifest(path)
	require.Error(t, err)
}
