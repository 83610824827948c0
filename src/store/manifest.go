package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/remnetwork/dvm-miner/src/common"
)

// Manifest is the autosave snapshot of the store contents: record ids only,
// not vector payloads. Together with the identity file it is everything the
// autosave scheduler persists. It also carries the last known session state
// and failure counter, so the status command can report them without opening
// a coordinator session.
type Manifest struct {
	NodeID              string    `json:"node_id"`
	SavedAt             time.Time `json:"saved_at"`
	SessionState        string    `json:"session_state"`
	ConsecutiveFailures int32     `json:"consecutive_failures"`
	BytesUsed           int64     `json:"bytes_used"`
	Records             []string  `json:"records"`
}

// WriteManifest persists the manifest atomically: write to a temporary file
// in the same directory, sync, rename. A crash mid-write leaves the previous
// valid snapshot untouched.
func WriteManifest(path string, m *Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return common.NewMinerErr(common.Persistence, "creating snapshot dir: %v", err)
	}

	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return common.NewMinerErr(common.Persistence, "encoding manifest: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return common.NewMinerErr(common.Persistence, "creating temp manifest file: %v", err)
	}

	_, werr := tmp.Write(buf)
	if werr == nil {
		werr = tmp.Sync()
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return common.NewMinerErr(common.Persistence, "writing manifest file: %v", werr)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return common.NewMinerErr(common.Persistence, "publishing manifest file: %v", err)
	}

	return nil
}

// ReadManifest loads a previously written manifest.
func ReadManifest(path string) (*Manifest, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m := new(Manifest)
	if err := json.Unmarshal(buf, m); err != nil {
		return nil, common.NewMinerErr(common.Persistence, "corrupt manifest file %s: %v", path, err)
	}

	return m, nil
}
