package identity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/remnetwork/dvm-miner/src/common"
)

// DefaultReferralID is the network-wide referral id used when the config does
// not name a referrer.
const DefaultReferralID = "f5e3a292-b3fc-480e-93c6-b475cffd6c18"

// Default commitment and index parameters for a fresh identity.
const (
	DefaultRAMCommitmentBytes = 4 << 30
	DefaultEmbeddingDim       = 384
	DefaultIndexVersion       = 1
)

// NodeIdentity is the durable identity and commitment of the node. It is
// persisted as plain JSON so that it can be hand-edited between runs. Once
// NodeID is set it is never changed by the node; if it is blanked by hand, a
// new identity is generated on the next load.
type NodeIdentity struct {
	NodeID             string `json:"node_id"`
	WalletAddress      string `json:"wallet_address"`
	ReferralID         string `json:"referral_id"`
	RAMCommitmentBytes int64  `json:"ram_commitment_bytes"`
	EmbeddingDim       int    `json:"embedding_dim"`
	IndexVersion       int    `json:"index_version"`
}

// NewDefaultIdentity returns an identity record with default values and no
// NodeID. The NodeID is assigned by Store.Load.
func NewDefaultIdentity() *NodeIdentity {
	return &NodeIdentity{
		ReferralID:         DefaultReferralID,
		RAMCommitmentBytes: DefaultRAMCommitmentBytes,
		EmbeddingDim:       DefaultEmbeddingDim,
		IndexVersion:       DefaultIndexVersion,
	}
}

// Store reads and writes the identity file.
type Store struct {
	l    sync.Mutex
	path string
}

// NewStore returns a Store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{
		path: path,
	}
}

// Load reads the persisted identity. A missing file starts from the default
// record. If NodeID is missing or empty, a new stable identifier is generated
// and the full record is persisted before Load returns; the identity must be
// durable before any network registration that could be tied to it. Errors
// are persistence errors and should be treated as fatal by the caller.
func (s *Store) Load() (*NodeIdentity, error) {
	s.l.Lock()
	defer s.l.Unlock()

	id := NewDefaultIdentity()

	buf, err := os.ReadFile(s.path)
	if err == nil {
		if jerr := json.Unmarshal(buf, id); jerr != nil {
			return nil, common.NewMinerErr(common.Persistence, "corrupt identity file %s: %v", s.path, jerr)
		}
	} else if !os.IsNotExist(err) {
		return nil, common.NewMinerErr(common.Persistence, "reading identity file %s: %v", s.path, err)
	}

	if id.ReferralID == "" {
		id.ReferralID = DefaultReferralID
	}
	if id.RAMCommitmentBytes <= 0 {
		id.RAMCommitmentBytes = DefaultRAMCommitmentBytes
	}
	if id.EmbeddingDim <= 0 {
		id.EmbeddingDim = DefaultEmbeddingDim
	}
	if id.IndexVersion <= 0 {
		id.IndexVersion = DefaultIndexVersion
	}

	if id.NodeID == "" {
		id.NodeID = uuid.New().String()
		if err := s.save(id); err != nil {
			return nil, err
		}
	}

	return id, nil
}

// Save persists the identity atomically. It fails only on unrecoverable
// filesystem failure, which the caller must treat as fatal; the node must not
// run with an identity it cannot guarantee was saved.
func (s *Store) Save(id *NodeIdentity) error {
	s.l.Lock()
	defer s.l.Unlock()

	return s.save(id)
}

// save writes to a temporary file in the same directory, syncs, then renames
// over the destination, so a crash mid-write never corrupts the previous
// valid record. Callers hold s.l.
func (s *Store) save(id *NodeIdentity) error {
	if id.NodeID == "" {
		return common.NewMinerErr(common.Persistence, "refusing to persist identity with empty node_id")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return common.NewMinerErr(common.Persistence, "creating identity dir: %v", err)
	}

	buf, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return common.NewMinerErr(common.Persistence, "encoding identity: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return common.NewMinerErr(common.Persistence, "creating temp identity file: %v", err)
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
		return common.NewMinerErr(common.Persistence, "writing identity file: %v", werr)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return common.NewMinerErr(common.Persistence, "publishing identity file: %v", err)
	}

	return nil
}
