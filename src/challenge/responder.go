package challenge

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/remnetwork/dvm-miner/src/common"
	"github.com/remnetwork/dvm-miner/src/protocol"
	"github.com/remnetwork/dvm-miner/src/store"
	"github.com/sirupsen/logrus"
)

// Responder answers proof-of-capacity challenges from the current store
// contents.
type Responder struct {
	store  *store.Store
	logger *logrus.Entry

	// now is swappable in tests.
	now func() time.Time
}

// NewResponder ...
func NewResponder(s *store.Store, logger *logrus.Entry) *Responder {
	return &Responder{
		store:  s,
		logger: logger,
		now:    time.Now,
	}
}

// digestRecord is the canonical form of a sampled record inside the digest
// preimage.
type digestRecord struct {
	ID       string            `json:"id"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata"`
}

// digestPreimage is canonically encoded, so the digest is a deterministic
// function of the nonce and the sampled records.
type digestPreimage struct {
	Nonce   string         `json:"nonce"`
	Records []digestRecord `json:"records"`
}

// Digest computes the SHA256 digest over the nonce and the records, sorted
// by id. Computing it twice from the same state yields identical bytes.
func Digest(nonce string, records []store.Record) ([]byte, error) {
	sorted := make([]digestRecord, len(records))
	for i, rec := range records {
		sorted[i] = digestRecord{
			ID:       rec.ID,
			Vector:   rec.Vector,
			Metadata: rec.Metadata,
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	preimage, err := protocol.Marshal(&digestPreimage{
		Nonce:   nonce,
		Records: sorted,
	})
	if err != nil {
		return nil, err
	}

	hasher := sha256.New()
	hasher.Write(preimage)
	return hasher.Sum(nil), nil
}

// Respond samples the requested records in one consistent snapshot and
// builds the challenge response. Ids that are no longer held are reported in
// MissingIDs rather than failing silently. If the deadline has already
// elapsed when the response is ready, Respond returns a ChallengeMissed
// error and the response must not be transmitted.
func (r *Responder) Respond(ch *protocol.Challenge) (*protocol.ChallengeResponse, error) {
	start := r.now()

	records, missing := r.store.Sample(ch.SampleIDs)

	digest, err := Digest(ch.Nonce, records)
	if err != nil {
		return nil, err
	}

	done := r.now()
	deadline := time.UnixMilli(ch.DeadlineUnixMS)
	if done.After(deadline) {
		return nil, common.NewMinerErr(common.ChallengeMissed,
			"challenge %s response ready %v after deadline", ch.Nonce, done.Sub(deadline))
	}

	if len(missing) > 0 {
		r.logger.WithFields(logrus.Fields{
			"nonce":   ch.Nonce,
			"missing": len(missing),
		}).Warn("Challenge sampled absent records")
	}

	return &protocol.ChallengeResponse{
		Nonce:          ch.Nonce,
		Digest:         hex.EncodeToString(digest),
		MissingIDs:     missing,
		ResponseTimeMS: done.Sub(start).Milliseconds(),
	}, nil
}
