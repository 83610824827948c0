package store

import (
	"sort"
	"sync"

	"github.com/remnetwork/dvm-miner/src/common"
	"github.com/sirupsen/logrus"
)

// Record is a stored vector with its accounting data. Records are never
// mutated in place; replacing a record means deleting and re-inserting it,
// which keeps the byte accounting trivial.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]string

	// SizeBytes is derived from the record contents, see RecordSize.
	SizeBytes int64

	// InsertedAt is a monotonic sequence number assigned by the store. It
	// breaks distance ties in search results.
	InsertedAt uint64
}

// RecordSize is the capacity-accounting formula, applied consistently to
// every insert: 4 bytes per vector component, plus the byte length of the id,
// plus the byte lengths of all metadata keys and values.
func RecordSize(id string, vector []float32, metadata map[string]string) int64 {
	size := int64(4*len(vector)) + int64(len(id))
	for k, v := range metadata {
		size += int64(len(k) + len(v))
	}
	return size
}

// SearchResult is one entry of a similarity search, ordered by non-decreasing
// cosine distance to the query.
type SearchResult struct {
	ID       string
	Distance float32
}

// Stats summarises the store contents.
type Stats struct {
	Records         int   `json:"records"`
	BytesUsed       int64 `json:"bytes_used"`
	CommitmentBytes int64 `json:"commitment_bytes"`
}

// Backend mirrors committed writes to durable storage. Failures are logged
// and never fail the in-memory operation.
type Backend interface {
	PutRecord(rec *Record) error
	DeleteRecord(id string) error
	Close() error
}

// Store is a capacity-bounded in-memory vector store with cosine-distance
// similarity search. The distance metric is fixed: vectors are L2-normalized
// on insert and compared with 1-dot. Many readers may search and sample
// concurrently; writers are serialized against each other and against the
// capacity accounting.
type Store struct {
	mu sync.RWMutex

	commitment int64
	bytesUsed  int64
	seq        uint64

	records map[string]*Record
	normed  map[string][]float32

	backend Backend
	logger  *logrus.Entry
}

// New returns an empty store bounded by commitmentBytes.
func New(commitmentBytes int64, logger *logrus.Entry) *Store {
	return &Store{
		commitment: commitmentBytes,
		records:    make(map[string]*Record),
		normed:     make(map[string][]float32),
		logger:     logger,
	}
}

// Insert adds a record, replacing any existing record with the same id. It
// fails with a CapacityExceeded error when the stored bytes plus the new
// record would exceed the commitment. Re-inserting an identical record is a
// no-op, so retries are idempotent.
func (s *Store) Insert(id string, vector []float32, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := RecordSize(id, vector, metadata)

	var replaced int64
	if old, ok := s.records[id]; ok {
		if sameContent(old, vector, metadata) {
			return nil
		}
		replaced = old.SizeBytes
	}

	if s.bytesUsed-replaced+size > s.commitment {
		return common.NewMinerErr(common.CapacityExceeded,
			"record %s (%d bytes) would exceed commitment of %d bytes (%d used)",
			id, size, s.commitment, s.bytesUsed-replaced)
	}

	vcopy := make([]float32, len(vector))
	copy(vcopy, vector)

	mcopy := make(map[string]string, len(metadata))
	for k, v := range metadata {
		mcopy[k] = v
	}

	normed, ok := NormalizeL2Copy(vcopy)
	if !ok && s.logger != nil {
		s.logger.WithField("id", id).Debug("Inserting zero-norm vector")
	}

	s.seq++
	rec := &Record{
		ID:         id,
		Vector:     vcopy,
		Metadata:   mcopy,
		SizeBytes:  size,
		InsertedAt: s.seq,
	}

	s.bytesUsed = s.bytesUsed - replaced + size
	s.records[id] = rec
	s.normed[id] = normed

	if s.backend != nil {
		if err := s.backend.PutRecord(rec); err != nil && s.logger != nil {
			s.logger.WithField("id", id).WithError(err).Error("Persisting record")
		}
	}

	return nil
}

// Delete removes a record if present. Deleting an absent id is a no-op, not
// an error.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return
	}

	s.bytesUsed -= rec.SizeBytes
	delete(s.records, id)
	delete(s.normed, id)

	if s.backend != nil {
		if err := s.backend.DeleteRecord(id); err != nil && s.logger != nil {
			s.logger.WithField("id", id).WithError(err).Error("Deleting persisted record")
		}
	}
}

// Search returns the k record ids with smallest cosine distance to query,
// ties broken by earliest insertion, then by id. It returns fewer than k
// results when the store holds fewer records, and nothing for a zero-norm
// query, whose direction is undefined under the cosine metric.
func (s *Store) Search(query []float32, k int) []SearchResult {
	if k <= 0 {
		return nil
	}

	qn, ok := NormalizeL2Copy(query)
	if !ok {
		return nil
	}

	s.mu.RLock()

	type scored struct {
		id         string
		insertedAt uint64
		distance   float32
	}

	candidates := make([]scored, 0, len(s.records))
	for id, rec := range s.records {
		if len(rec.Vector) != len(query) {
			continue
		}
		candidates = append(candidates, scored{
			id:         id,
			insertedAt: rec.InsertedAt,
			distance:   cosineDistance(qn, s.normed[id]),
		})
	}

	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		if candidates[i].insertedAt != candidates[j].insertedAt {
			return candidates[i].insertedAt < candidates[j].insertedAt
		}
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = SearchResult{ID: c.id, Distance: c.distance}
	}
	return results
}

// Sample returns copies of the currently held records matching the requested
// ids, and the ids that are not held. Both are taken under a single read lock
// so the result reflects one consistent snapshot.
func (s *Store) Sample(ids []string) ([]Record, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make([]Record, 0, len(ids))
	missing := []string{}

	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			missing = append(missing, id)
			continue
		}

		vcopy := make([]float32, len(rec.Vector))
		copy(vcopy, rec.Vector)

		mcopy := make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			mcopy[k] = v
		}

		found = append(found, Record{
			ID:         rec.ID,
			Vector:     vcopy,
			Metadata:   mcopy,
			SizeBytes:  rec.SizeBytes,
			InsertedAt: rec.InsertedAt,
		})
	}

	return found, missing
}

// Stats returns the current record count, bytes used and commitment.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Records:         len(s.records),
		BytesUsed:       s.bytesUsed,
		CommitmentBytes: s.commitment,
	}
}

// Manifest returns the sorted ids of all held records. The autosave snapshot
// persists ids only, not vector payloads, to bound snapshot cost.
func (s *Store) Manifest() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases the durable backend, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}

func sameContent(rec *Record, vector []float32, metadata map[string]string) bool {
	if len(rec.Vector) != len(vector) || len(rec.Metadata) != len(metadata) {
		return false
	}
	for i := range vector {
		if rec.Vector[i] != vector[i] {
			return false
		}
	}
	for k, v := range metadata {
		if rec.Metadata[k] != v {
			return false
		}
	}
	return true
}
