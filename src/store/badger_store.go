package store

import (
	"bytes"
	"os"
	"sort"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const recordPrefix = "record"

// BadgerBackend mirrors store writes into a Badger database so that the
// record payloads survive a restart. It is enabled with the --store flag,
// analogous to running with a persistent rather than in-memory database.
type BadgerBackend struct {
	db     *badger.DB
	logger *logrus.Entry
}

// LoadOrCreateBadger opens (or creates) the database at path, loads any
// previously persisted records into a fresh capacity-bounded store, and wires
// the database in as the store's write-through backend. Records that no
// longer fit the commitment, for example after the commitment was lowered by
// hand, are dropped from the database with a warning.
func LoadOrCreateBadger(commitmentBytes int64, path string, logger *logrus.Entry) (*Store, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	backend := &BadgerBackend{
		db:     db,
		logger: logger,
	}

	s := New(commitmentBytes, logger)

	recs, err := backend.allRecords()
	if err != nil {
		db.Close()
		return nil, err
	}

	var dropped []string
	for _, rec := range recs {
		if !s.restore(rec) {
			dropped = append(dropped, rec.ID)
		}
	}
	for _, id := range dropped {
		if err := backend.DeleteRecord(id); err != nil && logger != nil {
			logger.WithField("id", id).WithError(err).Error("Dropping over-budget record")
		}
	}
	if len(dropped) > 0 && logger != nil {
		logger.WithField("count", len(dropped)).Warn("Dropped persisted records exceeding commitment")
	}

	s.backend = backend

	return s, nil
}

// restore loads a persisted record directly, keeping its original insertion
// sequence so that search tie-breaking is stable across restarts. It returns
// false when the record no longer fits the commitment.
func (s *Store) restore(rec *Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bytesUsed+rec.SizeBytes > s.commitment {
		return false
	}

	normed, _ := NormalizeL2Copy(rec.Vector)

	s.bytesUsed += rec.SizeBytes
	s.records[rec.ID] = rec
	s.normed[rec.ID] = normed
	if rec.InsertedAt > s.seq {
		s.seq = rec.InsertedAt
	}

	return true
}

func recordKey(id string) []byte {
	return append([]byte(recordPrefix), []byte(id)...)
}

func marshalRecord(rec *Record) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func unmarshalRecord(data []byte) (*Record, error) {
	rec := new(Record)
	jh := new(codec.JsonHandle)
	dec := codec.NewDecoder(bytes.NewBuffer(data), jh)
	if err := dec.Decode(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutRecord implements Backend.
func (b *BadgerBackend) PutRecord(rec *Record) error {
	val, err := marshalRecord(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.ID), val)
	})
}

// DeleteRecord implements Backend.
func (b *BadgerBackend) DeleteRecord(id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(recordKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// allRecords returns every persisted record, sorted by insertion sequence.
func (b *BadgerBackend) allRecords() ([]*Record, error) {
	var recs []*Record

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := unmarshalRecord(val)
				if err != nil {
					return err
				}
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].InsertedAt < recs[j].InsertedAt
	})

	return recs, nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
