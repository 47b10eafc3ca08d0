// Package storage persists outcome history and prediction logs.
// It uses BoltDB as the underlying storage engine: one bucket of
// append-only outcome records keyed by a monotonic sequence, and one
// best-effort bucket of prediction logs for later analysis.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"ensemble-engine/internal/aggregate"
	"ensemble-engine/internal/game"
)

const (
	outcomesBucket    = "outcomes"
	predictionsBucket = "predictions"
)

// Store provides persistent storage backed by BoltDB.
type Store struct {
	db *bbolt.DB
}

// PredictionLog is one persisted consensus with its contributions.
type PredictionLog struct {
	ID        uint64                   `json:"id"`
	Consensus aggregate.Consensus      `json:"consensus"`
	Inputs    []aggregate.Contribution `json:"inputs"`
	Ts        time.Time                `json:"ts"`
}

// New opens the database under dataPath and creates the buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "ensemble-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(outcomesBucket)); err != nil {
			return fmt.Errorf("create outcomes bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// AppendOutcome writes one outcome record and returns its assigned ID.
// Records are keyed by the bucket sequence so insertion order is the
// chronological order.
func (s *Store) AppendOutcome(rec game.Record) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(outcomesBucket))

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		rec.ID = seq

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal outcome: %w", err)
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}
		id = seq
		return nil
	})
	return id, err
}

// FetchRecent returns up to n outcome records, most recent first.
func (s *Store) FetchRecent(n int) ([]game.Record, error) {
	if n <= 0 {
		return nil, nil
	}
	var records []game.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(outcomesBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < n; k, v = c.Prev() {
			var rec game.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// AppendPredictionLog writes one consensus log entry and returns its ID.
func (s *Store) AppendPredictionLog(consensus aggregate.Consensus, inputs []aggregate.Contribution) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		entry := PredictionLog{ID: seq, Consensus: consensus, Inputs: inputs, Ts: time.Now()}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal prediction log: %w", err)
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}
		id = seq
		return nil
	})
	return id, err
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
