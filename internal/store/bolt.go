package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ashureev/llama-relay/internal/domain"
	bolt "go.etcd.io/bbolt"
)

var transcriptsBucket = []byte("transcripts")

// boltRecord is the value stored under each session key.
type boltRecord struct {
	Turns     []domain.Turn `json:"turns"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BoltStore implements Repository on a single bbolt database file.
type BoltStore struct {
	db *bolt.DB
}

// NewBolt opens (or creates) the bbolt database at path.
func NewBolt(path string) (*BoltStore, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(transcriptsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Load reads the transcript for key.
func (s *BoltStore) Load(_ context.Context, key domain.SessionKey) (domain.Transcript, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(transcriptsBucket).Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return domain.Transcript{}, &StorageError{Key: key, Op: "read", Err: err}
	}
	if data == nil {
		return domain.Transcript{}, nil
	}

	var rec boltRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Transcript{}, &StorageError{Key: key, Op: "decode", Err: err}
	}
	return domain.Transcript{Turns: rec.Turns}, nil
}

// Save replaces the transcript for key in one update transaction.
func (s *BoltStore) Save(_ context.Context, key domain.SessionKey, transcript domain.Transcript) error {
	turns := transcript.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	data, err := json.Marshal(boltRecord{Turns: turns, UpdatedAt: time.Now()})
	if err != nil {
		return &StorageError{Key: key, Op: "encode", Err: err}
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(transcriptsBucket).Put([]byte(key), data)
	})
	if err != nil {
		return &StorageError{Key: key, Op: "write", Err: err}
	}
	return nil
}

// List summarises every transcript in the bucket, newest first.
func (s *BoltStore) List(_ context.Context) ([]domain.TranscriptSummary, error) {
	var summaries []domain.TranscriptSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(transcriptsBucket).ForEach(func(k, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				// Skip malformed entries instead of failing the whole listing.
				return nil
			}
			summaries = append(summaries, domain.TranscriptSummary{
				Key:       domain.SessionKey(k),
				Turns:     len(rec.Turns),
				UpdatedAt: rec.UpdatedAt,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Ping runs an empty read transaction.
func (s *BoltStore) Ping(_ context.Context) error {
	return s.db.View(func(*bolt.Tx) error { return nil })
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close bolt database: %w", err)
	}
	return nil
}
