// Package store persists conversation transcripts keyed by session.
package store

import (
	"context"
	"fmt"

	"github.com/ashureev/llama-relay/internal/domain"
)

// Repository defines the interface for persisting transcripts.
type Repository interface {
	// Load returns the stored transcript for key, or an empty transcript if
	// none exists. When a record exists but cannot be read, Load returns an
	// empty transcript together with a *StorageError so callers can degrade.
	Load(ctx context.Context, key domain.SessionKey) (domain.Transcript, error)

	// Save replaces the stored transcript for key.
	Save(ctx context.Context, key domain.SessionKey, transcript domain.Transcript) error

	// List returns a summary of every stored transcript, newest first.
	List(ctx context.Context) ([]domain.TranscriptSummary, error)

	// Ping verifies the storage medium is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Options selects and configures a Repository implementation.
type Options struct {
	Driver string
	Dir    string // file driver
	DBPath string // sqlite and bolt drivers
}

// Open creates the repository named by opts.Driver.
func Open(opts Options) (Repository, error) {
	var (
		repo Repository
		err  error
	)
	switch opts.Driver {
	case DriverFile, "":
		repo, err = NewFileStore(opts.Dir)
	case DriverSQLite:
		repo, err = NewSQLite(opts.DBPath)
	case DriverBolt:
		repo, err = NewBolt(opts.DBPath)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s (supported: file, sqlite, bolt)", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}
