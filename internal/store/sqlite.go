package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/llama-relay/internal/domain"
	"github.com/ashureev/llama-relay/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	sqliteMaxRetries = 3
	sqliteBaseDelay  = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS transcripts (
		session_key TEXT PRIMARY KEY,
		turns_json TEXT NOT NULL,
		turn_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_updated ON transcripts(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load retrieves the transcript for key.
func (s *SQLiteStore) Load(ctx context.Context, key domain.SessionKey) (domain.Transcript, error) {
	var turnsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT turns_json FROM transcripts WHERE session_key = ?`, string(key),
	).Scan(&turnsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transcript{}, nil
	}
	if err != nil {
		return domain.Transcript{}, &StorageError{Key: key, Op: "read", Err: err}
	}

	var turns []domain.Turn
	if err := json.Unmarshal([]byte(turnsJSON), &turns); err != nil {
		return domain.Transcript{}, &StorageError{Key: key, Op: "decode", Err: err}
	}
	return domain.Transcript{Turns: turns}, nil
}

// Save creates or replaces the transcript for key. SQLITE_BUSY errors are
// retried with exponential backoff (50ms, 100ms).
func (s *SQLiteStore) Save(ctx context.Context, key domain.SessionKey, transcript domain.Transcript) error {
	turns := transcript.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return &StorageError{Key: key, Op: "encode", Err: err}
	}

	err = shared.RetryOnConflict(ctx, sqliteMaxRetries, sqliteBaseDelay, func() error {
		return s.saveOnce(ctx, key, string(data), len(turns))
	})
	if err != nil {
		return &StorageError{Key: key, Op: "write", Err: err}
	}
	return nil
}

func (s *SQLiteStore) saveOnce(ctx context.Context, key domain.SessionKey, turnsJSON string, count int) error {
	query := `
	INSERT INTO transcripts (session_key, turns_json, turn_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(session_key) DO UPDATE SET
		turns_json = excluded.turns_json,
		turn_count = excluded.turn_count,
		updated_at = excluded.updated_at`

	now := time.Now().UnixNano()
	if _, err := s.db.ExecContext(ctx, query, string(key), turnsJSON, count, now, now); err != nil {
		return fmt.Errorf("upsert transcript: %w", err)
	}
	return nil
}

// List returns every stored transcript, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.TranscriptSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, turn_count, updated_at FROM transcripts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	var summaries []domain.TranscriptSummary
	for rows.Next() {
		var key string
		var count int
		var updatedAt int64
		if err := rows.Scan(&key, &count, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		summaries = append(summaries, domain.TranscriptSummary{
			Key:       domain.SessionKey(key),
			Turns:     count,
			UpdatedAt: time.Unix(0, updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcripts: %w", err)
	}
	return summaries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
