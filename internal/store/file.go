package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ashureev/llama-relay/internal/domain"
)

const transcriptExt = ".json"

// FileStore keeps one JSON document per session key in a directory. Each
// document is the bare array of turns, matching the layout earlier relay
// versions wrote.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a FileStore.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key domain.SessionKey) string {
	return filepath.Join(s.dir, string(key)+transcriptExt)
}

// Load reads the transcript for key.
func (s *FileStore) Load(_ context.Context, key domain.SessionKey) (domain.Transcript, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Transcript{}, nil
	}
	if err != nil {
		return domain.Transcript{}, &StorageError{Key: key, Op: "read", Err: err}
	}

	var turns []domain.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return domain.Transcript{}, &StorageError{Key: key, Op: "decode", Err: err}
	}
	return domain.Transcript{Turns: turns}, nil
}

// Save writes the transcript to a temporary file and renames it over the
// previous version.
func (s *FileStore) Save(_ context.Context, key domain.SessionKey, transcript domain.Transcript) error {
	turns := transcript.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	data, err := json.MarshalIndent(turns, "", "    ")
	if err != nil {
		return &StorageError{Key: key, Op: "encode", Err: err}
	}

	path := s.path(key)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return &StorageError{Key: key, Op: "write", Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return &StorageError{Key: key, Op: "write", Err: err}
	}
	return nil
}

// List summarises every transcript file in the directory.
func (s *FileStore) List(_ context.Context) ([]domain.TranscriptSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}

	summaries := make([]domain.TranscriptSummary, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != transcriptExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var turns []domain.Turn
		if err := json.Unmarshal(data, &turns); err != nil {
			slog.Debug("Skipping unreadable transcript", "file", name, "error", err)
			continue
		}
		summaries = append(summaries, domain.TranscriptSummary{
			Key:       domain.SessionKey(strings.TrimSuffix(name, transcriptExt)),
			Turns:     len(turns),
			UpdatedAt: info.ModTime(),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Ping checks that the directory is still present.
func (s *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat store directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store path %s is not a directory", s.dir)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
