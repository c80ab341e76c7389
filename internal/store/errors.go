package store

import (
	"fmt"

	"github.com/ashureev/llama-relay/internal/domain"
)

// StorageError reports a failure reading or writing one transcript.
type StorageError struct {
	Key domain.SessionKey
	Op  string // "read", "decode", "encode", "write"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
