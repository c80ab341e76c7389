// Package backend talks to the chat-completion service that produces
// assistant replies.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/llama-relay/internal/domain"
)

// Client sends a full conversation to the backend and returns the reply.
type Client interface {
	// Complete issues exactly one blocking request and returns the
	// assistant's reply text. Failures are *Error values.
	Complete(ctx context.Context, model string, turns []domain.Turn) (string, error)

	// Ping checks whether the backend is reachable.
	Ping(ctx context.Context) error
}

var (
	// ErrUnreachable means the request never produced a usable HTTP answer.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrMalformedResponse means the backend answered but the reply could
	// not be extracted.
	ErrMalformedResponse = errors.New("backend response malformed")
)

// Kind classifies a backend failure.
type Kind int

const (
	KindUnreachable Kind = iota + 1
	KindMalformedResponse
)

// Error is returned by Client implementations.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrUnreachable and ErrMalformedResponse.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

// Detail returns the underlying cause without the classification prefix.
func (e *Error) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *Error) sentinel() error {
	if e.Kind == KindMalformedResponse {
		return ErrMalformedResponse
	}
	return ErrUnreachable
}

func unreachable(err error) *Error {
	return &Error{Kind: KindUnreachable, Err: err}
}

func malformed(err error) *Error {
	return &Error{Kind: KindMalformedResponse, Err: err}
}

// MalformedPolicy decides what happens when the backend answers with valid
// JSON that carries no reply text.
type MalformedPolicy string

const (
	// PolicyDegrade substitutes Placeholder and treats the call as a success.
	PolicyDegrade MalformedPolicy = "degrade"
	// PolicyFail reports ErrMalformedResponse.
	PolicyFail MalformedPolicy = "fail"
)

// Placeholder is the reply used under PolicyDegrade.
const Placeholder = "No response received"

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (MalformedPolicy, error) {
	switch MalformedPolicy(s) {
	case PolicyDegrade, PolicyFail:
		return MalformedPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown malformed response policy %q (supported: degrade, fail)", s)
	}
}
