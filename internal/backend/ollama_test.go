package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/llama-relay/internal/domain"
)

func newTestClient(t *testing.T, policy MalformedPolicy, handler http.HandlerFunc) *Ollama {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllama(OllamaConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, Policy: policy}, nil)
}

func TestCompleteSendsConversation(t *testing.T) {
	t.Parallel()

	var got chatRequest
	client := newTestClient(t, PolicyDegrade, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"fine"},"done":true}`))
	})

	turns := []domain.Turn{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
		{Role: domain.RoleUser, Content: "how are you"},
	}
	reply, err := client.Complete(context.Background(), "llama3.1", turns)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != "fine" {
		t.Fatalf("expected reply %q, got %q", "fine", reply)
	}
	if got.Model != "llama3.1" || got.Stream {
		t.Fatalf("unexpected request envelope: %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[2].Content != "how are you" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestCompleteUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewOllama(OllamaConfig{BaseURL: url, Timeout: time.Second}, nil)
	_, err := client.Complete(context.Background(), "m", nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if errors.Is(err, ErrMalformedResponse) {
		t.Fatal("unreachable error must not match ErrMalformedResponse")
	}
}

func TestCompleteNon2xxIsUnreachable(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, PolicyDegrade, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nope\" not found"}`))
	})

	_, err := client.Complete(context.Background(), "nope", nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	var backendErr *Error
	if !errors.As(err, &backendErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !strings.Contains(backendErr.Detail(), "404") || !strings.Contains(backendErr.Detail(), "not found") {
		t.Fatalf("detail should carry status and message: %q", backendErr.Detail())
	}
}

func TestCompleteInvalidJSONIsMalformed(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, PolicyDegrade, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})

	_, err := client.Complete(context.Background(), "m", nil)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestCompleteMissingContentDegrades(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, PolicyDegrade, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"done":true}`))
	})

	reply, err := client.Complete(context.Background(), "m", nil)
	if err != nil {
		t.Fatalf("expected degrade to succeed, got %v", err)
	}
	if reply != Placeholder {
		t.Fatalf("expected placeholder, got %q", reply)
	}
}

func TestCompleteMissingContentFails(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, PolicyFail, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":""}}`))
	})

	_, err := client.Complete(context.Background(), "m", nil)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestCompleteHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := newTestClient(t, PolicyDegrade, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, "m", nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable on timeout, got %v", err)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, PolicyDegrade, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/version" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"version":"0.3.0"}`))
	})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	if p, err := ParsePolicy("fail"); err != nil || p != PolicyFail {
		t.Fatalf("unexpected result: %v %v", p, err)
	}
	if _, err := ParsePolicy("retry"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
