// Package api provides the relay's admin HTTP surface: health, transcript
// inspection and a WebSocket ingress that speaks the datagram protocol.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/llama-relay/internal/health"
	"github.com/ashureev/llama-relay/internal/middleware"
	"github.com/ashureev/llama-relay/internal/relay"
	"github.com/ashureev/llama-relay/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Handler serves the admin API.
type Handler struct {
	repo    store.Repository
	checker *health.Checker
	relay   *relay.Handler
	logger  *slog.Logger

	// WebSocket sessions outlive http.Server.Shutdown once hijacked, so they
	// are tracked here and drained by Shutdown.
	wsMu       sync.Mutex
	wsClosed   bool
	wsSessions sync.WaitGroup
	wsCtx      context.Context
	wsCancel   context.CancelFunc
}

// NewHandler creates a Handler. checker and relayHandler may be nil, which
// disables the readiness route and the WebSocket ingress respectively.
func NewHandler(repo store.Repository, checker *health.Checker, relayHandler *relay.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	wsCtx, wsCancel := context.WithCancel(context.Background())
	return &Handler{
		repo:     repo,
		checker:  checker,
		relay:    relayHandler,
		logger:   logger,
		wsCtx:    wsCtx,
		wsCancel: wsCancel,
	}
}

// Shutdown stops accepting WebSocket sessions, ends idle ones, and waits for
// sessions with a request in flight to deliver their reply.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.wsMu.Lock()
	h.wsClosed = true
	h.wsMu.Unlock()
	h.wsCancel()

	done := make(chan struct{})
	go func() {
		h.wsSessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) trackSession() bool {
	h.wsMu.Lock()
	defer h.wsMu.Unlock()
	if h.wsClosed {
		return false
	}
	h.wsSessions.Add(1)
	return true
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	if h.checker != nil {
		r.Get("/health/ready", h.handleReady)
	}

	r.Route("/api/transcripts", func(r chi.Router) {
		r.Use(chiMiddleware.Logger)
		r.Get("/", h.handleListTranscripts)
		r.Get("/{key}", h.handleGetTranscript)
	})

	if h.relay != nil {
		r.Get("/ws", h.handleWebSocket)
	}

	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) handleReady(w http.ResponseWriter, _ *http.Request) {
	report := h.checker.Report()
	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, report)
}
