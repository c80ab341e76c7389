// Package relay implements the request cycle that ties datagram input,
// session resolution, transcript storage and the chat backend together.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/netip"
	"unicode/utf8"

	"github.com/ashureev/llama-relay/internal/backend"
	"github.com/ashureev/llama-relay/internal/convlog"
	"github.com/ashureev/llama-relay/internal/domain"
	"github.com/ashureev/llama-relay/internal/session"
	"github.com/ashureev/llama-relay/internal/store"
)

// Fixed reply payloads. Clients match on these strings.
const (
	ReplyInvalidFormat = "Error: Invalid message format"
	ReplyInvalidJSON   = "Error: Invalid JSON format"

	unreachablePrefix = "Error executing curl command: "
	malformedPrefix   = "Failed to decode JSON: "
)

var (
	errInvalidJSON  = errors.New("payload is not valid JSON")
	errInvalidShape = errors.New("payload lacks topic or content")
)

// Handler runs one request from decoded payload to reply text.
type Handler struct {
	repo    store.Repository
	backend backend.Client
	model   string
	locks   *keyLocks
	convLog convlog.Logger
	logger  *slog.Logger
}

// NewHandler creates a Handler. convLog may be nil.
func NewHandler(repo store.Repository, client backend.Client, model string, convLog convlog.Logger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if convLog == nil {
		convLog, _ = convlog.New(convlog.Config{}, logger)
	}
	return &Handler{
		repo:    repo,
		backend: client,
		model:   model,
		locks:   newKeyLocks(),
		convLog: convLog,
		logger:  logger,
	}
}

// Handle processes one inbound payload from the given sender and returns the
// reply to send back. It never fails: every error becomes a reply string.
func (h *Handler) Handle(ctx context.Context, payload []byte, from netip.AddrPort) string {
	remote := from.String()
	h.logger.Info("Received message", "remote", remote, "bytes", len(payload))
	h.logger.Debug("Message payload", "remote", remote, "payload", string(payload))

	msg, err := decodeMessage(payload)
	switch {
	case errors.Is(err, errInvalidJSON):
		h.logger.Warn("Failed to decode message", "remote", remote)
		return ReplyInvalidJSON
	case err != nil:
		h.logger.Warn("Invalid message format", "remote", remote)
		return ReplyInvalidFormat
	}

	key := session.Resolve(from.Addr().Unmap().String(), int(from.Port()), msg.Topic)
	unlock := h.locks.lock(key)
	defer unlock()

	return h.exchange(ctx, key, remote, msg)
}

func (h *Handler) exchange(ctx context.Context, key domain.SessionKey, remote string, msg domain.InboundMessage) string {
	logger := h.logger.With("session_key", key, "remote", remote)

	transcript, err := h.repo.Load(ctx, key)
	if err != nil {
		logger.Warn("Failed to load transcript, starting empty", "error", err)
		transcript = domain.Transcript{}
	}

	transcript = transcript.Append(domain.RoleUser, msg.Content)
	h.convLog.Log(convlog.Event{
		SessionKey: string(key),
		Remote:     remote,
		Topic:      msg.Topic,
		EventType:  convlog.EventUserMessage,
		Content:    msg.Content,
	})

	reply, err := h.backend.Complete(ctx, h.model, transcript.Turns)
	if err != nil {
		text := backendErrorReply(err)
		logger.Error("Backend request failed", "error", err, "turns", transcript.Len())
		h.convLog.Log(convlog.Event{
			SessionKey: string(key),
			Remote:     remote,
			Topic:      msg.Topic,
			EventType:  convlog.EventError,
			Error:      text,
		})
		return text
	}

	transcript = transcript.Append(domain.RoleAssistant, reply)
	assistant, _ := transcript.Last()

	// A completed round trip is persisted even if the relay is shutting down.
	if err := h.repo.Save(context.WithoutCancel(ctx), key, transcript); err != nil {
		logger.Error("Failed to save transcript", "error", err)
	} else {
		logger.Info("Transcript updated", "turns", transcript.Len())
	}

	h.convLog.Log(convlog.Event{
		SessionKey: string(key),
		Remote:     remote,
		Topic:      msg.Topic,
		EventType:  convlog.EventAssistantReply,
		Content:    assistant.Content,
	})
	return assistant.Content
}

// decodeMessage parses and validates an inbound payload.
func decodeMessage(payload []byte) (domain.InboundMessage, error) {
	if !utf8.Valid(payload) || !json.Valid(payload) {
		return domain.InboundMessage{}, errInvalidJSON
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		// Valid JSON that is not an object.
		return domain.InboundMessage{}, errInvalidShape
	}
	topic, _ := fields["topic"].(string)
	content, _ := fields["content"].(string)
	if topic == "" || content == "" {
		return domain.InboundMessage{}, errInvalidShape
	}
	return domain.InboundMessage{Topic: topic, Content: content}, nil
}

func backendErrorReply(err error) string {
	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		if backendErr.Kind == backend.KindMalformedResponse {
			return malformedPrefix + backendErr.Detail()
		}
		return unreachablePrefix + backendErr.Detail()
	}
	return unreachablePrefix + err.Error()
}
