package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/llama-relay/internal/domain"
)

const (
	chatPath    = "/api/chat"
	versionPath = "/api/version"

	// maxResponseBytes bounds how much of a backend body is read.
	maxResponseBytes = 8 << 20
)

// OllamaConfig configures the Ollama client.
type OllamaConfig struct {
	BaseURL string
	Timeout time.Duration
	Policy  MalformedPolicy
}

// Ollama implements Client against an Ollama-compatible /api/chat endpoint.
type Ollama struct {
	httpClient *http.Client
	baseURL    string
	policy     MalformedPolicy
	logger     *slog.Logger
}

// NewOllama creates a client. A zero Timeout leaves requests bounded only
// by the caller's context.
func NewOllama(cfg OllamaConfig, logger *slog.Logger) *Ollama {
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyDegrade
	}
	return &Ollama{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		policy:     policy,
		logger:     logger,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []domain.Turn `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message *struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// Complete posts the conversation and returns the assistant reply.
func (c *Ollama) Complete(ctx context.Context, model string, turns []domain.Turn) (string, error) {
	if turns == nil {
		turns = []domain.Turn{}
	}
	body, err := json.Marshal(chatRequest{Model: model, Messages: turns, Stream: false})
	if err != nil {
		return "", unreachable(fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", unreachable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Sending chat request", "model", model, "turns", len(turns), "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", unreachable(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Failed to close backend response body", "error", closeErr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", unreachable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", unreachable(statusError(resp.StatusCode, raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", malformed(err)
	}

	if parsed.Message == nil || parsed.Message.Content == "" {
		if c.policy == PolicyFail {
			return "", malformed(errors.New("response has no message content"))
		}
		c.logger.Warn("Backend reply carried no message content, using placeholder", "model", model)
		return Placeholder, nil
	}

	return parsed.Message.Content, nil
}

// Ping queries the version endpoint.
func (c *Ollama) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+versionPath, nil)
	if err != nil {
		return unreachable(fmt.Errorf("build request: %w", err))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unreachable(err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return unreachable(fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

func statusError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("backend returned status %d: %s", status, payload.Error)
	}
	return fmt.Errorf("backend returned status %d", status)
}

// Ensure Ollama implements Client.
var _ Client = (*Ollama)(nil)
