package api

import (
	"bytes"
	"net/http"
	"regexp"

	"github.com/ashureev/llama-relay/internal/domain"
	"github.com/ashureev/llama-relay/internal/export"
	"github.com/go-chi/chi/v5"
)

var sessionKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._%-]{1,512}$`)

func (h *Handler) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list transcripts", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list transcripts")
		return
	}
	if summaries == nil {
		summaries = []domain.TranscriptSummary{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"transcripts": summaries})
}

func (h *Handler) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !sessionKeyPattern.MatchString(key) {
		Error(w, http.StatusBadRequest, "invalid session key")
		return
	}

	exporter, err := export.NewExporter(r.URL.Query().Get("format"))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	transcript, err := h.repo.Load(r.Context(), domain.SessionKey(key))
	if err != nil {
		h.logger.Error("Failed to load transcript", "session_key", key, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if transcript.Len() == 0 {
		Error(w, http.StatusNotFound, "transcript not found")
		return
	}

	var buf bytes.Buffer
	if err := exporter.Export(export.Document{Key: domain.SessionKey(key), Turns: transcript.Turns}, &buf); err != nil {
		h.logger.Error("Failed to export transcript", "session_key", key, "error", err)
		Error(w, http.StatusInternalServerError, "failed to export transcript")
		return
	}
	w.Header().Set("Content-Type", exporter.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
