package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/clauveo/internal/analysis"
	"github.com/kalambet/clauveo/internal/session"
	"github.com/kalambet/clauveo/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxMessageBodySize = 64 << 20 // 64MB, frames are inline base64
)

// AppDeps holds dependencies for the HTTP surface.
type AppDeps struct {
	Sessions     SessionService
	Assistant    AssistantService
	Analyzer     analysis.Analyzer
	Interactions InteractionStore
	Token        string
}

// NewAppHandler returns the HTTP API. Everything except /health requires the
// bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/session", handleSessionOp(deps.Sessions.Status))
		r.Post("/session/start", handleSessionOp(deps.Sessions.Start))
		r.Post("/session/stop", handleSessionOp(deps.Sessions.Stop))
		r.Post("/session/metadata", handleSubmitMetadata(deps))
		r.Post("/session/analyze", handleAnalyze(deps))
		r.Post("/session/error", handleMarkError(deps))
		r.Delete("/sessions/{id}/files", handleCleanup(deps))

		r.Post("/assistant/messages", handleSend(deps))
		r.Get("/assistant/available", handleAvailable(deps))

		r.Get("/interactions", handleListInteractions(deps))
		r.Get("/interactions/{id}", handleGetInteraction(deps))
		r.Delete("/interactions/{id}", handleDeleteInteraction(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSessionOp(op func() (session.RecordingSession, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := op()
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, s)
	}
}

func handleSubmitMetadata(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading request body: %v", err)
			return
		}

		s, err := deps.Sessions.SubmitMetadata(raw)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, s)
	}
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AnalyzeRequest
		if err := decodeOptional(r.Body, &req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		s, err := analyze(deps.Sessions, deps.Analyzer, req)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, s)
	}
}

func handleMarkError(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		s, err := deps.Sessions.MarkError(req.Message)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, s)
	}
}

func handleCleanup(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := deps.Assistant.Cleanup(chi.URLParam(r, "id"))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, map[string]string{"message": msg})
	}
}

func handleSend(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxMessageBodySize)
		defer r.Body.Close()

		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		reply, err := send(deps.Sessions, deps.Assistant, req)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, map[string]string{"response": reply})
	}
}

func handleAvailable(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"available": deps.Assistant.Available(),
			"strategy":  deps.Assistant.Strategy(),
		})
	}
}

func handleListInteractions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		interactions, err := deps.Interactions.ListInteractions(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}
		writeJSON(w, interactions)
	}
}

func handleGetInteraction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interaction, err := deps.Interactions.GetInteraction(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interaction: %v", err)
			return
		}
		writeJSON(w, interaction)
	}
}

func handleDeleteInteraction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Interactions.DeleteInteraction(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete interaction: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

// decodeOptional decodes a JSON body into v, treating an empty body as {}.
func decodeOptional(body io.Reader, v any) error {
	err := json.NewDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
