package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/clauveo/internal/bridge"
	"github.com/kalambet/clauveo/internal/session"
	"github.com/kalambet/clauveo/internal/staging"
	"github.com/kalambet/clauveo/internal/storage"
)

// errorStatus maps an operation error to an HTTP status and error type.
func errorStatus(err error) (int, string) {
	var (
		parseErr   *session.MetadataParseError
		scratchErr *staging.ScratchDirError
		spawnErr   *bridge.SpawnError
		exitErr    *bridge.ExitError
	)
	switch {
	case errors.As(err, &parseErr):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, session.ErrLockUnavailable):
		return http.StatusServiceUnavailable, "lock_unavailable"
	case errors.As(err, &scratchErr):
		return http.StatusInternalServerError, "scratch_error"
	case errors.As(err, &spawnErr):
		return http.StatusBadGateway, "spawn_error"
	case errors.As(err, &exitErr):
		return http.StatusBadGateway, "process_error"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "api_error"
}

func writeOpError(w http.ResponseWriter, err error) {
	code, errType := errorStatus(err)
	httpError(w, code, errType, "%s", err.Error())
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
