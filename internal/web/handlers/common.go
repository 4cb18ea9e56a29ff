package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-groups/internal/cluster"
	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/kozaktomas/photo-groups/internal/similar"
	"github.com/rs/zerolog/log"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// retryAfterSeconds is sent with 503 responses for retryable failures.
const retryAfterSeconds = "30"

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Debug().Err(err).Msg("Failed to write response")
		}
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors to HTTP status codes.
// resource names the thing that was looked up, for 404 messages.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, resource string) {
	switch {
	case errors.Is(err, cluster.ErrInvalidParameter):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, resource+" not found")
	case errors.Is(err, similar.ErrTimeout), errors.Is(err, similar.ErrPersistenceConflict):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Retryable failure")
		w.Header().Set("Retry-After", retryAfterSeconds)
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseIDParam reads a positive integer URL parameter.
func parseIDParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
