package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const readinessTimeout = 2 * time.Second

// SchemaChecker reports the schema version of the backing store.
type SchemaChecker interface {
	SchemaVersion(ctx context.Context) (string, error)
}

// HealthHandler serves the public health endpoint.
type HealthHandler struct {
	checker SchemaChecker
}

// NewHealthHandler creates a health handler. A nil checker reports liveness only.
func NewHealthHandler(checker SchemaChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Get answers 200 when the store is reachable and migrated, 503 otherwise.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	version, err := h.checker.SchemaVersion(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Readiness check failed")
		w.Header().Set("Retry-After", retryAfterSeconds)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"schema_version": version,
	})
}
