package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubSchemaChecker struct {
	version string
	err     error
}

func (s stubSchemaChecker) SchemaVersion(ctx context.Context) (string, error) {
	return s.version, s.err
}

func decodeHealth(t *testing.T, recorder *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return result
}

func TestHealthHandler_NoChecker(t *testing.T) {
	recorder := httptest.NewRecorder()

	NewHealthHandler(nil).Get(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	if got := decodeHealth(t, recorder)["status"]; got != "ok" {
		t.Errorf("expected status 'ok', got '%s'", got)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	recorder := httptest.NewRecorder()
	checker := stubSchemaChecker{version: "001_images_and_groups.sql"}

	NewHealthHandler(checker).Get(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	result := decodeHealth(t, recorder)
	if result["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", result["status"])
	}
	if result["schema_version"] != "001_images_and_groups.sql" {
		t.Errorf("expected schema version, got '%s'", result["schema_version"])
	}
}

func TestHealthHandler_StoreUnavailable(t *testing.T) {
	recorder := httptest.NewRecorder()
	checker := stubSchemaChecker{err: errors.New("connection refused")}

	NewHealthHandler(checker).Get(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	if recorder.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 503")
	}
	if got := decodeHealth(t, recorder)["status"]; got != "unavailable" {
		t.Errorf("expected status 'unavailable', got '%s'", got)
	}
}
