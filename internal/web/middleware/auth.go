package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type contextKey string

const ownerContextKey contextKey = "owner_id"

// RequireOwner is middleware that requires a valid owner bearer token
func RequireOwner(ts *TokenSigner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}

			ownerID, err := ts.Verify(token)
			if err != nil {
				log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("Rejected bearer token")
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(SetOwnerInContext(r.Context(), ownerID)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

// GetOwnerFromContext retrieves the authenticated owner id from the request context
func GetOwnerFromContext(ctx context.Context) (int64, bool) {
	ownerID, ok := ctx.Value(ownerContextKey).(int64)
	return ownerID, ok
}

// SetOwnerInContext adds an owner id to the context.
// This is primarily for testing - use RequireOwner middleware in production.
func SetOwnerInContext(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ownerContextKey, ownerID)
}

// MustGetOwner returns the authenticated owner or writes a 401 and returns false.
func MustGetOwner(ctx context.Context, w http.ResponseWriter) (int64, bool) {
	ownerID, ok := GetOwnerFromContext(ctx)
	if !ok {
		unauthorized(w)
		return 0, false
	}
	return ownerID, true
}
