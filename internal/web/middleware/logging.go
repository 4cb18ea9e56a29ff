package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestLogger writes one structured log line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := zerolog.InfoLevel
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			level = zerolog.ErrorLevel
		case ww.Status() >= http.StatusBadRequest:
			level = zerolog.WarnLevel
		}

		event := log.WithLevel(level).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Int("response_bytes", ww.BytesWritten())
		if ownerID, ok := GetOwnerFromContext(r.Context()); ok {
			event = event.Int64("owner_id", ownerID)
		}
		event.Msg("http_request")
	})
}
