package middleware

import (
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/rs/zerolog/log"
)

// Logging writes one structured access line per request including request
// id, status, bytes and latency.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Info().Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", r.Header.Get("X-Request-ID")).
			Int("status", m.Code).
			Int64("received_bytes", r.ContentLength).
			Int64("sent_bytes", m.Written).
			Dur("latency", m.Duration).
			Msg("request completed")
	})
}
