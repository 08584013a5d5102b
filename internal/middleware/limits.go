package middleware

import (
	"net/http"

	"dumpgw/internal/metrics"

	"github.com/rs/zerolog/log"
)

const (
	// MaxRequestSize limits request body size to 10MB
	MaxRequestSize = 10 * 1024 * 1024
)

// RequestSizeLimit enforces maximum request body size.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = MaxRequestSize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				log.Warn().
					Int64("content_length", r.ContentLength).
					Int64("max_size", maxBytes).
					Msg("request body too large")
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// CountRequests increments the gateway request counter.
func CountRequests(m *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.Requests.Inc()
			next.ServeHTTP(w, r)
		})
	}
}
