package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// maxRequestIDLen bounds client supplied ids; longer ones are replaced.
const maxRequestIDLen = 128

// RequestID ensures every request carries X-Request-ID and echoes it on the
// response. The dump record picks the id up from the request header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.New().String()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
