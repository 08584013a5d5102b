package form

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"

	"dumpgw/internal/exchange"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxFieldSize caps a single non-file multipart value.
	DefaultMaxFieldSize = 1 << 20
)

// Options configures Parser.
type Options struct {
	// MaxFieldSize caps non-file multipart values. Zero selects DefaultMaxFieldSize.
	MaxFieldSize int64
}

// Parser returns a middleware that parses form bodies and attaches the
// result under DataKey. The body is buffered and restored so downstream
// handlers can still read it. Requests without an exchange, or without a
// form content type, pass through untouched.
func Parser(opts Options) func(http.Handler) http.Handler {
	maxField := opts.MaxFieldSize
	if maxField <= 0 {
		maxField = DefaultMaxFieldSize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ex, ok := exchange.FromRequest(r)
			if !ok || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || (mediaType != "application/x-www-form-urlencoded" && mediaType != "multipart/form-data") {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("form body read failed")
				http.Error(w, "unreadable request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var data *Data
			switch mediaType {
			case "multipart/form-data":
				boundary := params["boundary"]
				if boundary == "" {
					err = errors.New("multipart body without boundary")
					break
				}
				data, err = ParseMultipart(body, boundary, maxField)
			default:
				data, err = ParseURLEncoded(string(body))
			}
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("malformed form body")
				http.Error(w, "malformed form body", http.StatusBadRequest)
				return
			}
			exchange.Attach(ex, DataKey, data)
			next.ServeHTTP(w, r)
		})
	}
}
