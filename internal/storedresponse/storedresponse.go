// Package storedresponse retains a copy of the response body on the
// exchange so completion listeners can inspect what was sent.
package storedresponse

import (
	"bytes"
	"io"
	"net/http"

	"dumpgw/internal/exchange"

	"github.com/felixge/httpsnoop"
)

// DefaultMaxBytes caps the retained body when Handler is given no limit.
const DefaultMaxBytes = 64 * 1024

// Buffer is the retained prefix of a response body.
type Buffer struct {
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func (b *Buffer) write(p []byte) {
	room := b.max - int64(b.buf.Len())
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return
	}
	if int64(len(p)) > room {
		p = p[:room]
		b.truncated = true
	}
	b.buf.Write(p)
}

// String returns the retained bytes.
func (b *Buffer) String() string { return b.buf.String() }

// Truncated reports whether the response was longer than the cap.
func (b *Buffer) Truncated() bool { return b.truncated }

var bufferKey = exchange.NewKey[*Buffer]("stored-response")

// Handler tees up to maxBytes of every response body into a Buffer attached
// to the exchange. Requests without an exchange pass through.
func Handler(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ex, ok := exchange.FromRequest(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			buf := &Buffer{max: maxBytes}
			exchange.Attach(ex, bufferKey, buf)

			tee := httpsnoop.Wrap(w, httpsnoop.Hooks{
				Write: func(write httpsnoop.WriteFunc) httpsnoop.WriteFunc {
					return func(p []byte) (int, error) {
						n, err := write(p)
						buf.write(p[:n])
						return n, err
					}
				},
				ReadFrom: func(readFrom httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
					return func(src io.Reader) (int64, error) {
						return readFrom(io.TeeReader(src, writerFunc(buf.write)))
					}
				},
			})
			next.ServeHTTP(tee, r)
		})
	}
}

type writerFunc func([]byte)

func (f writerFunc) Write(p []byte) (int, error) {
	f(p)
	return len(p), nil
}

// Lookup returns the buffer attached to ex by Handler.
func Lookup(ex *exchange.Exchange) (*Buffer, bool) {
	b, ok := exchange.Attachment(ex, bufferKey)
	return b, ok && b != nil
}

// Reader exposes stored bodies to completion listeners.
type Reader struct{}

// ReadStoredResponse returns the retained body and whether it was cut at the
// cap. ok is false when nothing was stored for the exchange.
func (Reader) ReadStoredResponse(ex *exchange.Exchange) (body string, truncated, ok bool) {
	b, found := Lookup(ex)
	if !found {
		return "", false, false
	}
	return b.String(), b.Truncated(), true
}
