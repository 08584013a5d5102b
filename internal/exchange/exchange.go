// Package exchange models a single in-flight HTTP request/response pair for
// handlers that need to observe the response after it is determined.
//
// An Exchange is created by Handler, travels in the request context, and
// fires its completion listeners exactly once when the wrapped handler
// returns, panics, or the client goes away.
package exchange

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
)

type ctxKey struct{}

// Exchange holds the request, the wrapped response writer and the state
// collaborators attach to it. It is owned by the request goroutine and is
// not safe for concurrent use.
type Exchange struct {
	request *http.Request
	writer  http.ResponseWriter
	header  func() http.Header

	start       time.Time
	status      int
	wroteHeader bool
	written     int64
	aborted     bool

	security    *SecurityContext
	attachments map[any]any
	listeners   []CompletionListener
	completed   bool
}

func newExchange(w http.ResponseWriter, r *http.Request) *Exchange {
	ex := &Exchange{
		request:     r,
		header:      w.Header,
		start:       time.Now(),
		attachments: make(map[any]any),
	}
	ex.writer = httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				if !ex.wroteHeader {
					ex.status = code
					ex.wroteHeader = true
				}
				next(code)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				ex.markWritten()
				n, err := next(b)
				ex.written += int64(n)
				return n, err
			}
		},
		ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				ex.markWritten()
				n, err := next(src)
				ex.written += n
				return n, err
			}
		},
	})
	return ex
}

func (ex *Exchange) markWritten() {
	if !ex.wroteHeader {
		ex.status = http.StatusOK
		ex.wroteHeader = true
	}
}

// FromContext returns the exchange stored in ctx by Handler.
func FromContext(ctx context.Context) (*Exchange, bool) {
	ex, ok := ctx.Value(ctxKey{}).(*Exchange)
	return ex, ok
}

// FromRequest is shorthand for FromContext(r.Context()).
func FromRequest(r *http.Request) (*Exchange, bool) {
	return FromContext(r.Context())
}

// Request returns the request the exchange was created for.
func (ex *Exchange) Request() *http.Request { return ex.request }

// Start returns the time the exchange was created.
func (ex *Exchange) Start() time.Time { return ex.start }

// StatusCode returns the response status. Until the handler writes anything
// it reports 200, which is what net/http sends for an empty response.
func (ex *Exchange) StatusCode() int {
	if !ex.wroteHeader {
		return http.StatusOK
	}
	return ex.status
}

// BytesWritten returns the number of body bytes written so far.
func (ex *Exchange) BytesWritten() int64 { return ex.written }

// ResponseHeader returns the live response header map.
func (ex *Exchange) ResponseHeader() http.Header { return ex.header() }

// ResponseContentLength returns the Content-Length response header when it
// is set and valid, otherwise the number of body bytes written.
func (ex *Exchange) ResponseContentLength() int64 {
	if v := ex.header().Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return ex.written
}

// ResponseCookies parses the Set-Cookie headers currently on the response.
// Malformed entries are skipped.
func (ex *Exchange) ResponseCookies() []*http.Cookie {
	lines := ex.header().Values("Set-Cookie")
	cookies := make([]*http.Cookie, 0, len(lines))
	for _, line := range lines {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		cookies = append(cookies, c)
	}
	return cookies
}

// Aborted reports whether the handler panicked or the client disconnected
// before the handler returned.
func (ex *Exchange) Aborted() bool { return ex.aborted }

// SecurityContext returns the security context established for the exchange,
// or nil when no authentication stage has run yet.
func (ex *Exchange) SecurityContext() *SecurityContext { return ex.security }

// SetSecurityContext installs sc as the exchange's security context.
func (ex *Exchange) SetSecurityContext(sc *SecurityContext) { ex.security = sc }
