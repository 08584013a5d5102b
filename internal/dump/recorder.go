package dump

import (
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"dumpgw/internal/exchange"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// captureRequest builds the request phase of a record. It only reads state
// net/http has already buffered and performs no I/O. A query string that
// url.ParseQuery rejects is still recorded; the parse error is kept in
// Request.QueryError.
func captureRequest(ex *exchange.Exchange, r *http.Request) *Record {
	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		query = lenientQuery(r.URL.RawQuery)
	}

	rec := &Record{
		ID:        uuid.New().String(),
		RequestID: r.Header.Get("X-Request-ID"),
		Start:     ex.Start(),
		Request: Request{
			URI:             r.URL.EscapedPath(),
			QueryString:     r.URL.RawQuery,
			Method:          r.Method,
			Protocol:        r.Proto,
			Scheme:          scheme(r),
			Host:            r.Host,
			RemoteAddr:      r.RemoteAddr,
			RemoteHost:      remoteHost(r.RemoteAddr),
			ServerPort:      serverPort(r),
			Secure:          r.TLS != nil,
			ContentLength:   r.ContentLength,
			ContentType:     r.Header.Get("Content-Type"),
			ContentEncoding: r.Header.Values("Content-Encoding"),
			Auth:            authOf(ex.SecurityContext()),
			Cookies:         requestCookies(r.Cookies()),
			Headers:         headerEntries(r.Header),
			Locales:         locales(r.Header.Get("Accept-Language")),
			Parameters:      parameters(query),
		},
	}
	if err != nil {
		rec.Request.QueryError = err.Error()
	}
	return rec
}

// lenientQuery splits on both '&' and ';' and keeps undecodable names and
// values as they were sent.
func lenientQuery(raw string) url.Values {
	q := url.Values{}
	for _, pair := range strings.FieldsFunc(raw, func(c rune) bool { return c == '&' || c == ';' }) {
		k, v, _ := strings.Cut(pair, "=")
		q.Add(unescapeOrRaw(k), unescapeOrRaw(v))
	}
	return q
}

func unescapeOrRaw(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// authOf returns nil when no security context exists yet.
func authOf(sc *exchange.SecurityContext) *Auth {
	if sc == nil {
		return nil
	}
	if !sc.IsAuthenticated() {
		return &Auth{Type: "none"}
	}
	return &Auth{Type: sc.MechanismName(), Principal: sc.Principal()}
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// serverPort prefers the local address of the accepting connection and
// falls back to the Host header, then to the scheme default.
func serverPort(r *http.Request) int {
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if tcp, ok := addr.(*net.TCPAddr); ok {
			return tcp.Port
		}
	}
	if _, port, err := net.SplitHostPort(r.Host); err == nil {
		if p, err := strconv.Atoi(port); err == nil {
			return p
		}
	}
	if r.TLS != nil {
		return 443
	}
	return 80
}

// requestCookies keeps the first cookie of each name.
func requestCookies(in []*http.Cookie) []Cookie {
	out := make([]Cookie, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

func responseCookies(in []*http.Cookie) []Cookie {
	out := make([]Cookie, 0, len(in))
	for _, c := range in {
		out = append(out, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
	}
	return out
}

// headerEntries flattens h into one entry per value. Names are sorted since
// net/http does not keep arrival order; values keep theirs.
func headerEntries(h http.Header) []Header {
	names := make([]string, 0, len(h))
	n := 0
	for k, vs := range h {
		names = append(names, k)
		n += len(vs)
	}
	sort.Strings(names)
	out := make([]Header, 0, n)
	for _, k := range names {
		for _, v := range h[k] {
			out = append(out, Header{Name: k, Value: v})
		}
	}
	return out
}

func parameters(q url.Values) []Parameter {
	names := make([]string, 0, len(q))
	for k := range q {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]Parameter, 0, len(names))
	for _, k := range names {
		out = append(out, Parameter{Name: k, Values: q[k]})
	}
	return out
}

// locales returns the Accept-Language tags in preference order. Missing or
// malformed headers yield an empty list.
func locales(header string) []string {
	out := []string{}
	if header == "" {
		return out
	}
	tags, _, _ := language.ParseAcceptLanguage(header)
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}
