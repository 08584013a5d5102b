package dump

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Format selects the serialized representation of a record.
type Format string

const (
	// FormatJSON is one compact JSON object followed by a newline.
	FormatJSON Format = "json"
	// FormatLegacy reproduces the historical `"key":"value",` dump text,
	// which is not valid JSON. Use it only for collectors that parse it.
	FormatLegacy Format = "legacy"
)

// ParseFormat validates a format name. The empty string selects FormatJSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatLegacy:
		return FormatLegacy, nil
	default:
		return "", fmt.Errorf("unknown dump format %q", s)
	}
}

// Encode serializes rec. The result always ends with a newline, which
// separates records in logs and streams.
func Encode(rec *Record, f Format) ([]byte, error) {
	switch f {
	case FormatLegacy:
		return encodeLegacy(rec), nil
	case FormatJSON, "":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(rec); err != nil {
			return nil, newError(CodeEncode, err, "encode record %s", rec.ID)
		}
		return buf.Bytes(), nil
	default:
		return nil, newError(CodeEncode, nil, "unknown format %q", f)
	}
}

type legacyWriter struct {
	bytes.Buffer
}

func (w *legacyWriter) pair(key, value string) {
	w.WriteString(`"`)
	w.WriteString(key)
	w.WriteString(`":"`)
	w.WriteString(value)
	w.WriteString(`",`)
}

func (w *legacyWriter) auth(a *Auth) {
	if a == nil {
		return
	}
	w.pair("authType", a.Type)
	if a.Type != "none" {
		w.pair("principle", a.Principal)
	}
}

func bracketed(values []string) string {
	if len(values) == 0 {
		return "null"
	}
	return "[" + strings.Join(values, ", ") + "]"
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

func encodeLegacy(rec *Record) []byte {
	var w legacyWriter
	req := &rec.Request
	var contentType []string
	if req.ContentType != "" {
		contentType = []string{req.ContentType}
	}

	w.WriteString("{")
	w.pair("URI", req.URI)
	w.pair("characterEncoding", bracketed(req.ContentEncoding))
	w.pair("contentLength", strconv.FormatInt(req.ContentLength, 10))
	w.pair("contentType", bracketed(contentType))
	w.auth(req.Auth)
	for _, c := range req.Cookies {
		w.pair("cookie", c.Name+"="+c.Value)
	}
	for _, h := range req.Headers {
		w.pair("header", h.Name+"="+h.Value)
	}
	w.pair("locale", "["+strings.Join(req.Locales, ", ")+"]")
	w.pair("method", req.Method)
	for _, p := range req.Parameters {
		w.pair("parameter", p.Name+"="+strings.Join(p.Values, ", "))
	}
	w.pair("protocol", req.Protocol)
	w.pair("queryString", req.QueryString)
	w.pair("remoteAddr", req.RemoteAddr)
	w.pair("remoteHost", req.RemoteHost)
	w.pair("scheme", req.Scheme)
	w.pair("host", req.Host)
	w.pair("serverPort", strconv.Itoa(req.ServerPort))
	w.pair("isSecure", strconv.FormatBool(req.Secure))

	if req.Body != nil {
		w.WriteString("body=\n")
		for _, f := range req.Body {
			w.WriteString(f.Name)
			w.WriteString("=")
			for _, v := range f.Values {
				w.WriteString(v.Value)
				w.WriteString("\n")
				if len(v.Headers) > 0 {
					w.WriteString("headers=\n")
					for _, h := range v.Headers {
						w.WriteString("\t" + h.Name + "=" + h.Value + "\n")
					}
				}
			}
		}
	}

	if resp := rec.Response; resp != nil {
		w.auth(resp.Auth)
		w.pair("contentLength", strconv.FormatInt(resp.ContentLength, 10))
		w.pair("contentType", orNull(resp.ContentType))
		for _, c := range resp.Cookies {
			w.pair("cookie", c.Name+"="+c.Value+"; domain="+orNull(c.Domain)+"; path="+orNull(c.Path))
		}
		for _, h := range resp.Headers {
			w.pair("header", h.Name+"="+h.Value)
		}
		w.pair("status", strconv.Itoa(resp.Status))
		if resp.Body != nil && (*resp.Body != "" || resp.BodyTruncated) {
			w.WriteString("body=\n")
			w.WriteString(*resp.Body)
		}
	}
	w.WriteString("}\n")
	return w.Bytes()
}
