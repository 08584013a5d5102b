// Package form parses urlencoded and multipart request bodies into an
// ordered structure and attaches it to the exchange for later inspection.
package form

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"dumpgw/internal/exchange"
)

// DataKey is the attachment key parsed form data is stored under.
var DataKey = exchange.NewKey[*Data]("form-data")

// Header is a single part header. Only the first value of each header is kept.
type Header struct {
	Name  string
	Value string
}

// Value is one value of a form field. File values never carry the uploaded
// content, only its size and name.
type Value struct {
	Value    string
	File     bool
	FileName string
	Size     int64
	Headers  []Header
}

// Data is parsed form content that remembers field declaration order.
type Data struct {
	order  []string
	values map[string][]Value
}

func newData() *Data {
	return &Data{values: make(map[string][]Value)}
}

func (d *Data) add(name string, v Value) {
	if _, ok := d.values[name]; !ok {
		d.order = append(d.order, name)
	}
	d.values[name] = append(d.values[name], v)
}

// Fields returns field names in the order they first appeared in the body.
func (d *Data) Fields() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Get returns the values of a field in body order.
func (d *Data) Get(name string) []Value {
	return d.values[name]
}

// Len returns the number of distinct fields.
func (d *Data) Len() int { return len(d.order) }

// FromExchange returns the form data attached to ex, if any.
func FromExchange(ex *exchange.Exchange) (*Data, bool) {
	d, ok := exchange.Attachment(ex, DataKey)
	return d, ok && d != nil
}

// ParseURLEncoded parses an application/x-www-form-urlencoded body.
func ParseURLEncoded(body string) (*Data, error) {
	d := newData()
	for body != "" {
		var pair string
		pair, body, _ = strings.Cut(body, "&")
		if pair == "" {
			continue
		}
		rawName, rawValue, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(rawName)
		if err != nil {
			return nil, fmt.Errorf("decode field name %q: %w", rawName, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("decode value of %q: %w", name, err)
		}
		d.add(name, Value{Value: value})
	}
	return d, nil
}

// ParseMultipart parses a multipart/form-data body. Text values larger than
// maxField bytes are rejected; file parts are drained and only measured.
func ParseMultipart(body []byte, boundary string, maxField int64) (*Data, error) {
	d := newData()
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return d, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}
		name := p.FormName()
		if name == "" {
			p.Close()
			continue
		}
		v := Value{Headers: partHeaders(p.Header)}
		if fn := p.FileName(); fn != "" {
			n, err := io.Copy(io.Discard, p)
			if err != nil {
				return nil, fmt.Errorf("read file part %q: %w", name, err)
			}
			v.File = true
			v.FileName = fn
			v.Size = n
		} else {
			b, err := io.ReadAll(io.LimitReader(p, maxField+1))
			if err != nil {
				return nil, fmt.Errorf("read part %q: %w", name, err)
			}
			if int64(len(b)) > maxField {
				return nil, fmt.Errorf("field %q exceeds %d bytes", name, maxField)
			}
			v.Value = string(b)
			v.Size = int64(len(b))
		}
		p.Close()
		d.add(name, v)
	}
}

func partHeaders(h textproto.MIMEHeader) []Header {
	if len(h) == 0 {
		return nil
	}
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]Header, 0, len(names))
	for _, k := range names {
		out = append(out, Header{Name: k, Value: h.Get(k)})
	}
	return out
}
