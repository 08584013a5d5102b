package dump

import "time"

// FilePlaceholder replaces the content of uploaded files in records.
const FilePlaceholder = "[file-content]"

// Record is the structured dump of one exchange. Request is filled when the
// request enters the chain; Request.Body and Response are filled when the
// exchange completes.
type Record struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId,omitempty"`
	Start     time.Time `json:"start"`
	Duration  float64   `json:"durationMs"`
	Request   Request   `json:"request"`
	Response  *Response `json:"response,omitempty"`
}

type Request struct {
	URI             string      `json:"uri"`
	QueryString     string      `json:"queryString"`
	QueryError      string      `json:"queryError,omitempty"`
	Method          string      `json:"method"`
	Protocol        string      `json:"protocol"`
	Scheme          string      `json:"scheme"`
	Host            string      `json:"host"`
	RemoteAddr      string      `json:"remoteAddr"`
	RemoteHost      string      `json:"remoteHost"`
	ServerPort      int         `json:"serverPort"`
	Secure          bool        `json:"isSecure"`
	ContentLength   int64       `json:"contentLength"`
	ContentType     string      `json:"contentType,omitempty"`
	ContentEncoding []string    `json:"contentEncoding,omitempty"`
	Auth            *Auth       `json:"auth,omitempty"`
	Cookies         []Cookie    `json:"cookies"`
	Headers         []Header    `json:"headers"`
	Locales         []string    `json:"locales"`
	Parameters      []Parameter `json:"parameters"`
	Body            []FormField `json:"body,omitempty"`
}

type Response struct {
	Auth          *Auth    `json:"auth,omitempty"`
	Status        int      `json:"status"`
	ContentType   string   `json:"contentType,omitempty"`
	ContentLength int64    `json:"contentLength"`
	Cookies       []Cookie `json:"cookies"`
	Headers       []Header `json:"headers"`
	BytesSent     int64    `json:"bytesSent"`
	Body          *string  `json:"body,omitempty"`
	BodyTruncated bool     `json:"bodyTruncated,omitempty"`
	Aborted       bool     `json:"aborted,omitempty"`
}

// Auth is the authentication state at one point of the exchange. Principal
// is only set when Type is not "none".
type Auth struct {
	Type      string `json:"authType"`
	Principal string `json:"principal,omitempty"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

type Parameter struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type FormField struct {
	Name   string      `json:"name"`
	Values []FormValue `json:"values"`
}

// FormValue is one value of a form field; file uploads carry FilePlaceholder.
type FormValue struct {
	Value    string   `json:"value"`
	File     bool     `json:"file,omitempty"`
	FileName string   `json:"filename,omitempty"`
	Headers  []Header `json:"headers,omitempty"`
}
