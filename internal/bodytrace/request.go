package bodytrace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Capability describes whether a request body may be read by the tracer
type Capability int

const (
	// CapabilityNone means the body is a one-shot stream
	CapabilityNone Capability = iota
	// CapabilityRepeatable means the body was buffered and can be read again
	CapabilityRepeatable
	// CapabilityTestDouble marks requests built by tests, whose bodies are safe to read
	CapabilityTestDouble
)

func (c Capability) String() string {
	switch c {
	case CapabilityRepeatable:
		return "repeatable"
	case CapabilityTestDouble:
		return "test-double"
	default:
		return "none"
	}
}

// Rewinder is implemented by request bodies that buffer what they read.
// Rewind returns a reader positioned at the first byte of the body.
type Rewinder interface {
	Rewind() io.Reader
}

// Request is the view of an inbound HTTP request the extraction policy works on.
// It is owned by the caller and never retained.
type Request struct {
	Method      string
	ContentType string // empty when the header is absent
	Capability  Capability

	// Body is nil when the request carries no body stream. When it implements
	// Rewinder every raw read starts from a fresh rewind.
	Body io.Reader

	// Params holds the parsed query and form values
	Params url.Values

	URL      string // scheme://host/path, without the query string
	RawQuery string // empty when there is no query string

	// Kind names the runtime type of the body source, for diagnostics only
	Kind string
}

type testDoubleKey struct{}

// WithTestDouble marks r as a request built by a test harness. The tracer
// reads bodies of marked requests directly.
func WithTestDouble(r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), testDoubleKey{}, true))
}

// IsTestDouble reports whether the request was marked with WithTestDouble
func IsTestDouble(r *http.Request) bool {
	marked, _ := r.Context().Value(testDoubleKey{}).(bool)
	return marked
}

// FromHTTP builds a Request from r.
//
// Form values that have not been parsed yet are only parsed when the body
// can be rewound, so a one-shot body is never consumed here. A repeatable
// body is restored after parsing. A form-encoded test double body is read
// into memory once and replaced by a rewindable copy.
func FromHTTP(r *http.Request) *Request {
	req := &Request{
		Method:      r.Method,
		ContentType: r.Header.Get("Content-Type"),
		URL:         RequestURL(r),
		RawQuery:    r.URL.RawQuery,
		Kind:        fmt.Sprintf("%T", r.Body),
	}

	rewinder, repeatable := r.Body.(Rewinder)
	switch {
	case IsTestDouble(r):
		req.Capability = CapabilityTestDouble
	case repeatable:
		req.Capability = CapabilityRepeatable
	}

	req.Params = formValues(r, rewinder)
	if r.Body != nil {
		req.Body = r.Body
	}
	return req
}

func formValues(r *http.Request, rewinder Rewinder) url.Values {
	if r.Form != nil {
		return r.Form
	}
	if rewinder == nil && r.Body != nil && IsTestDouble(r) && IsFormURLEncoded(r.Header.Get("Content-Type")) {
		rewinder = bufferTestDouble(r)
	}
	if rewinder == nil || !IsFormURLEncoded(r.Header.Get("Content-Type")) {
		return r.URL.Query()
	}

	body := r.Body
	r.Body = io.NopCloser(rewinder.Rewind())
	// a malformed body still leaves the values parsed so far in r.Form
	_ = r.ParseForm()
	r.Body = body

	return r.Form
}

// memoryBody holds a test double body that was read ahead for form parsing
type memoryBody struct {
	*bytes.Reader
	io.Closer
	data []byte
}

func (b *memoryBody) Rewind() io.Reader {
	return bytes.NewReader(b.data)
}

type failingReader struct {
	err error
}

func (f failingReader) Read([]byte) (int, error) {
	return 0, f.err
}

// bufferTestDouble swaps r.Body for an in-memory copy. On a read failure the
// body replays what was read followed by the failure, and nil is returned.
func bufferTestDouble(r *http.Request) Rewinder {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(data), failingReader{err}), r.Body}
		return nil
	}

	body := &memoryBody{Reader: bytes.NewReader(data), Closer: r.Body, data: data}
	r.Body = body
	return body
}

// RequestURL reconstructs the URL the client used, without the query string
func RequestURL(r *http.Request) string {
	if r.URL.IsAbs() {
		u := *r.URL
		u.RawQuery = ""
		u.Fragment = ""
		return u.String()
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	var sb strings.Builder
	sb.Grow(128)
	sb.WriteString(scheme)
	sb.WriteString("://")
	sb.WriteString(r.Host)
	sb.WriteString(r.URL.EscapedPath())
	return sb.String()
}

// URLWithQuery appends "?" and the query string to requestURL when query is not empty
func URLWithQuery(requestURL, query string) string {
	if query == "" {
		return requestURL
	}
	return requestURL + "?" + query
}
