package bodytrace

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// FormURLEncoded is the only content type whose body is rendered from parsed parameters
const FormURLEncoded = "application/x-www-form-urlencoded"

// traceableMethods are the methods whose bodies are traced
var traceableMethods = map[string]struct{}{
	"PUT":  {},
	"POST": {},
}

// Strategy is the way a request body is obtained for tracing
type Strategy int

const (
	// StrategySkipped applies to methods whose body is not traced
	StrategySkipped Strategy = iota
	// StrategyParameters renders the parsed form parameters
	StrategyParameters
	// StrategyTestDouble reads the body of a test request directly
	StrategyTestDouble
	// StrategyRefused applies to one-shot bodies that must be left alone
	StrategyRefused
	// StrategyRawBody reads a repeatable body
	StrategyRawBody
)

func (s Strategy) String() string {
	switch s {
	case StrategyParameters:
		return "parameters"
	case StrategyTestDouble:
		return "test-double"
	case StrategyRefused:
		return "refused"
	case StrategyRawBody:
		return "raw-body"
	default:
		return "skipped"
	}
}

// IsTraceableMethod reports whether bodies of the given method are traced.
// The comparison is case-sensitive.
func IsTraceableMethod(method string) bool {
	_, ok := traceableMethods[method]
	return ok
}

// IsFormURLEncoded reports whether contentType is exactly FormURLEncoded
func IsFormURLEncoded(contentType string) bool {
	return contentType == FormURLEncoded
}

// SelectStrategy picks the extraction strategy for req
func SelectStrategy(req *Request) Strategy {
	switch {
	case !IsTraceableMethod(req.Method):
		return StrategySkipped
	case IsFormURLEncoded(req.ContentType):
		return StrategyParameters
	case req.Capability == CapabilityTestDouble:
		return StrategyTestDouble
	case req.Capability != CapabilityRepeatable:
		return StrategyRefused
	default:
		return StrategyRawBody
	}
}

// Extractor produces a textual rendition of request bodies for tracing
type Extractor struct {
	logger *logrus.Entry
}

// NewExtractor creates a new body extractor
func NewExtractor(logger *logrus.Entry) *Extractor {
	if logger == nil {
		logger = logrus.WithField("component", "body-extractor")
	}
	return &Extractor{
		logger: logger,
	}
}

// Extract returns the body of req as text decoded with encoding.
//
// ok is false when the body is not available under the tracing policy, which
// is not an error. A failure while reading the body is returned as a
// *ReadError; the body must be considered lost in that case.
func (e *Extractor) Extract(req *Request, encoding string) (string, bool, error) {
	if req == nil {
		return "", false, fmt.Errorf("%w: nil request", ErrInvalidArgument)
	}

	switch SelectStrategy(req) {
	case StrategyParameters:
		return FormatParams(req.Params), true, nil
	case StrategyTestDouble, StrategyRawBody:
		return readBody(req.Body, encoding)
	case StrategyRefused:
		e.logger.WithFields(logrus.Fields{
			"request_type": req.Kind,
			"url":          URLWithQuery(req.URL, req.RawQuery),
		}).Warn("Request body is not repeatable, skipping body trace. Enable body buffering to trace it")
		return "", false, nil
	default:
		return "", false, nil
	}
}

// FormatParams renders params as [k1=v1&k1=v2&k2=v3].
// Keys follow the iteration order of the map, which is unspecified.
func FormatParams(params url.Values) string {
	var sb strings.Builder
	sb.WriteString("[")
	first := true
	for key, values := range params {
		for _, value := range values {
			if !first {
				sb.WriteString("&")
			}
			first = false
			sb.WriteString(key)
			sb.WriteString("=")
			sb.WriteString(value)
		}
	}
	sb.WriteString("]")
	return sb.String()
}

func readBody(body io.Reader, encoding string) (string, bool, error) {
	if body == nil {
		return "", false, nil
	}
	if rewinder, ok := body.(Rewinder); ok {
		body = rewinder.Rewind()
	}

	text, err := NewTextReader(body, encoding)
	if err != nil {
		return "", false, err
	}

	s, err := ReadText(text)
	if err != nil {
		return "", false, &ReadError{Err: err}
	}
	return s, true, nil
}
