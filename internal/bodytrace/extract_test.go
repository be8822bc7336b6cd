package bodytrace

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replayBody is a minimal Rewinder used in place of the buffering middleware
type replayBody struct {
	data []byte
	r    *bytes.Reader
}

func newReplayBody(s string) *replayBody {
	return &replayBody{data: []byte(s), r: bytes.NewReader([]byte(s))}
}

func (b *replayBody) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *replayBody) Close() error               { return nil }
func (b *replayBody) Rewind() io.Reader          { return bytes.NewReader(b.data) }

func newTestExtractor() (*Extractor, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	return NewExtractor(logrus.NewEntry(logger)), hook
}

// paramPairs splits a [k=v&...] rendering into its pairs
func paramPairs(t *testing.T, s string) []string {
	t.Helper()
	require.True(t, strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"), "not bracketed: %q", s)
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if inner == "" {
		return nil
	}
	return strings.Split(inner, "&")
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		expected Strategy
	}{
		{
			name:     "GET is skipped",
			req:      Request{Method: "GET", Capability: CapabilityRepeatable},
			expected: StrategySkipped,
		},
		{
			name:     "lowercase post is skipped",
			req:      Request{Method: "post", Capability: CapabilityRepeatable},
			expected: StrategySkipped,
		},
		{
			name:     "PATCH is skipped",
			req:      Request{Method: "PATCH", Capability: CapabilityRepeatable},
			expected: StrategySkipped,
		},
		{
			name:     "form body uses parameters",
			req:      Request{Method: "POST", ContentType: FormURLEncoded},
			expected: StrategyParameters,
		},
		{
			name:     "form with charset is not the form strategy",
			req:      Request{Method: "POST", ContentType: FormURLEncoded + "; charset=UTF-8", Capability: CapabilityRepeatable},
			expected: StrategyRawBody,
		},
		{
			name:     "test double is read directly",
			req:      Request{Method: "PUT", ContentType: "application/json", Capability: CapabilityTestDouble},
			expected: StrategyTestDouble,
		},
		{
			name:     "one-shot body is refused",
			req:      Request{Method: "POST", ContentType: "application/json"},
			expected: StrategyRefused,
		},
		{
			name:     "repeatable body is read",
			req:      Request{Method: "PUT", ContentType: "text/plain", Capability: CapabilityRepeatable},
			expected: StrategyRawBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SelectStrategy(&tt.req))
		})
	}
}

func TestExtract_UntracedMethods(t *testing.T) {
	extractor, hook := newTestExtractor()

	for _, method := range []string{"GET", "HEAD", "DELETE", "OPTIONS", "PATCH", "put", ""} {
		src := &countingReader{}
		req := &Request{
			Method:      method,
			ContentType: FormURLEncoded,
			Capability:  CapabilityRepeatable,
			Body:        src,
			Params:      url.Values{"a": {"1"}},
		}

		text, ok, err := extractor.Extract(req, "UTF-8")
		require.NoError(t, err, method)
		assert.False(t, ok, method)
		assert.Empty(t, text, method)
		assert.Equal(t, 0, src.reads, method)
	}
	assert.Empty(t, hook.AllEntries())
}

func TestExtract_FormParameters(t *testing.T) {
	extractor, _ := newTestExtractor()
	src := &countingReader{}
	req := &Request{
		Method:      "POST",
		ContentType: FormURLEncoded,
		Body:        src,
		Params: url.Values{
			"name": {"kim"},
			"tag":  {"a", "b"},
			"page": {"2"},
		},
	}

	text, ok, err := extractor.Extract(req, "UTF-8")
	require.NoError(t, err)
	require.True(t, ok)

	assert.ElementsMatch(t, []string{"name=kim", "tag=a", "tag=b", "page=2"}, paramPairs(t, text))
	assert.True(t, strings.Contains(text, "tag=a&tag=b"), "values of one key stay together: %s", text)
	assert.Equal(t, 0, src.reads)
}

func TestExtract_FormParametersEmpty(t *testing.T) {
	extractor, _ := newTestExtractor()
	req := &Request{Method: "PUT", ContentType: FormURLEncoded}

	text, ok, err := extractor.Extract(req, "UTF-8")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", text)
}

func TestExtract_RefusesOneShotBody(t *testing.T) {
	extractor, hook := newTestExtractor()
	src := &countingReader{}
	req := &Request{
		Method:      "POST",
		ContentType: "application/json",
		Body:        src,
		URL:         "http://x/y",
		RawQuery:    "a=1",
		Kind:        "*http.body",
	}

	text, ok, err := extractor.Extract(req, "UTF-8")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.Equal(t, 0, src.reads)

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "*http.body", entry.Data["request_type"])
	assert.Equal(t, "http://x/y?a=1", entry.Data["url"])
}

func TestExtract_RepeatableBody(t *testing.T) {
	extractor, hook := newTestExtractor()
	req := &Request{
		Method:      "POST",
		ContentType: "text/plain",
		Capability:  CapabilityRepeatable,
		Body:        newReplayBody("hello world"),
	}

	text, ok, err := extractor.Extract(req, "UTF-8")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello world", text)

	// a rewindable body yields the same text again
	text, ok, err = extractor.Extract(req, "UTF-8")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello world", text)

	assert.Empty(t, hook.AllEntries())
}

func TestExtract_Encoding(t *testing.T) {
	tests := []struct {
		encoding string
		body     []byte
		want     string
	}{
		{encoding: "ISO-8859-1", body: []byte{'n', 'a', 0xEF, 'v', 'e'}, want: "naïve"},
		{encoding: "ISO-8859-1", body: []byte{0x80, 0x9F}, want: "\u0080\u009f"},
		{encoding: "US-ASCII", body: []byte{'a', 0xE9}, want: "a\uFFFD"},
		{encoding: "UTF-16", body: []byte{0x00, 'h', 0x00, 'i'}, want: "hi"},
	}

	extractor, _ := newTestExtractor()
	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			req := &Request{
				Method:     "PUT",
				Capability: CapabilityRepeatable,
				Body:       bytes.NewReader(tt.body),
			}

			text, ok, err := extractor.Extract(req, tt.encoding)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestExtract_EmptyBody(t *testing.T) {
	extractor, _ := newTestExtractor()
	req := &Request{Method: "POST", Capability: CapabilityRepeatable, Body: strings.NewReader("")}

	text, ok, err := extractor.Extract(req, "UTF-8")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", text)
}

func TestExtract_NilBody(t *testing.T) {
	extractor, _ := newTestExtractor()

	for _, capability := range []Capability{CapabilityRepeatable, CapabilityTestDouble} {
		req := &Request{Method: "POST", Capability: capability}

		text, ok, err := extractor.Extract(req, "UTF-8")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, text)
	}
}

func TestExtract_ReadFailure(t *testing.T) {
	extractor, _ := newTestExtractor()
	boom := errors.New("connection reset by peer")
	req := &Request{
		Method:     "POST",
		Capability: CapabilityRepeatable,
		Body:       io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(boom)),
	}

	text, ok, err := extractor.Extract(req, "UTF-8")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Empty(t, text)

	assert.ErrorIs(t, err, ErrBodyRead)
	assert.ErrorIs(t, err, boom)

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Contains(t, readErr.Error(), "connection reset by peer")
}

func TestExtract_UnknownEncoding(t *testing.T) {
	extractor, _ := newTestExtractor()
	req := &Request{Method: "POST", Capability: CapabilityRepeatable, Body: strings.NewReader("x")}

	_, ok, err := extractor.Extract(req, "klingon-8")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.NotErrorIs(t, err, ErrBodyRead)
}

func TestExtract_NilRequest(t *testing.T) {
	extractor, _ := newTestExtractor()

	_, ok, err := extractor.Extract(nil, "UTF-8")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestExtract_FromHTTPTestDouble(t *testing.T) {
	extractor, hook := newTestExtractor()
	r := WithTestDouble(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"id":7}`)))
	r.Header.Set("Content-Type", "application/json")

	text, ok, err := extractor.Extract(FromHTTP(r), "UTF-8")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":7}`, text)
	assert.Empty(t, hook.AllEntries())
}

func TestFormatParams(t *testing.T) {
	assert.Equal(t, "[]", FormatParams(nil))
	assert.Equal(t, "[a=1]", FormatParams(url.Values{"a": {"1"}}))
	assert.Equal(t, "[a=1&a=2]", FormatParams(url.Values{"a": {"1", "2"}}))
	assert.Equal(t, "[b=]", FormatParams(url.Values{"b": {""}}))

	pairs := paramPairs(t, FormatParams(url.Values{"a": {"1"}, "b": {"2", "3"}, "c": nil}))
	assert.ElementsMatch(t, []string{"a=1", "b=2", "b=3"}, pairs)
}
