package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/guided-traffic/http-body-tracer/internal/bodytrace"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestRepeatableBody_RewindAfterFullRead(t *testing.T) {
	body := NewRepeatableBody(io.NopCloser(strings.NewReader("hello world")))

	first, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(first))

	for i := 0; i < 2; i++ {
		again, err := io.ReadAll(body.Rewind())
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(again))
	}
	assert.Equal(t, len("hello world"), body.Buffered())
}

func TestRepeatableBody_RewindBeforeHandlerFinishes(t *testing.T) {
	input := strings.Repeat("0123456789", 1000)
	body := NewRepeatableBody(io.NopCloser(iotest.HalfReader(strings.NewReader(input))))

	head := make([]byte, 100)
	_, err := io.ReadFull(body, head)
	require.NoError(t, err)

	// the rewind pulls the rest of the body from the source
	replayed, err := io.ReadAll(body.Rewind())
	require.NoError(t, err)
	assert.Equal(t, input, string(replayed))

	// the handler continues where it stopped
	rest, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, input, string(head)+string(rest))
}

func TestRepeatableBody_ImplementsRewinder(t *testing.T) {
	var _ bodytrace.Rewinder = NewRepeatableBody(http.NoBody)
}

func TestRepeatableBody_Close(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("payload")}
	body := NewRepeatableBody(src)

	require.NoError(t, body.Close())
	assert.False(t, src.closed, "source stays open until Dispose")

	_, err := body.Read(make([]byte, 4))
	assert.ErrorIs(t, err, ErrBodyClosed)

	replayed, err := io.ReadAll(body.Rewind())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(replayed))

	require.NoError(t, body.Dispose())
	assert.True(t, src.closed)
}

func TestRepeatableBody_ReadErrorIsSticky(t *testing.T) {
	boom := errors.New("client went away")
	body := NewRepeatableBody(io.NopCloser(io.MultiReader(strings.NewReader("par"), iotest.ErrReader(boom))))

	_, err := io.ReadAll(body)
	assert.ErrorIs(t, err, boom)

	replayed, err := io.ReadAll(body.Rewind())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "par", string(replayed))
}

func TestBodyBuffer_Middleware(t *testing.T) {
	logrus.SetLevel(logrus.ErrorLevel)
	src := &closeRecorder{Reader: strings.NewReader("buffered")}

	var seenType interface{}
	var seen string
	handler := NewBodyBuffer(logrus.WithField("component", "test")).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenType = r.Body
			b, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			seen = string(b)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Body = src
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.IsType(t, &RepeatableBody{}, seenType)
	assert.Equal(t, "buffered", seen)
	assert.True(t, src.closed)
}
