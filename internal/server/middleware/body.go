package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/guided-traffic/http-body-tracer/internal/monitoring"
	"github.com/sirupsen/logrus"
)

// ErrBodyClosed is returned when reading a RepeatableBody after Close
var ErrBodyClosed = errors.New("read on closed request body")

// RepeatableBody buffers every byte read from the wrapped body so the body
// can be replayed with Rewind. It is not safe for concurrent use, matching
// the single reader of a request body.
type RepeatableBody struct {
	src    io.ReadCloser
	buf    bytes.Buffer
	off    int
	err    error
	closed bool
}

// NewRepeatableBody wraps src
func NewRepeatableBody(src io.ReadCloser) *RepeatableBody {
	return &RepeatableBody{src: src}
}

// Read reads the body for the handler
func (b *RepeatableBody) Read(p []byte) (int, error) {
	if b.closed {
		return 0, ErrBodyClosed
	}
	n, err := b.readAt(p, b.off)
	b.off += n
	return n, err
}

// Close marks the body closed for the handler. The wrapped body stays open
// until Dispose so the body can still be rewound.
func (b *RepeatableBody) Close() error {
	b.closed = true
	return nil
}

// Rewind returns a reader over the whole body. Bytes the handler has not read
// yet are pulled from the wrapped body and kept for later readers.
func (b *RepeatableBody) Rewind() io.Reader {
	return &replayReader{body: b}
}

// Buffered returns the number of bytes held in memory
func (b *RepeatableBody) Buffered() int {
	return b.buf.Len()
}

// Dispose closes the wrapped body and releases the buffer
func (b *RepeatableBody) Dispose() error {
	b.closed = true
	b.buf = bytes.Buffer{}
	return b.src.Close()
}

func (b *RepeatableBody) readAt(p []byte, off int) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < b.buf.Len() {
		return copy(p, b.buf.Bytes()[off:]), nil
	}
	if b.err != nil {
		return 0, b.err
	}

	n, err := b.src.Read(p)
	b.buf.Write(p[:n])
	if err != nil {
		b.err = err
	}
	return n, err
}

type replayReader struct {
	body *RepeatableBody
	off  int
}

func (r *replayReader) Read(p []byte) (int, error) {
	n, err := r.body.readAt(p, r.off)
	r.off += n
	return n, err
}

// BodyBuffer replaces request bodies with a RepeatableBody
type BodyBuffer struct {
	logger *logrus.Entry
}

// NewBodyBuffer creates a new body buffering middleware
func NewBodyBuffer(logger *logrus.Entry) *BodyBuffer {
	return &BodyBuffer{
		logger: logger,
	}
}

// Middleware returns the HTTP middleware function
func (bb *BodyBuffer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}

		body := NewRepeatableBody(r.Body)
		r.Body = body

		defer func() {
			monitoring.RecordBufferedBytes(body.Buffered())
			if err := body.Dispose(); err != nil {
				bb.logger.WithError(err).Debug("Failed to close request body")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
