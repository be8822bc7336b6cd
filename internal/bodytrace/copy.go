package bodytrace

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// BufferSize is the capacity of the intermediate buffer used by the copy
// routines: 2048 runes for CopyChars, 2048 bytes for CopyBytes.
const BufferSize = 0x800

// CopyChars drains from into to and returns the number of runes copied.
//
// Runes are collected into a single reusable buffer and every filled chunk
// is written to the sink UTF-8 encoded. Copying stops at io.EOF.
func CopyChars(to io.Writer, from io.RuneReader) (int64, error) {
	if from == nil {
		return 0, fmt.Errorf("%w: nil source", ErrInvalidArgument)
	}
	if to == nil {
		return 0, fmt.Errorf("%w: nil sink", ErrInvalidArgument)
	}

	buf := make([]byte, 0, BufferSize*utf8.UTFMax)
	var total int64
	for {
		buf = buf[:0]
		n := 0
		var readErr error
		for n < BufferSize {
			r, _, err := from.ReadRune()
			if err != nil {
				readErr = err
				break
			}
			buf = utf8.AppendRune(buf, r)
			n++
		}

		if n > 0 {
			if err := writeFull(to, buf); err != nil {
				return total, err
			}
			total += int64(n)
		}

		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}

// CopyBytes drains from into to through a BufferSize byte buffer and returns
// the number of bytes copied.
func CopyBytes(to io.Writer, from io.Reader) (int64, error) {
	if from == nil {
		return 0, fmt.Errorf("%w: nil source", ErrInvalidArgument)
	}
	if to == nil {
		return 0, fmt.Errorf("%w: nil sink", ErrInvalidArgument)
	}

	buf := make([]byte, BufferSize)
	var total int64
	for {
		n, err := from.Read(buf)
		if n > 0 {
			if werr := writeFull(to, buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// ReadText collects everything from into a string.
func ReadText(from io.RuneReader) (string, error) {
	var sb strings.Builder
	if _, err := CopyChars(&sb, from); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeFull(to io.Writer, p []byte) error {
	n, err := to.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}
