package bodytrace

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// DefaultEncoding is used when no encoding name is given
const DefaultEncoding = "UTF-8"

// NewTextReader decodes r from the named character encoding into runes.
// Names and aliases are resolved through the IANA charset registry, so
// "ISO-8859-1" is Latin-1 proper and a BOM-less "UTF-16" is big-endian.
func NewTextReader(r io.Reader, charset string) (io.RuneReader, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidArgument)
	}

	name := strings.TrimSpace(charset)
	if name == "" {
		name = DefaultEncoding
	}

	enc, err := LookupEncoding(name)
	if err != nil {
		return nil, err
	}

	return bufio.NewReaderSize(transform.NewReader(r, enc.NewDecoder()), BufferSize), nil
}

// LookupEncoding resolves an IANA charset name. Names the registry knows but
// x/text cannot decode are rejected like unknown ones.
func LookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidArgument, name)
	}
	return enc, nil
}
