package codec

import (
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnknownEncoding is returned by LookupText for unsupported charset names.
var ErrUnknownEncoding = errors.New("codec: unknown text encoding")

// Text converts between Go strings and stored bytes under a named charset.
// The zero value is not usable; use UTF8 or LookupText.
type Text struct {
	name string
	enc  encoding.Encoding
}

// UTF8 is the default text encoding.
var UTF8 = &Text{name: "utf-8", enc: unicode.UTF8}

// LookupText resolves a charset name such as "UTF-8", "ISO-8859-1" or "Shift_JIS".
func LookupText(name string) (*Text, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return nil, errors.Wrap(ErrUnknownEncoding, "empty name")
	}
	if strings.EqualFold(n, "utf-8") || strings.EqualFold(n, "utf8") {
		return UTF8, nil
	}
	if enc, err := htmlindex.Get(n); err == nil {
		canonical, _ := htmlindex.Name(enc)
		return &Text{name: canonical, enc: enc}, nil
	}
	enc, err := ianaindex.IANA.Encoding(n)
	if err != nil || enc == nil {
		return nil, errors.Wrapf(ErrUnknownEncoding, "%q", name)
	}
	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canonical = strings.ToLower(n)
	}
	return &Text{name: canonical, enc: enc}, nil
}

// Name returns the canonical charset name.
func (t *Text) Name() string { return t.name }

// Encode converts s to bytes in this charset.
func (t *Text) Encode(s string) ([]byte, error) {
	if t == UTF8 {
		return []byte(s), nil
	}
	b, err := t.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", t.name)
	}
	return b, nil
}

// Decode converts b from this charset into a Go string.
func (t *Text) Decode(b []byte) (string, error) {
	if t == UTF8 {
		return string(b), nil
	}
	out, err := t.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrapf(err, "decode %s", t.name)
	}
	return string(out), nil
}
