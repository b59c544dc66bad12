// Package encoding normalizes model text to UTF-8 before parsing.
package encoding

import (
	"bytes"
	"errors"
	"fmt"

	xencoding "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoding errors.
var (
	ErrUnknownCharset = errors.New("unknown charset")
	ErrDecode         = errors.New("text decoding failed")
)

var boms = [][]byte{
	{0xEF, 0xBB, 0xBF}, // UTF-8
	{0xFE, 0xFF},       // UTF-16BE
	{0xFF, 0xFE},       // UTF-16LE
}

// HasBOM reports whether data starts with a UTF-8 or UTF-16 byte order mark.
func HasBOM(data []byte) bool {
	for _, bom := range boms {
		if bytes.HasPrefix(data, bom) {
			return true
		}
	}
	return false
}

// Lookup resolves a WHATWG charset label such as "euc-kr", "shift_jis" or
// "windows-1252".
func Lookup(charset string) (xencoding.Encoding, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharset, charset)
	}
	return enc, nil
}

// DecodeText returns data as UTF-8. A byte order mark always wins and is
// stripped. Without one, data is decoded from charset; an empty charset
// means the input is already UTF-8 and it is returned as is.
func DecodeText(data []byte, charset string) ([]byte, error) {
	var fallback transform.Transformer = transform.Nop
	switch {
	case charset != "":
		enc, err := Lookup(charset)
		if err != nil {
			return nil, err
		}
		fallback = enc.NewDecoder()
	case !HasBOM(data):
		return data, nil
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(fallback), data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}
