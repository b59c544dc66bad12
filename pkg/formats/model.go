// Model format dispatch: hint resolution, parse and encode entry points.
package formats

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/Faultbox/meshslim/pkg/mesh"
)

// Parse errors.
var (
	ErrUnsupportedFormat    = errors.New("unsupported model format")
	ErrMalformedHeader      = errors.New("malformed container header")
	ErrTruncatedBuffer      = errors.New("truncated buffer")
	ErrUnsupportedAttribute = errors.New("unsupported attribute")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrInvalidDocument      = errors.New("invalid document")
	ErrMissingBuffer        = errors.New("missing buffer data")
)

// Export errors.
var (
	ErrEncodingFailure         = errors.New("encoding failure")
	ErrUnsupportedTargetFormat = errors.New("unsupported target format")
)

// Format identifies a supported model container.
type Format int

const (
	FormatUnknown Format = iota
	FormatOBJ            // Wavefront OBJ text
	FormatGLTF           // glTF 2.0 JSON (.gltf)
	FormatGLB            // glTF 2.0 packed binary (.glb)
)

// String returns the lowercase format name.
func (f Format) String() string {
	switch f {
	case FormatOBJ:
		return "obj"
	case FormatGLTF:
		return "gltf"
	case FormatGLB:
		return "glb"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatOBJ, FormatGLTF, FormatGLB:
		return "." + f.String()
	default:
		return ""
	}
}

// FormatFromHint resolves a file name, extension, format name or MIME type
// to a Format. Matching is case-insensitive.
func FormatFromHint(hint string) (Format, error) {
	h := strings.ToLower(strings.TrimSpace(hint))

	switch h {
	case "model/obj":
		return FormatOBJ, nil
	case "model/gltf+json":
		return FormatGLTF, nil
	case "model/gltf-binary":
		return FormatGLB, nil
	}

	if ext := path.Ext(h); ext != "" {
		h = ext
	}
	switch strings.TrimPrefix(h, ".") {
	case "obj":
		return FormatOBJ, nil
	case "gltf":
		return FormatGLTF, nil
	case "glb":
		return FormatGLB, nil
	}
	return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, hint)
}

// SniffFormat guesses the format from the leading bytes: the GLB magic, a
// JSON object, or OBJ text otherwise. Empty input is unknown.
func SniffFormat(data []byte) Format {
	if isGLB(data) {
		return FormatGLB
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return FormatUnknown
	}
	if trimmed[0] == '{' {
		return FormatGLTF
	}
	return FormatOBJ
}

// ParseOptions controls model parsing.
type ParseOptions struct {
	// ResolveURI loads external glTF buffers referenced by relative URI.
	// When nil, external buffers fail with ErrMissingBuffer.
	ResolveURI func(uri string) ([]byte, error)
	// Charset names the legacy encoding of OBJ text without a byte order
	// mark, e.g. "euc-kr". Empty means UTF-8.
	Charset string
}

// Parse decodes a model buffer using the format named by hint.
func Parse(data []byte, hint string) (*mesh.Mesh, error) {
	return ParseWithOptions(data, hint, ParseOptions{})
}

// ParseWithOptions decodes a model buffer using the format named by hint.
func ParseWithOptions(data []byte, hint string, opts ParseOptions) (*mesh.Mesh, error) {
	format, err := FormatFromHint(hint)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatOBJ:
		return parseOBJ(data, opts.Charset)
	case FormatGLTF:
		return ParseGLTF(data, opts)
	case FormatGLB:
		return ParseGLB(data, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Encode serializes a mesh in the given format. Only OBJ and packed GLB are
// produced; loose glTF JSON is not an export target.
func Encode(m *mesh.Mesh, format Format) ([]byte, error) {
	switch format {
	case FormatOBJ:
		return EncodeOBJ(m), nil
	case FormatGLB:
		return EncodeGLB(m)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTargetFormat, format)
	}
}
