// GLB packed binary container framing.
package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	gomath "math"
)

const (
	glbMagic           = 0x46546C67 // "glTF"
	glbVersion         = 2
	glbHeaderSize      = 12
	glbChunkHeaderSize = 8

	glbChunkJSON = 0x4E4F534A // "JSON"
	glbChunkBIN  = 0x004E4942 // "BIN\x00"
)

// glbHeader is the 12-byte file header.
type glbHeader struct {
	Magic   uint32
	Version uint32
	Length  uint32
}

// glbChunkHeader precedes every chunk.
type glbChunkHeader struct {
	Length uint32
	Type   uint32
}

// glbContainer holds the chunks of a decoded GLB file.
type glbContainer struct {
	JSON   []byte
	BIN    []byte
	HasBIN bool
}

func isGLB(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == glbMagic
}

// decodeGLB splits a GLB file into its JSON and BIN chunks. Unknown chunk
// types are skipped; only the first BIN chunk is kept.
func decodeGLB(data []byte) (*glbContainer, error) {
	if len(data) < glbHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d for GLB header", ErrTruncatedBuffer, len(data), glbHeaderSize)
	}

	r := bytes.NewReader(data)
	var hdr glbHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedBuffer, err)
	}
	if hdr.Magic != glbMagic {
		return nil, fmt.Errorf("%w: magic 0x%08x", ErrMalformedHeader, hdr.Magic)
	}
	if hdr.Version != glbVersion {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedHeader, hdr.Version)
	}
	if uint64(hdr.Length) > uint64(len(data)) {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrTruncatedBuffer, hdr.Length, len(data))
	}
	if hdr.Length < glbHeaderSize {
		return nil, fmt.Errorf("%w: declared length %d", ErrMalformedHeader, hdr.Length)
	}

	body := data[glbHeaderSize:hdr.Length]
	c := &glbContainer{}
	for chunkIdx := 0; len(body) > 0; chunkIdx++ {
		if len(body) < glbChunkHeaderSize {
			return nil, fmt.Errorf("%w: chunk %d header", ErrTruncatedBuffer, chunkIdx)
		}
		var ch glbChunkHeader
		if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, &ch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncatedBuffer, err)
		}
		body = body[glbChunkHeaderSize:]
		if uint64(ch.Length) > uint64(len(body)) {
			return nil, fmt.Errorf("%w: chunk %d declares %d bytes, have %d", ErrTruncatedBuffer, chunkIdx, ch.Length, len(body))
		}
		payload := body[:ch.Length]
		body = body[ch.Length:]

		if chunkIdx == 0 && ch.Type != glbChunkJSON {
			return nil, fmt.Errorf("%w: first chunk type 0x%08x, want JSON", ErrMalformedHeader, ch.Type)
		}
		switch ch.Type {
		case glbChunkJSON:
			if chunkIdx == 0 {
				c.JSON = payload
			}
		case glbChunkBIN:
			if !c.HasBIN {
				c.BIN = payload
				c.HasBIN = true
			}
		}
	}

	if c.JSON == nil {
		return nil, fmt.Errorf("%w: no JSON chunk", ErrMalformedHeader)
	}
	return c, nil
}

// encodeGLB frames a JSON document and optional binary payload. JSON is
// padded with spaces and BIN with zeros to 4-byte boundaries.
func encodeGLB(jsonData, bin []byte) ([]byte, error) {
	jsonPadded := padTo4(jsonData, ' ')
	total := uint64(glbHeaderSize + glbChunkHeaderSize + len(jsonPadded))
	var binPadded []byte
	if len(bin) > 0 {
		binPadded = padTo4(bin, 0)
		total += uint64(glbChunkHeaderSize + len(binPadded))
	}
	if total > gomath.MaxUint32 {
		return nil, fmt.Errorf("%w: container size %d exceeds 4 GiB", ErrEncodingFailure, total)
	}

	out := make([]byte, 0, total)
	out = appendGLBHeader(out, glbHeader{Magic: glbMagic, Version: glbVersion, Length: uint32(total)})
	out = appendGLBChunk(out, glbChunkJSON, jsonPadded)
	if binPadded != nil {
		out = appendGLBChunk(out, glbChunkBIN, binPadded)
	}
	return out, nil
}

func appendGLBHeader(dst []byte, h glbHeader) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.Magic)
	dst = binary.LittleEndian.AppendUint32(dst, h.Version)
	return binary.LittleEndian.AppendUint32(dst, h.Length)
}

func appendGLBChunk(dst []byte, chunkType uint32, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	dst = binary.LittleEndian.AppendUint32(dst, chunkType)
	return append(dst, payload...)
}

func padTo4(data []byte, pad byte) []byte {
	n := (4 - len(data)%4) % 4
	if n == 0 {
		return data
	}
	out := make([]byte, len(data), len(data)+n)
	copy(out, data)
	for i := 0; i < n; i++ {
		out = append(out, pad)
	}
	return out
}
