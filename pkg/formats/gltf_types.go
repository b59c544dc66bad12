// glTF 2.0 document helpers. The schema itself comes from
// github.com/qmuntal/gltf; this file adds the pieces the mesh reader and
// writer need on top of it.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html
package formats

import (
	"fmt"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/meshslim/pkg/math"
)

// Attribute semantics read and written.
const (
	attrPosition  = "POSITION"
	attrNormal    = "NORMAL"
	attrTexCoord0 = "TEXCOORD_0"
	attrColor0    = "COLOR_0"
)

// maxZeroElements caps accessors without a bufferView. Their storage is
// synthesized, so the declared count is the only bound.
const maxZeroElements = 1 << 24

// componentSize returns the byte size of a component type, or 0 if unknown.
func componentSize(ct gltf.ComponentType) int {
	switch ct {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	case gltf.ComponentUint, gltf.ComponentFloat:
		return 4
	default:
		return 0
	}
}

// componentCount returns the number of components of an accessor type, or
// 0 for types a mesh attribute never uses.
func componentCount(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4:
		return 4
	default:
		return 0
	}
}

// checkDocument rejects null entries in the top-level arrays so the reader
// can dereference them freely.
func checkDocument(doc *gltf.Document) error {
	for i, s := range doc.Scenes {
		if s == nil {
			return fmt.Errorf("%w: scene %d is null", ErrInvalidDocument, i)
		}
	}
	for i, n := range doc.Nodes {
		if n == nil {
			return fmt.Errorf("%w: node %d is null", ErrInvalidDocument, i)
		}
	}
	for i, m := range doc.Meshes {
		if m == nil {
			return fmt.Errorf("%w: mesh %d is null", ErrInvalidDocument, i)
		}
		for j, p := range m.Primitives {
			if p == nil {
				return fmt.Errorf("%w: mesh %d primitive %d is null", ErrInvalidDocument, i, j)
			}
		}
	}
	for i, a := range doc.Accessors {
		if a == nil {
			return fmt.Errorf("%w: accessor %d is null", ErrInvalidDocument, i)
		}
	}
	for i, bv := range doc.BufferViews {
		if bv == nil {
			return fmt.Errorf("%w: bufferView %d is null", ErrInvalidDocument, i)
		}
	}
	for i, b := range doc.Buffers {
		if b == nil {
			return fmt.Errorf("%w: buffer %d is null", ErrInvalidDocument, i)
		}
	}
	return nil
}

type float interface {
	~float32 | ~float64
}

func mat4Of[T float](a [16]T) math.Mat4 {
	var m math.Mat4
	for i, v := range a {
		m[i] = float32(v)
	}
	return m
}

func vec3Of[T float](a [3]T) math.Vec3 {
	return math.Vec3{X: float32(a[0]), Y: float32(a[1]), Z: float32(a[2])}
}

func quatOf[T float](a [4]T) math.Quat {
	return math.QuatFromArray([4]float32{float32(a[0]), float32(a[1]), float32(a[2]), float32(a[3])})
}

// setFloats stores vals into an accessor bound slice of the schema's float
// type.
func setFloats[T float](dst *[]T, vals []float32) {
	out := make([]T, len(vals))
	for i, v := range vals {
		out[i] = T(v)
	}
	*dst = out
}
