// glTF binary (GLB) encoder.
package formats

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	gomath "math"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/meshslim/pkg/mesh"
)

const gltfGenerator = "meshslim"

// indexComponentFor picks the narrowest index component able to address
// vertexCount vertices. The maximum value of each type is reserved for
// primitive restart, so it is never used as an index.
func indexComponentFor(vertexCount int) (componentType gltf.ComponentType, size int, err error) {
	switch {
	case vertexCount < 0:
		return 0, 0, fmt.Errorf("%w: negative vertex count %d", ErrEncodingFailure, vertexCount)
	case vertexCount <= gomath.MaxUint16:
		return gltf.ComponentUshort, 2, nil
	case uint64(vertexCount) <= gomath.MaxUint32:
		return gltf.ComponentUint, 4, nil
	default:
		return 0, 0, fmt.Errorf("%w: %d vertices exceed 32-bit indices", ErrEncodingFailure, vertexCount)
	}
}

// glbWriter appends 4-byte aligned blocks to the binary chunk and records
// a bufferView and accessor for each.
type glbWriter struct {
	doc *gltf.Document
	bin []byte
}

func (w *glbWriter) addBlock(data []byte, target gltf.Target) int {
	for len(w.bin)%4 != 0 {
		w.bin = append(w.bin, 0)
	}
	w.doc.BufferViews = append(w.doc.BufferViews, &gltf.BufferView{
		Buffer:     0,
		ByteOffset: len(w.bin),
		ByteLength: len(data),
		Target:     target,
	})
	w.bin = append(w.bin, data...)
	return len(w.doc.BufferViews) - 1
}

func (w *glbWriter) addAccessor(view int, componentType gltf.ComponentType, count int, accessorType gltf.AccessorType) int {
	v := view
	w.doc.Accessors = append(w.doc.Accessors, &gltf.Accessor{
		BufferView:    &v,
		ComponentType: componentType,
		Count:         count,
		Type:          accessorType,
	})
	return len(w.doc.Accessors) - 1
}

func appendFloats(dst []byte, vals ...float32) []byte {
	for _, v := range vals {
		dst = binary.LittleEndian.AppendUint32(dst, gomath.Float32bits(v))
	}
	return dst
}

// newNode returns a node with the schema's explicit identity transform.
func newNode(name string) *gltf.Node {
	return &gltf.Node{
		Name:     name,
		Matrix:   gltf.DefaultMatrix,
		Rotation: gltf.DefaultRotation,
		Scale:    gltf.DefaultScale,
	}
}

// EncodeGLB serializes a mesh as a single-mesh GLB container: one buffer in
// the BIN chunk, one view per attribute block plus one for indices.
// A mesh without faces keeps its vertices in a point primitive; a mesh
// without vertices encodes as a scene with an empty node.
func EncodeGLB(m *mesh.Mesh) ([]byte, error) {
	indexType, indexSize, err := indexComponentFor(m.VertexCount())
	if err != nil {
		return nil, err
	}

	name := m.Name
	if name == "" {
		name = DefaultObjectName
	}
	doc := &gltf.Document{
		Asset:  gltf.Asset{Version: "2.0", Generator: gltfGenerator},
		Scene:  new(int),
		Scenes: []*gltf.Scene{{Nodes: []int{0}}},
		Nodes:  []*gltf.Node{newNode(name)},
	}
	w := &glbWriter{doc: doc}

	if m.VertexCount() > 0 {
		verts := m.Vertices()
		attrs := m.Attributes()
		prim := &gltf.Primitive{Attributes: map[string]int{}}

		bounds := m.Bounds()
		positions := make([]byte, 0, len(verts)*12)
		for _, v := range verts {
			positions = appendFloats(positions, v.Position.X, v.Position.Y, v.Position.Z)
		}
		posAcc := w.addAccessor(w.addBlock(positions, gltf.TargetArrayBuffer), gltf.ComponentFloat, len(verts), gltf.AccessorVec3)
		minPos, maxPos := bounds.Min.Array(), bounds.Max.Array()
		setFloats(&doc.Accessors[posAcc].Min, minPos[:])
		setFloats(&doc.Accessors[posAcc].Max, maxPos[:])
		prim.Attributes[attrPosition] = posAcc

		if attrs.Has(mesh.AttrNormal) {
			data := make([]byte, 0, len(verts)*12)
			for _, v := range verts {
				data = appendFloats(data, v.Normal.X, v.Normal.Y, v.Normal.Z)
			}
			prim.Attributes[attrNormal] = w.addAccessor(w.addBlock(data, gltf.TargetArrayBuffer), gltf.ComponentFloat, len(verts), gltf.AccessorVec3)
		}
		if attrs.Has(mesh.AttrTexCoord) {
			data := make([]byte, 0, len(verts)*8)
			for _, v := range verts {
				data = appendFloats(data, v.TexCoord.X, v.TexCoord.Y)
			}
			prim.Attributes[attrTexCoord0] = w.addAccessor(w.addBlock(data, gltf.TargetArrayBuffer), gltf.ComponentFloat, len(verts), gltf.AccessorVec2)
		}
		if attrs.Has(mesh.AttrColor) {
			data := make([]byte, 0, len(verts)*16)
			for _, v := range verts {
				data = appendFloats(data, v.Color[:]...)
			}
			prim.Attributes[attrColor0] = w.addAccessor(w.addBlock(data, gltf.TargetArrayBuffer), gltf.ComponentFloat, len(verts), gltf.AccessorVec4)
		}

		if m.FaceCount() > 0 {
			indices := make([]byte, 0, m.FaceCount()*3*indexSize)
			for _, f := range m.Faces() {
				for _, idx := range f {
					if indexSize == 2 {
						indices = binary.LittleEndian.AppendUint16(indices, uint16(idx))
					} else {
						indices = binary.LittleEndian.AppendUint32(indices, uint32(idx))
					}
				}
			}
			idxAcc := w.addAccessor(w.addBlock(indices, gltf.TargetElementArrayBuffer), indexType, m.FaceCount()*3, gltf.AccessorScalar)
			prim.Indices = &idxAcc
			prim.Mode = gltf.PrimitiveTriangles
		} else {
			prim.Mode = gltf.PrimitivePoints
		}

		doc.Meshes = []*gltf.Mesh{{Name: name, Primitives: []*gltf.Primitive{prim}}}
		doc.Nodes[0].Mesh = new(int)
		doc.Buffers = []*gltf.Buffer{{ByteLength: len(w.bin)}}
	}

	if uint64(len(w.bin)) > gomath.MaxUint32 {
		return nil, fmt.Errorf("%w: binary payload of %d bytes", ErrEncodingFailure, len(w.bin))
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}
	return encodeGLB(jsonData, w.bin)
}
