// glTF 2.0 parser for the JSON (.gltf) and packed binary (.glb) forms,
// reading the github.com/qmuntal/gltf document model.
package formats

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	gomath "math"
	"strings"

	"github.com/qmuntal/gltf"

	"github.com/Faultbox/meshslim/pkg/encoding"
	"github.com/Faultbox/meshslim/pkg/math"
	"github.com/Faultbox/meshslim/pkg/mesh"
)

// ParseGLTF parses a glTF JSON document. Buffers are taken from base64 data
// URIs or resolved through opts.ResolveURI. Input that carries the GLB magic
// is parsed as GLB.
func ParseGLTF(data []byte, opts ParseOptions) (*mesh.Mesh, error) {
	if isGLB(data) {
		return ParseGLB(data, opts)
	}
	jsonData, err := encoding.DecodeText(data, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return parseGLTFDocument(jsonData, nil, false, opts)
}

// ParseGLB parses a packed binary glTF container.
func ParseGLB(data []byte, opts ParseOptions) (*mesh.Mesh, error) {
	c, err := decodeGLB(data)
	if err != nil {
		return nil, err
	}
	return parseGLTFDocument(c.JSON, c.BIN, c.HasBIN, opts)
}

// gltfReader resolves buffers, views and accessors of one document.
type gltfReader struct {
	doc    *gltf.Document
	bin    []byte
	hasBIN bool
	opts   ParseOptions
}

func parseGLTFDocument(jsonData, bin []byte, hasBIN bool, opts ParseOptions) (*mesh.Mesh, error) {
	var doc gltf.Document
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc.Asset.Version == "" {
		return nil, fmt.Errorf("%w: missing asset.version", ErrInvalidDocument)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, fmt.Errorf("%w: glTF version %s", ErrUnsupportedFormat, doc.Asset.Version)
	}
	if len(doc.ExtensionsRequired) > 0 {
		return nil, fmt.Errorf("%w: required extension %s", ErrUnsupportedAttribute, doc.ExtensionsRequired[0])
	}
	if err := checkDocument(&doc); err != nil {
		return nil, err
	}

	r := &gltfReader{
		doc:    &doc,
		bin:    bin,
		hasBIN: hasBIN,
		opts:   opts,
	}
	asm := newGLTFAssembler()

	walker, err := newNodeWalker(&doc)
	if err != nil {
		return nil, err
	}
	if walker.Empty() {
		// No node graph at all: take every mesh untransformed.
		for i := range doc.Meshes {
			if err := r.appendMesh(asm, i, math.Identity()); err != nil {
				return nil, err
			}
		}
		return asm.build()
	}

	for {
		visit, ok, err := walker.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		node := doc.Nodes[visit.Node]
		if node.Mesh == nil {
			continue
		}
		if asm.builder.Name() == "" {
			asm.builder.SetName(node.Name)
		}
		if err := r.appendMesh(asm, *node.Mesh, visit.World); err != nil {
			return nil, fmt.Errorf("node %d: %w", visit.Node, err)
		}
	}
	return asm.build()
}

// gltfAssembler merges primitives into one mesh builder and backfills
// vertex colors for primitives that had none.
type gltfAssembler struct {
	builder   *mesh.Builder
	hasColor  bool
	colorless [][2]int // vertex ranges without COLOR_0
}

func newGLTFAssembler() *gltfAssembler {
	return &gltfAssembler{builder: mesh.NewBuilder("")}
}

func (a *gltfAssembler) build() (*mesh.Mesh, error) {
	if a.hasColor {
		for _, rng := range a.colorless {
			for i := rng[0]; i < rng[1]; i++ {
				a.builder.Vertex(i).Color = [4]float32{1, 1, 1, 1}
			}
		}
	}
	m, err := a.builder.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexOutOfRange, err)
	}
	return m, nil
}

func (r *gltfReader) appendMesh(asm *gltfAssembler, meshIdx int, world math.Mat4) error {
	if meshIdx < 0 || meshIdx >= len(r.doc.Meshes) {
		return fmt.Errorf("%w: mesh %d of %d", ErrInvalidDocument, meshIdx, len(r.doc.Meshes))
	}
	gm := r.doc.Meshes[meshIdx]
	b := asm.builder
	if b.Name() == "" {
		b.SetName(gm.Name)
	}

	identity := world.IsIdentity()
	normalMatrix := world.NormalMatrix()

	for pi, prim := range gm.Primitives {
		// Point primitives carry vertices without faces.
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != gltf.PrimitivePoints {
			return fmt.Errorf("%w: mesh %d primitive %d mode %v, only triangles are supported",
				ErrUnsupportedAttribute, meshIdx, pi, prim.Mode)
		}

		posIdx, ok := prim.Attributes[attrPosition]
		if !ok {
			return fmt.Errorf("%w: mesh %d primitive %d has no POSITION", ErrUnsupportedAttribute, meshIdx, pi)
		}
		positions, err := r.readFloats(posIdx, attrPosition, []gltf.AccessorType{gltf.AccessorVec3}, false)
		if err != nil {
			return err
		}
		count := len(positions) / 3

		var normals, texCoords, colors []float32
		colorComps := 0
		if idx, ok := prim.Attributes[attrNormal]; ok {
			if normals, err = r.readFloats(idx, attrNormal, []gltf.AccessorType{gltf.AccessorVec3}, false); err != nil {
				return err
			}
			b.EnableAttributes(mesh.AttrNormal)
		}
		if idx, ok := prim.Attributes[attrTexCoord0]; ok {
			if texCoords, err = r.readFloats(idx, attrTexCoord0, []gltf.AccessorType{gltf.AccessorVec2}, true); err != nil {
				return err
			}
			b.EnableAttributes(mesh.AttrTexCoord)
		}
		if idx, ok := prim.Attributes[attrColor0]; ok {
			if colors, err = r.readFloats(idx, attrColor0, []gltf.AccessorType{gltf.AccessorVec3, gltf.AccessorVec4}, true); err != nil {
				return err
			}
			colorComps = componentCount(r.doc.Accessors[idx].Type)
			b.EnableAttributes(mesh.AttrColor)
			asm.hasColor = true
		}
		if normals != nil && len(normals)/3 != count {
			return fmt.Errorf("%w: %s count differs from POSITION", ErrInvalidDocument, attrNormal)
		}
		if texCoords != nil && len(texCoords)/2 != count {
			return fmt.Errorf("%w: %s count differs from POSITION", ErrInvalidDocument, attrTexCoord0)
		}
		if colors != nil && len(colors)/colorComps != count {
			return fmt.Errorf("%w: %s count differs from POSITION", ErrInvalidDocument, attrColor0)
		}

		base := b.VertexCount()
		for i := 0; i < count; i++ {
			v := mesh.Vertex{Position: math.Vec3{X: positions[i*3], Y: positions[i*3+1], Z: positions[i*3+2]}}
			if !identity {
				v.Position = world.TransformVec3(v.Position)
			}
			if normals != nil {
				v.Normal = math.Vec3{X: normals[i*3], Y: normals[i*3+1], Z: normals[i*3+2]}
				if !identity {
					v.Normal = normalMatrix.TransformDirection(v.Normal).Normalize()
				}
			}
			if texCoords != nil {
				v.TexCoord = math.Vec2{X: texCoords[i*2], Y: texCoords[i*2+1]}
			}
			if colors != nil {
				c := colors[i*colorComps : (i+1)*colorComps]
				v.Color = [4]float32{c[0], c[1], c[2], 1}
				if colorComps == 4 {
					v.Color[3] = c[3]
				}
			}
			b.AddVertex(v)
		}
		if colors == nil {
			asm.colorless = append(asm.colorless, [2]int{base, base + count})
		}
		if prim.Mode == gltf.PrimitivePoints {
			continue
		}

		var indices []uint32
		if prim.Indices != nil {
			if indices, err = r.readIndices(*prim.Indices); err != nil {
				return err
			}
		} else {
			indices = make([]uint32, count)
			for i := range indices {
				indices[i] = uint32(i)
			}
		}

		for i := 0; i+2 < len(indices); i += 3 {
			for _, idx := range indices[i : i+3] {
				if uint64(idx) >= uint64(count) {
					return fmt.Errorf("%w: mesh %d primitive %d index %d with %d vertices",
						ErrIndexOutOfRange, meshIdx, pi, idx, count)
				}
			}
			b.AddTriangle(base+int(indices[i]), base+int(indices[i+1]), base+int(indices[i+2]))
		}
	}
	return nil
}

func (r *gltfReader) accessor(i int) (*gltf.Accessor, error) {
	if i < 0 || i >= len(r.doc.Accessors) {
		return nil, fmt.Errorf("%w: accessor %d of %d", ErrInvalidDocument, i, len(r.doc.Accessors))
	}
	acc := r.doc.Accessors[i]
	if acc.Count < 0 || acc.ByteOffset < 0 {
		return nil, fmt.Errorf("%w: accessor %d has negative count or offset", ErrInvalidDocument, i)
	}
	if acc.Sparse != nil {
		return nil, fmt.Errorf("%w: accessor %d is sparse", ErrUnsupportedAttribute, i)
	}
	return acc, nil
}

// buffer returns the bytes of buffer i, loading them into the document on
// first use.
func (r *gltfReader) buffer(i int) ([]byte, error) {
	if i < 0 || i >= len(r.doc.Buffers) {
		return nil, fmt.Errorf("%w: buffer %d of %d", ErrInvalidDocument, i, len(r.doc.Buffers))
	}
	buf := r.doc.Buffers[i]
	if buf.Data != nil {
		return buf.Data, nil
	}

	var data []byte
	switch {
	case buf.URI == "":
		if i != 0 || !r.hasBIN {
			return nil, fmt.Errorf("%w: buffer %d has no uri and no BIN chunk", ErrMissingBuffer, i)
		}
		data = r.bin
	case strings.HasPrefix(buf.URI, "data:"):
		comma := strings.IndexByte(buf.URI, ',')
		if comma < 0 || !strings.HasSuffix(buf.URI[:comma], ";base64") {
			return nil, fmt.Errorf("%w: buffer %d data uri is not base64", ErrInvalidDocument, i)
		}
		decoded, err := base64.StdEncoding.DecodeString(buf.URI[comma+1:])
		if err != nil {
			return nil, fmt.Errorf("%w: buffer %d: %v", ErrInvalidDocument, i, err)
		}
		data = decoded
	default:
		if r.opts.ResolveURI == nil {
			return nil, fmt.Errorf("%w: buffer %d references external %q", ErrMissingBuffer, i, buf.URI)
		}
		loaded, err := r.opts.ResolveURI(buf.URI)
		if err != nil {
			return nil, fmt.Errorf("%w: buffer %d %q: %v", ErrMissingBuffer, i, buf.URI, err)
		}
		data = loaded
	}

	if buf.ByteLength < 0 || len(data) < buf.ByteLength {
		return nil, fmt.Errorf("%w: buffer %d declares %d bytes, have %d", ErrTruncatedBuffer, i, buf.ByteLength, len(data))
	}
	buf.Data = data[:buf.ByteLength:buf.ByteLength]
	return buf.Data, nil
}

// view returns the bytes of a bufferView and its element stride.
func (r *gltfReader) view(i, elemSize int) ([]byte, int, error) {
	if i < 0 || i >= len(r.doc.BufferViews) {
		return nil, 0, fmt.Errorf("%w: bufferView %d of %d", ErrInvalidDocument, i, len(r.doc.BufferViews))
	}
	bv := r.doc.BufferViews[i]
	buf, err := r.buffer(bv.Buffer)
	if err != nil {
		return nil, 0, err
	}
	if bv.ByteOffset < 0 || bv.ByteLength < 0 || bv.ByteStride < 0 {
		return nil, 0, fmt.Errorf("%w: bufferView %d has a negative offset, length or stride", ErrInvalidDocument, i)
	}
	if end := uint64(bv.ByteOffset) + uint64(bv.ByteLength); end > uint64(len(buf)) {
		return nil, 0, fmt.Errorf("%w: bufferView %d [%d+%d] exceeds buffer of %d bytes",
			ErrTruncatedBuffer, i, bv.ByteOffset, bv.ByteLength, len(buf))
	}
	stride := elemSize
	if bv.ByteStride > 0 {
		stride = bv.ByteStride
	}
	return buf[bv.ByteOffset : bv.ByteOffset+bv.ByteLength], stride, nil
}

// elements returns the raw backing bytes of an accessor, or nil when the
// accessor has no bufferView (all zeros). On success acc.Count elements of
// elemSize bytes are readable at ByteOffset + i*stride.
func (r *gltfReader) elements(acc *gltf.Accessor, elemSize int) ([]byte, int, error) {
	if acc.BufferView == nil {
		if acc.Count > maxZeroElements {
			return nil, 0, fmt.Errorf("%w: accessor without bufferView declares %d elements", ErrInvalidDocument, acc.Count)
		}
		return nil, elemSize, nil
	}
	data, stride, err := r.view(*acc.BufferView, elemSize)
	if err != nil {
		return nil, 0, err
	}
	if acc.Count == 0 {
		return data, stride, nil
	}
	// Bound the count by the view before multiplying so nothing overflows.
	if uint64(acc.Count-1) > uint64(len(data))/uint64(stride) {
		return nil, 0, fmt.Errorf("%w: accessor of %d elements, bufferView has %d bytes", ErrTruncatedBuffer, acc.Count, len(data))
	}
	end := uint64(acc.ByteOffset) + uint64(acc.Count-1)*uint64(stride) + uint64(elemSize)
	if end > uint64(len(data)) {
		return nil, 0, fmt.Errorf("%w: accessor needs %d bytes, bufferView has %d", ErrTruncatedBuffer, end, len(data))
	}
	return data, stride, nil
}

// readFloats reads an accessor as float32 components. Integer components
// are accepted only when allowNormalized is set and the accessor is
// normalized unsigned byte/short.
func (r *gltfReader) readFloats(idx int, semantic string, types []gltf.AccessorType, allowNormalized bool) ([]float32, error) {
	acc, err := r.accessor(idx)
	if err != nil {
		return nil, err
	}

	typeOK := false
	for _, t := range types {
		typeOK = typeOK || acc.Type == t
	}
	if !typeOK {
		return nil, fmt.Errorf("%w: %s accessor type %v", ErrUnsupportedAttribute, semantic, acc.Type)
	}

	switch acc.ComponentType {
	case gltf.ComponentFloat:
	case gltf.ComponentUbyte, gltf.ComponentUshort:
		if !allowNormalized || !acc.Normalized {
			return nil, fmt.Errorf("%w: %s component type %v", ErrUnsupportedAttribute, semantic, acc.ComponentType)
		}
	default:
		return nil, fmt.Errorf("%w: %s component type %v", ErrUnsupportedAttribute, semantic, acc.ComponentType)
	}

	comps := componentCount(acc.Type)
	csize := componentSize(acc.ComponentType)
	data, stride, err := r.elements(acc, comps*csize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", semantic, err)
	}

	out := make([]float32, acc.Count*comps)
	if data == nil {
		return out, nil
	}
	for i := 0; i < acc.Count; i++ {
		elem := data[acc.ByteOffset+i*stride:]
		for c := 0; c < comps; c++ {
			switch acc.ComponentType {
			case gltf.ComponentFloat:
				out[i*comps+c] = gomath.Float32frombits(binary.LittleEndian.Uint32(elem[c*4:]))
			case gltf.ComponentUbyte:
				out[i*comps+c] = float32(elem[c]) / 255
			case gltf.ComponentUshort:
				out[i*comps+c] = float32(binary.LittleEndian.Uint16(elem[c*2:])) / 65535
			}
		}
	}
	return out, nil
}

// readIndices reads a SCALAR unsigned index accessor.
func (r *gltfReader) readIndices(idx int) ([]uint32, error) {
	acc, err := r.accessor(idx)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltf.AccessorScalar {
		return nil, fmt.Errorf("%w: index accessor type %v", ErrUnsupportedAttribute, acc.Type)
	}
	switch acc.ComponentType {
	case gltf.ComponentUbyte, gltf.ComponentUshort, gltf.ComponentUint:
	default:
		return nil, fmt.Errorf("%w: index component type %v", ErrUnsupportedAttribute, acc.ComponentType)
	}

	csize := componentSize(acc.ComponentType)
	data, stride, err := r.elements(acc, csize)
	if err != nil {
		return nil, fmt.Errorf("indices: %w", err)
	}

	out := make([]uint32, acc.Count)
	if data == nil {
		return out, nil
	}
	for i := range out {
		elem := data[acc.ByteOffset+i*stride:]
		switch acc.ComponentType {
		case gltf.ComponentUbyte:
			out[i] = uint32(elem[0])
		case gltf.ComponentUshort:
			out[i] = uint32(binary.LittleEndian.Uint16(elem))
		case gltf.ComponentUint:
			out[i] = binary.LittleEndian.Uint32(elem)
		}
	}
	return out, nil
}
