// OBJ (Wavefront) text format parser and encoder.
package formats

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/meshslim/pkg/encoding"
	"github.com/Faultbox/meshslim/pkg/math"
	"github.com/Faultbox/meshslim/pkg/mesh"
)

// DefaultObjectName is written when a mesh has no name.
const DefaultObjectName = "SimplifiedMesh"

// objCorner is a resolved face corner; vt and vn are -1 when absent.
type objCorner struct {
	v, vt, vn int
}

type objParser struct {
	name      string
	positions []math.Vec3
	colors    [][4]float32
	hasColor  bool
	texCoords []math.Vec2
	normals   []math.Vec3
	faces     [][]objCorner
}

// ParseOBJ parses Wavefront OBJ text into a mesh.
//
// Vertex i of the result is the i-th "v" record. A position referenced with
// more than one texcoord/normal pairing is split; the extra vertices follow
// all "v" records. A face index outside the declared range fails the whole
// parse with ErrIndexOutOfRange. A leading byte order mark is honored.
func ParseOBJ(data []byte) (*mesh.Mesh, error) {
	return parseOBJ(data, "")
}

func parseOBJ(data []byte, charset string) (*mesh.Mesh, error) {
	data, err := encoding.DecodeText(data, charset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	p := &objParser{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := p.parseLine(scanner.Text()); err != nil {
			return nil, fmt.Errorf("obj line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	return p.build()
}

func (p *objParser) parseLine(line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "v":
		return p.parseVertex(fields[1:])
	case "vn":
		n, err := parseFloats(fields[1:], 3, 3)
		if err != nil {
			return fmt.Errorf("vn: %w", err)
		}
		p.normals = append(p.normals, math.Vec3{X: n[0], Y: n[1], Z: n[2]})
	case "vt":
		uv, err := parseFloats(fields[1:], 1, 2)
		if err != nil {
			return fmt.Errorf("vt: %w", err)
		}
		p.texCoords = append(p.texCoords, math.Vec2{X: uv[0], Y: uv[1]})
	case "f":
		return p.parseFace(fields[1:])
	case "o":
		if p.name == "" {
			p.name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "o"))
		}
	}
	// Groups, smoothing, materials, lines and points carry nothing we keep.
	return nil
}

func (p *objParser) parseVertex(args []string) error {
	// v x y z [w] | v x y z r g b
	want := 3
	if len(args) >= 6 {
		want = 6
	}
	vals, err := parseFloats(args, 3, want)
	if err != nil {
		return fmt.Errorf("v: %w", err)
	}
	p.positions = append(p.positions, math.Vec3{X: vals[0], Y: vals[1], Z: vals[2]})

	color := [4]float32{1, 1, 1, 1}
	if want == 6 {
		color = [4]float32{vals[3], vals[4], vals[5], 1}
		p.hasColor = true
	}
	p.colors = append(p.colors, color)
	return nil
}

// parseFloats parses between need and want leading fields; missing optional
// values stay zero. The result always has want entries.
func parseFloats(args []string, need, want int) ([]float32, error) {
	if len(args) < need {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidDocument, need, len(args))
	}
	out := make([]float32, want)
	for i := 0; i < want && i < len(args); i++ {
		f, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrInvalidDocument, args[i])
		}
		out[i] = float32(f)
	}
	return out, nil
}

func (p *objParser) parseFace(args []string) error {
	corners := make([]objCorner, len(args))
	for i, arg := range args {
		parts := strings.Split(arg, "/")
		if len(parts) > 3 || parts[0] == "" {
			return fmt.Errorf("%w: bad face corner %q", ErrInvalidDocument, arg)
		}

		c := objCorner{vt: -1, vn: -1}
		var err error
		if c.v, err = resolveOBJIndex(parts[0], len(p.positions), "vertex"); err != nil {
			return err
		}
		if len(parts) > 1 && parts[1] != "" {
			if c.vt, err = resolveOBJIndex(parts[1], len(p.texCoords), "texcoord"); err != nil {
				return err
			}
		}
		if len(parts) > 2 && parts[2] != "" {
			if c.vn, err = resolveOBJIndex(parts[2], len(p.normals), "normal"); err != nil {
				return err
			}
		}
		corners[i] = c
	}
	p.faces = append(p.faces, corners)
	return nil
}

// resolveOBJIndex turns a 1-based or negative (relative) index into a
// 0-based one, checking it against the number of records seen so far.
func resolveOBJIndex(s string, count int, kind string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s index %q", ErrInvalidDocument, kind, s)
	}

	resolved := -1
	switch {
	case i > 0:
		resolved = i - 1
	case i < 0:
		resolved = count + i
	}
	if resolved < 0 || resolved >= count {
		return 0, fmt.Errorf("%w: %s index %d with %d defined", ErrIndexOutOfRange, kind, i, count)
	}
	return resolved, nil
}

func (p *objParser) build() (*mesh.Mesh, error) {
	b := mesh.NewBuilder(p.name)
	for i, pos := range p.positions {
		v := mesh.Vertex{Position: pos}
		if p.hasColor {
			v.Color = p.colors[i]
		}
		b.AddVertex(v)
	}
	if p.hasColor {
		b.EnableAttributes(mesh.AttrColor)
	}

	assigned := make([]objCorner, len(p.positions))
	for i := range assigned {
		assigned[i].v = -1
	}
	splits := make(map[objCorner]int)

	resolve := func(c objCorner) int {
		if c.vt >= 0 {
			b.EnableAttributes(mesh.AttrTexCoord)
		}
		if c.vn >= 0 {
			b.EnableAttributes(mesh.AttrNormal)
		}

		first := &assigned[c.v]
		switch {
		case first.v < 0:
			*first = c
			p.applyCorner(b.Vertex(c.v), c)
			return c.v
		case first.vt == c.vt && first.vn == c.vn:
			return c.v
		}

		if idx, ok := splits[c]; ok {
			return idx
		}
		v := *b.Vertex(c.v)
		p.applyCorner(&v, c)
		idx := b.AddVertex(v)
		splits[c] = idx
		return idx
	}

	for _, corners := range p.faces {
		// Corners sharing a position collapse to one index so the builder
		// sees them as degenerate even if their attributes differ.
		indices := make([]int, len(corners))
		for i, c := range corners {
			indices[i] = -1
			for j := 0; j < i; j++ {
				if corners[j].v == c.v {
					indices[i] = indices[j]
					break
				}
			}
			if indices[i] < 0 {
				indices[i] = resolve(c)
			}
		}
		b.AddPolygon(indices)
	}

	return b.Build()
}

func (p *objParser) applyCorner(v *mesh.Vertex, c objCorner) {
	v.TexCoord = math.Vec2{}
	if c.vt >= 0 {
		v.TexCoord = p.texCoords[c.vt]
	}
	v.Normal = math.Vec3{}
	if c.vn >= 0 {
		v.Normal = p.normals[c.vn]
	}
}

// EncodeOBJ serializes a mesh as OBJ text. Positions keep their index order;
// texcoords and normals, when present, share the vertex numbering so face
// corners read i/i/i.
func EncodeOBJ(m *mesh.Mesh) []byte {
	attrs := m.Attributes()
	hasUV := attrs.Has(mesh.AttrTexCoord)
	hasNormal := attrs.Has(mesh.AttrNormal)
	hasColor := attrs.Has(mesh.AttrColor)

	name := m.Name
	if name == "" {
		name = DefaultObjectName
	}

	var buf bytes.Buffer
	buf.Grow(m.VertexCount()*40 + m.FaceCount()*24)
	buf.WriteString("# meshslim\n")
	fmt.Fprintf(&buf, "o %s\n", name)

	scratch := make([]byte, 0, 64)
	line := func(prefix string, vals ...float32) {
		scratch = append(scratch[:0], prefix...)
		for _, v := range vals {
			scratch = append(scratch, ' ')
			scratch = strconv.AppendFloat(scratch, float64(v), 'g', -1, 32)
		}
		scratch = append(scratch, '\n')
		buf.Write(scratch)
	}

	for _, v := range m.Vertices() {
		p := v.Position
		if hasColor {
			line("v", p.X, p.Y, p.Z, v.Color[0], v.Color[1], v.Color[2])
		} else {
			line("v", p.X, p.Y, p.Z)
		}
	}
	if hasUV {
		for _, v := range m.Vertices() {
			line("vt", v.TexCoord.X, v.TexCoord.Y)
		}
	}
	if hasNormal {
		for _, v := range m.Vertices() {
			line("vn", v.Normal.X, v.Normal.Y, v.Normal.Z)
		}
	}

	for _, f := range m.Faces() {
		scratch = append(scratch[:0], 'f')
		for _, idx := range f {
			n := strconv.Itoa(idx + 1)
			scratch = append(scratch, ' ')
			scratch = append(scratch, n...)
			switch {
			case hasUV && hasNormal:
				scratch = append(scratch, '/')
				scratch = append(scratch, n...)
				scratch = append(scratch, '/')
				scratch = append(scratch, n...)
			case hasUV:
				scratch = append(scratch, '/')
				scratch = append(scratch, n...)
			case hasNormal:
				scratch = append(scratch, "//"...)
				scratch = append(scratch, n...)
			}
		}
		scratch = append(scratch, '\n')
		buf.Write(scratch)
	}

	return buf.Bytes()
}
