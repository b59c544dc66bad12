// Package mesh provides the format-agnostic indexed triangle mesh shared by
// the parsers, the decimator and the exporters.
package mesh

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Faultbox/meshslim/pkg/math"
)

// Mesh errors.
var (
	ErrInvalidFace = errors.New("invalid face")
)

// Attributes is a bitmask of the optional per-vertex attributes a mesh carries.
type Attributes uint8

const (
	AttrNormal   Attributes = 1 << iota // Vertex.Normal is meaningful
	AttrTexCoord                        // Vertex.TexCoord is meaningful
	AttrColor                           // Vertex.Color is meaningful
)

// Has reports whether all attributes in other are set.
func (a Attributes) Has(other Attributes) bool {
	return a&other == other
}

// String returns a compact attribute list such as "normal|texcoord".
func (a Attributes) String() string {
	if a == 0 {
		return "position"
	}
	s := ""
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if a.Has(AttrNormal) {
		add("normal")
	}
	if a.Has(AttrTexCoord) {
		add("texcoord")
	}
	if a.Has(AttrColor) {
		add("color")
	}
	return s
}

// Vertex is a mesh vertex. Only Position is always meaningful; the other
// fields are valid when the owning mesh's Attributes says so.
type Vertex struct {
	Position math.Vec3
	Normal   math.Vec3
	TexCoord math.Vec2
	Color    [4]float32 // RGBA, 0-1
}

// Face is a triangle referencing three distinct vertices, counter-clockwise.
type Face [3]int

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min, Max math.Vec3
}

// Size returns the box extent along each axis.
func (b Bounds) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}

// Mesh is an indexed triangle mesh.
//
// A Mesh is treated as immutable once built: parsers create it, the
// decimator produces new meshes from it and exporters only read it. The
// slices returned by Vertices and Faces must not be modified. Adjacency is
// derived on first use and is safe to request from concurrent readers.
type Mesh struct {
	Name string

	vertices []Vertex
	faces    []Face
	attrs    Attributes
	dropped  int

	adjOnce sync.Once
	adj     *Adjacency
}

// New creates a mesh, validating that every face references three distinct,
// in-range vertices. The mesh takes ownership of both slices.
func New(name string, vertices []Vertex, faces []Face, attrs Attributes) (*Mesh, error) {
	m := &Mesh{
		Name:     name,
		vertices: vertices,
		faces:    faces,
		attrs:    attrs,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the face invariants.
func (m *Mesh) Validate() error {
	n := len(m.vertices)
	for i, f := range m.faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return fmt.Errorf("%w: face %d references vertex %d of %d", ErrInvalidFace, i, idx, n)
			}
		}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			return fmt.Errorf("%w: face %d has repeated vertex %v", ErrInvalidFace, i, f)
		}
	}
	return nil
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.vertices)
}

// FaceCount returns the number of triangles.
func (m *Mesh) FaceCount() int {
	return len(m.faces)
}

// Vertices returns the vertex sequence. Callers must not modify it.
func (m *Mesh) Vertices() []Vertex {
	return m.vertices
}

// Faces returns the face sequence. Callers must not modify it.
func (m *Mesh) Faces() []Face {
	return m.faces
}

// Attributes returns the optional attributes carried by the vertices.
func (m *Mesh) Attributes() Attributes {
	return m.attrs
}

// DroppedFaces returns how many degenerate polygons were discarded while
// the mesh was built. Meshes made with New report 0.
func (m *Mesh) DroppedFaces() int {
	return m.dropped
}

// Clone returns a deep copy without the cached adjacency.
func (m *Mesh) Clone() *Mesh {
	vertices := make([]Vertex, len(m.vertices))
	copy(vertices, m.vertices)
	faces := make([]Face, len(m.faces))
	copy(faces, m.faces)
	return &Mesh{
		Name:     m.Name,
		vertices: vertices,
		faces:    faces,
		attrs:    m.attrs,
		dropped:  m.dropped,
	}
}

// Bounds returns the bounding box of all vertex positions.
// An empty mesh returns the zero box.
func (m *Mesh) Bounds() Bounds {
	if len(m.vertices) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: m.vertices[0].Position, Max: m.vertices[0].Position}
	for _, v := range m.vertices[1:] {
		b.Min = b.Min.Min(v.Position)
		b.Max = b.Max.Max(v.Position)
	}
	return b
}

// FaceNormal returns the unnormalized normal of face i; its length is twice
// the triangle area.
func (m *Mesh) FaceNormal(i int) math.Vec3 {
	f := m.faces[i]
	p0 := m.vertices[f[0]].Position
	p1 := m.vertices[f[1]].Position
	p2 := m.vertices[f[2]].Position
	return p1.Sub(p0).Cross(p2.Sub(p0))
}

// SurfaceArea returns the summed triangle area.
func (m *Mesh) SurfaceArea() float64 {
	total := 0.0
	for i := range m.faces {
		total += float64(m.FaceNormal(i).Length()) / 2
	}
	return total
}

// Adjacency returns the vertex/edge/face incidence index, computing it on
// first use.
func (m *Mesh) Adjacency() *Adjacency {
	m.adjOnce.Do(func() {
		m.adj = buildAdjacency(len(m.vertices), m.faces)
	})
	return m.adj
}
