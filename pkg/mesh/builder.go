package mesh

// Builder accumulates vertices and faces during parsing. Degenerate
// triangles are dropped as they are added, so Build only fails on
// out-of-range indices.
type Builder struct {
	name     string
	vertices []Vertex
	faces    []Face
	attrs    Attributes
	dropped  int
}

// NewBuilder creates an empty builder for a mesh with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// SetName replaces the mesh name.
func (b *Builder) SetName(name string) {
	b.name = name
}

// Name returns the current mesh name.
func (b *Builder) Name() string {
	return b.name
}

// EnableAttributes marks optional attributes as present.
func (b *Builder) EnableAttributes(a Attributes) {
	b.attrs |= a
}

// AddVertex appends a vertex and returns its index.
func (b *Builder) AddVertex(v Vertex) int {
	b.vertices = append(b.vertices, v)
	return len(b.vertices) - 1
}

// Vertex returns a pointer to vertex i for in-place attribute assignment.
// The pointer is invalidated by the next AddVertex.
func (b *Builder) Vertex(i int) *Vertex {
	return &b.vertices[i]
}

// VertexCount returns the number of vertices added so far.
func (b *Builder) VertexCount() int {
	return len(b.vertices)
}

// FaceCount returns the number of triangles kept so far.
func (b *Builder) FaceCount() int {
	return len(b.faces)
}

// AddTriangle appends a triangle, dropping it if two corners coincide.
// Reports whether the triangle was kept.
func (b *Builder) AddTriangle(i0, i1, i2 int) bool {
	if i0 == i1 || i1 == i2 || i0 == i2 {
		b.dropped++
		return false
	}
	b.faces = append(b.faces, Face{i0, i1, i2})
	return true
}

// AddPolygon fan-triangulates a polygon from its first corner and returns
// the number of triangles kept. Polygons with fewer than three corners are
// dropped whole.
func (b *Builder) AddPolygon(corners []int) int {
	if len(corners) < 3 {
		b.dropped++
		return 0
	}
	kept := 0
	for i := 1; i+1 < len(corners); i++ {
		if b.AddTriangle(corners[0], corners[i], corners[i+1]) {
			kept++
		}
	}
	return kept
}

// Build validates and returns the mesh. The builder must not be reused.
func (b *Builder) Build() (*Mesh, error) {
	m, err := New(b.name, b.vertices, b.faces, b.attrs)
	if err != nil {
		return nil, err
	}
	m.dropped = b.dropped
	return m, nil
}
