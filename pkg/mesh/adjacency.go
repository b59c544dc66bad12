package mesh

import (
	"fmt"
	"sort"
)

// Edge is an unordered pair of vertex indices, stored with A < B.
type Edge struct {
	A, B int
}

// NewEdge returns the edge between a and b in canonical order.
func NewEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// String returns the edge as "A-B".
func (e Edge) String() string {
	return fmt.Sprintf("%d-%d", e.A, e.B)
}

// Less orders edges by lower endpoint, then higher endpoint.
func (e Edge) Less(other Edge) bool {
	if e.A != other.A {
		return e.A < other.A
	}
	return e.B < other.B
}

// Adjacency is the derived incidence index of a mesh. All lists are sorted,
// so iteration order is deterministic.
type Adjacency struct {
	faces       []Face
	vertexFaces [][]int
	edges       []Edge
	edgeFaces   map[Edge][]int
}

func buildAdjacency(vertexCount int, faces []Face) *Adjacency {
	adj := &Adjacency{
		faces:       faces,
		vertexFaces: make([][]int, vertexCount),
		edgeFaces:   make(map[Edge][]int, len(faces)*3/2),
	}

	for fi, f := range faces {
		for k := 0; k < 3; k++ {
			adj.vertexFaces[f[k]] = append(adj.vertexFaces[f[k]], fi)

			e := NewEdge(f[k], f[(k+1)%3])
			if _, seen := adj.edgeFaces[e]; !seen {
				adj.edges = append(adj.edges, e)
			}
			adj.edgeFaces[e] = append(adj.edgeFaces[e], fi)
		}
	}

	sort.Slice(adj.edges, func(i, j int) bool {
		return adj.edges[i].Less(adj.edges[j])
	})
	return adj
}

// VertexFaces returns the faces incident to vertex v in ascending order.
func (a *Adjacency) VertexFaces(v int) []int {
	return a.vertexFaces[v]
}

// Edges returns every edge of the mesh in ascending order.
func (a *Adjacency) Edges() []Edge {
	return a.edges
}

// EdgeFaces returns the faces bordering e in ascending order, or nil if e is
// not an edge of the mesh.
func (a *Adjacency) EdgeFaces(e Edge) []int {
	return a.edgeFaces[NewEdge(e.A, e.B)]
}

// BoundaryEdges returns the edges bordered by exactly one face.
func (a *Adjacency) BoundaryEdges() []Edge {
	var out []Edge
	for _, e := range a.edges {
		if len(a.edgeFaces[e]) == 1 {
			out = append(out, e)
		}
	}
	return out
}

// NonManifoldEdges returns the edges bordered by more than two faces.
func (a *Adjacency) NonManifoldEdges() []Edge {
	var out []Edge
	for _, e := range a.edges {
		if len(a.edgeFaces[e]) > 2 {
			out = append(out, e)
		}
	}
	return out
}

// IsClosed reports whether the mesh is watertight: it has at least one edge
// and every edge borders exactly two faces.
func (a *Adjacency) IsClosed() bool {
	if len(a.edges) == 0 {
		return false
	}
	for _, e := range a.edges {
		if len(a.edgeFaces[e]) != 2 {
			return false
		}
	}
	return true
}
