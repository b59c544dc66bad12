package meshtest

import (
	"testing"

	"github.com/Faultbox/meshslim/pkg/math"
)

func TestUnitCube(t *testing.T) {
	m := UnitCube()
	if m.VertexCount() != 8 || m.FaceCount() != 12 {
		t.Fatalf("cube has %d vertices / %d faces, want 8 / 12", m.VertexCount(), m.FaceCount())
	}

	adj := m.Adjacency()
	if !adj.IsClosed() {
		t.Error("cube should be closed")
	}
	if got := len(adj.Edges()); got != 18 {
		t.Errorf("cube has %d edges, want 18", got)
	}

	// Every face normal points away from the cube center.
	center := math.Vec3{X: 0.5, Y: 0.5, Z: 0.5}
	for i, f := range m.Faces() {
		n := m.FaceNormal(i)
		if n.Dot(m.Vertices()[f[0]].Position.Sub(center)) <= 0 {
			t.Errorf("face %d %v points inward", i, f)
		}
	}

	if area := m.SurfaceArea(); area < 5.9999 || area > 6.0001 {
		t.Errorf("SurfaceArea() = %v, want 6", area)
	}

	b := m.Bounds()
	if b.Min != (math.Vec3{}) || b.Max != (math.Vec3{X: 1, Y: 1, Z: 1}) {
		t.Errorf("Bounds() = %+v, want [0,1]^3", b)
	}
}

func TestGrid_Boundary(t *testing.T) {
	m := Grid(2)
	adj := m.Adjacency()

	if adj.IsClosed() {
		t.Error("grid should not be closed")
	}
	if got := len(adj.BoundaryEdges()); got != 8 {
		t.Errorf("2x2 grid has %d boundary edges, want 8", got)
	}
	if got := len(adj.NonManifoldEdges()); got != 0 {
		t.Errorf("grid has %d non-manifold edges, want 0", got)
	}
}

func TestUVSphere_Closed(t *testing.T) {
	m := UVSphere(1, 8, 12)
	wantVerts := 2 + 7*12
	wantFaces := 2*12 + 2*6*12
	if m.VertexCount() != wantVerts || m.FaceCount() != wantFaces {
		t.Fatalf("sphere has %d/%d, want %d/%d", m.VertexCount(), m.FaceCount(), wantVerts, wantFaces)
	}
	if !m.Adjacency().IsClosed() {
		t.Error("sphere should be closed")
	}
	for i, f := range m.Faces() {
		if m.FaceNormal(i).Dot(m.Vertices()[f[0]].Position) <= 0 {
			t.Errorf("face %d points inward", i)
			break
		}
	}
}
