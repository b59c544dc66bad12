// Package meshtest builds small closed and open meshes for tests.
package meshtest

import (
	gomath "math"

	"github.com/Faultbox/meshslim/pkg/math"
	"github.com/Faultbox/meshslim/pkg/mesh"
)

// UnitCube returns the closed cube [0,1]^3 as 8 vertices and 12 outward
// facing triangles.
func UnitCube() *mesh.Mesh {
	b := mesh.NewBuilder("Cube")
	for i := 0; i < 8; i++ {
		b.AddVertex(mesh.Vertex{Position: math.Vec3{
			X: float32(i & 1),
			Y: float32((i >> 1) & 1),
			Z: float32((i >> 2) & 1),
		}})
	}
	// Each quad is listed counter-clockwise seen from outside.
	quads := [6][4]int{
		{0, 2, 3, 1}, // z=0
		{4, 5, 7, 6}, // z=1
		{0, 1, 5, 4}, // y=0
		{2, 6, 7, 3}, // y=1
		{0, 4, 6, 2}, // x=0
		{1, 3, 7, 5}, // x=1
	}
	for _, q := range quads {
		b.AddPolygon(q[:])
	}
	m, _ := b.Build()
	return m
}

// Grid returns an open n x n grid of unit quads in the XY plane, each split
// into two triangles facing +Z.
func Grid(n int) *mesh.Mesh {
	b := mesh.NewBuilder("Grid")
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			b.AddVertex(mesh.Vertex{Position: math.Vec3{X: float32(x), Y: float32(y)}})
		}
	}
	row := n + 1
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			i := y*row + x
			b.AddPolygon([]int{i, i + 1, i + row + 1, i + row})
		}
	}
	m, _ := b.Build()
	return m
}

// UVSphere returns a closed sphere of the given radius with outward facing
// triangles. stacks must be at least 2 and slices at least 3.
func UVSphere(radius float32, stacks, slices int) *mesh.Mesh {
	b := mesh.NewBuilder("Sphere")
	top := b.AddVertex(mesh.Vertex{Position: math.Vec3{Y: radius}})
	for s := 1; s < stacks; s++ {
		phi := gomath.Pi * float64(s) / float64(stacks)
		for k := 0; k < slices; k++ {
			theta := 2 * gomath.Pi * float64(k) / float64(slices)
			b.AddVertex(mesh.Vertex{Position: math.Vec3{
				X: radius * float32(gomath.Sin(phi)*gomath.Cos(theta)),
				Y: radius * float32(gomath.Cos(phi)),
				Z: -radius * float32(gomath.Sin(phi)*gomath.Sin(theta)),
			}})
		}
	}
	bottom := b.AddVertex(mesh.Vertex{Position: math.Vec3{Y: -radius}})

	ring := func(s, k int) int {
		return 1 + (s-1)*slices + (k % slices)
	}
	for k := 0; k < slices; k++ {
		b.AddTriangle(top, ring(1, k), ring(1, k+1))
	}
	for s := 1; s < stacks-1; s++ {
		for k := 0; k < slices; k++ {
			b.AddPolygon([]int{ring(s, k), ring(s+1, k), ring(s+1, k+1), ring(s, k+1)})
		}
	}
	for k := 0; k < slices; k++ {
		b.AddTriangle(bottom, ring(stacks-1, k+1), ring(stacks-1, k))
	}
	m, _ := b.Build()
	return m
}
