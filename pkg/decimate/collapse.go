package decimate

import (
	"container/heap"
	"context"
	gomath "math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/meshslim/pkg/math"
	"github.com/Faultbox/meshslim/pkg/mesh"
)

// degenerateTolerance is the fraction of its former doubled area below
// which a moved face counts as collapsed to zero area.
const degenerateTolerance = 1e-9

// collapser holds the working state of one simplification run. Removed
// vertices alias their survivor through parent; faces are tombstoned in
// place so face order survives compaction.
type collapser struct {
	cosFlip float64

	verts     []mesh.Vertex
	quadrics  []quadric
	faces     []mesh.Face
	faceLive  []bool
	liveFaces int
	vertFaces [][]int
	parent    []int
	version   []uint32

	// blocked edges have no queue entry until a collapse touches their
	// neighbourhood. Only looked up, never ranged over.
	blocked map[mesh.Edge]struct{}
	queue   edgeQueue

	collapses int
	rejected  int
}

func newCollapser(m *mesh.Mesh, opts Options) *collapser {
	adj := m.Adjacency()
	n := m.VertexCount()

	c := &collapser{
		cosFlip:   gomath.Cos(opts.MaxFlipAngle * gomath.Pi / 180),
		verts:     append([]mesh.Vertex(nil), m.Vertices()...),
		quadrics:  make([]quadric, n),
		faces:     append([]mesh.Face(nil), m.Faces()...),
		faceLive:  make([]bool, m.FaceCount()),
		liveFaces: m.FaceCount(),
		vertFaces: make([][]int, n),
		parent:    make([]int, n),
		version:   make([]uint32, n),
		blocked:   make(map[mesh.Edge]struct{}),
	}
	for f := range c.faceLive {
		c.faceLive[f] = true
	}
	for v := 0; v < n; v++ {
		c.parent[v] = v
		c.vertFaces[v] = append([]int(nil), adj.VertexFaces(v)...)
	}

	c.initQuadrics(adj, opts.BoundaryWeight)

	edges := adj.Edges()
	c.queue = make(edgeQueue, 0, len(edges))
	for _, e := range edges {
		c.queue = append(c.queue, c.entry(e.A, e.B))
	}
	heap.Init(&c.queue)
	return c
}

func (c *collapser) pos(v int) r3.Vec {
	p := c.verts[v].Position
	return r3.Vec{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
}

// initQuadrics accumulates area-weighted face planes on every vertex and
// adds a perpendicular constraint plane along each boundary edge.
func (c *collapser) initQuadrics(adj *mesh.Adjacency, boundaryWeight float64) {
	for _, f := range c.faces {
		p0 := c.pos(f[0])
		n := r3.Cross(r3.Sub(c.pos(f[1]), p0), r3.Sub(c.pos(f[2]), p0))
		l := r3.Norm(n)
		if l == 0 {
			continue
		}
		unit := r3.Scale(1/l, n)
		q := planeQuadric(unit, -r3.Dot(unit, p0), l/2)
		for _, v := range f {
			c.quadrics[v].add(q)
		}
	}

	for _, e := range adj.BoundaryEdges() {
		f := c.faces[adj.EdgeFaces(e)[0]]
		p0 := c.pos(f[0])
		n := r3.Cross(r3.Sub(c.pos(f[1]), p0), r3.Sub(c.pos(f[2]), p0))
		pa, pb := c.pos(e.A), c.pos(e.B)
		edge := r3.Sub(pb, pa)
		side := r3.Cross(edge, n)
		l := r3.Norm(side)
		if l == 0 {
			continue
		}
		side = r3.Scale(1/l, side)
		q := planeQuadric(side, -r3.Dot(side, pa), boundaryWeight*r3.Norm2(edge))
		c.quadrics[e.A].add(q)
		c.quadrics[e.B].add(q)
	}
}

// entry computes the cost and target position for collapsing (a, b). When
// the quadric has no stable optimum the midpoint and both endpoints are
// tried, preferring them in that order on equal cost.
func (c *collapser) entry(a, b int) edgeEntry {
	if a > b {
		a, b = b, a
	}
	q := c.quadrics[a].sum(c.quadrics[b])

	p, ok := q.optimum()
	var cost float64
	if ok {
		p = roundTrip(p)
		cost = q.eval(p)
	} else {
		pa, pb := c.pos(a), c.pos(b)
		candidates := [3]r3.Vec{roundTrip(r3.Scale(0.5, r3.Add(pa, pb))), pa, pb}
		p, cost = candidates[0], q.eval(candidates[0])
		for _, cand := range candidates[1:] {
			if e := q.eval(cand); e < cost {
				p, cost = cand, e
			}
		}
	}

	return edgeEntry{
		cost: gomath.Max(cost, 0),
		a:    a,
		b:    b,
		verA: c.version[a],
		verB: c.version[b],
		pos:  p,
	}
}

// roundTrip snaps p to float32 precision so validity checks see the
// position that will be stored.
func roundTrip(p r3.Vec) r3.Vec {
	return r3.Vec{X: float64(float32(p.X)), Y: float64(float32(p.Y)), Z: float64(float32(p.Z))}
}

func (c *collapser) find(v int) int {
	for c.parent[v] != v {
		c.parent[v] = c.parent[c.parent[v]]
		v = c.parent[v]
	}
	return v
}

// run pops candidates until the live face count reaches target, the queue
// drains, or ctx is done.
func (c *collapser) run(ctx context.Context, target int) Status {
	for c.liveFaces > target && c.queue.Len() > 0 {
		if ctx.Err() != nil {
			return StatusCancelled
		}
		e := heap.Pop(&c.queue).(edgeEntry)

		a, b := c.find(e.a), c.find(e.b)
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		if _, ok := c.blocked[mesh.NewEdge(a, b)]; ok {
			continue
		}

		shared := c.sharedFaces(a, b)
		if len(shared) == 0 {
			continue
		}
		if a != e.a || b != e.b || c.version[a] != e.verA || c.version[b] != e.verB {
			heap.Push(&c.queue, c.entry(a, b))
			continue
		}

		if p, ok := c.collapsePosition(a, b, shared, e.pos); ok {
			c.collapse(a, b, p)
			continue
		}
		c.blocked[mesh.NewEdge(a, b)] = struct{}{}
		c.rejected++
	}
	return StatusCompleted
}

// liveFacesOf returns the live faces around v.
func (c *collapser) liveFacesOf(v int) []int {
	var out []int
	for _, f := range c.vertFaces[v] {
		if c.faceLive[f] {
			out = append(out, f)
		}
	}
	return out
}

func (c *collapser) sharedFaces(a, b int) []int {
	var out []int
	for _, f := range c.vertFaces[a] {
		if c.faceLive[f] && hasVertex(c.faces[f], b) {
			out = append(out, f)
		}
	}
	return out
}

// neighbors returns the vertices sharing a live face with v, ascending.
func (c *collapser) neighbors(v int) []int {
	var out []int
	for _, f := range c.liveFacesOf(v) {
		for _, u := range c.faces[f] {
			if u != v {
				out = append(out, u)
			}
		}
	}
	sort.Ints(out)
	return dedup(out)
}

func (c *collapser) onBoundary(v int, nbrs []int) bool {
	for _, u := range nbrs {
		if len(c.sharedFaces(v, u)) != 2 {
			return true
		}
	}
	return false
}

// collapsePosition returns the first of the optimal position and the two
// endpoints that keeps the surface valid.
func (c *collapser) collapsePosition(a, b int, shared []int, opt r3.Vec) (r3.Vec, bool) {
	if !c.linkOK(a, b, shared) {
		return r3.Vec{}, false
	}
	for _, p := range [3]r3.Vec{opt, c.pos(a), c.pos(b)} {
		if c.geometryOK(a, b, p) {
			return p, true
		}
	}
	return r3.Vec{}, false
}

// linkOK is the topological half of the validity test: the vertices
// adjacent to both endpoints must be exactly the apexes of the faces on the
// edge, an interior edge may not join two boundary vertices, and the merged
// vertex must keep a face and, on an interior edge, a link of at least
// three vertices.
func (c *collapser) linkOK(a, b int, shared []int) bool {
	if len(shared) > 2 {
		return false
	}

	apexes := make([]int, 0, 2)
	for _, f := range shared {
		for _, v := range c.faces[f] {
			if v != a && v != b {
				apexes = append(apexes, v)
			}
		}
	}
	sort.Ints(apexes)

	na, nb := c.neighbors(a), c.neighbors(b)
	common := intersect(na, nb)
	if !equalInts(common, apexes) {
		return false
	}

	if len(shared) == 2 {
		if c.onBoundary(a, na) && c.onBoundary(b, nb) {
			return false
		}
		if len(na)+len(nb)-len(common)-2 < 3 {
			return false
		}
	}
	return len(c.liveFacesOf(a))+len(c.liveFacesOf(b))-2*len(shared) > 0
}

// geometryOK rejects p if any face that survives the collapse would turn
// further than the flip limit or lose its area.
func (c *collapser) geometryOK(a, b int, p r3.Vec) bool {
	for _, v := range [2]int{a, b} {
		for _, f := range c.vertFaces[v] {
			if !c.faceLive[f] {
				continue
			}
			face := c.faces[f]
			if hasVertex(face, a) && hasVertex(face, b) {
				continue
			}

			var before, after [3]r3.Vec
			for i, u := range face {
				before[i] = c.pos(u)
				after[i] = before[i]
				if u == a || u == b {
					after[i] = p
				}
			}
			n0, n1 := triangleNormal(before), triangleNormal(after)
			l0, l1 := r3.Norm(n0), r3.Norm(n1)
			if l0 == 0 {
				continue
			}
			if l1 <= l0*degenerateTolerance {
				return false
			}
			if r3.Dot(n0, n1)/(l0*l1) < c.cosFlip {
				return false
			}
		}
	}
	return true
}

// collapse merges b into a at p. Faces holding both endpoints die, the
// rest of b's faces are rewired to a.
func (c *collapser) collapse(a, b int, p r3.Vec) {
	pa, pb := c.pos(a), c.pos(b)
	t := 0.0
	if ab := r3.Sub(pb, pa); r3.Norm2(ab) > 0 {
		t = gomath.Min(gomath.Max(r3.Dot(r3.Sub(p, pa), ab)/r3.Norm2(ab), 0), 1)
	}
	position := math.Vec3{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
	c.verts[a] = mergeVertex(c.verts[a], c.verts[b], float32(t), position)

	// Edges of b that were parked keep their state under their new name.
	for _, x := range c.neighbors(b) {
		if x == a {
			continue
		}
		key := mesh.NewEdge(b, x)
		if _, ok := c.blocked[key]; ok {
			delete(c.blocked, key)
			c.blocked[mesh.NewEdge(a, x)] = struct{}{}
		}
	}

	merged := make([]int, 0, len(c.vertFaces[a])+len(c.vertFaces[b]))
	for _, f := range c.vertFaces[a] {
		if !c.faceLive[f] {
			continue
		}
		if hasVertex(c.faces[f], b) {
			c.faceLive[f] = false
			c.liveFaces--
			continue
		}
		merged = append(merged, f)
	}
	for _, f := range c.vertFaces[b] {
		if !c.faceLive[f] {
			continue
		}
		for i, u := range c.faces[f] {
			if u == b {
				c.faces[f][i] = a
			}
		}
		merged = append(merged, f)
	}
	sort.Ints(merged)

	c.vertFaces[a] = merged
	c.vertFaces[b] = nil
	c.quadrics[a].add(c.quadrics[b])
	c.parent[b] = a
	c.version[a]++
	c.collapses++

	c.unblockAround(a)
}

// unblockAround requeues parked edges on faces touching the 1-ring of v.
func (c *collapser) unblockAround(v int) {
	if len(c.blocked) == 0 {
		return
	}
	for _, f := range c.liveFacesOf(v) {
		for _, u := range c.faces[f] {
			for _, g := range c.liveFacesOf(u) {
				face := c.faces[g]
				for k := 0; k < 3; k++ {
					e := mesh.NewEdge(face[k], face[(k+1)%3])
					if _, ok := c.blocked[e]; ok {
						delete(c.blocked, e)
						heap.Push(&c.queue, c.entry(e.A, e.B))
					}
				}
			}
		}
	}
}

// compact returns the surviving geometry: referenced vertices in ascending
// original order and live faces in original order.
func (c *collapser) compact(name string, attrs mesh.Attributes) (*mesh.Mesh, error) {
	used := make([]bool, len(c.verts))
	for f, face := range c.faces {
		if c.faceLive[f] {
			for _, v := range face {
				used[v] = true
			}
		}
	}

	remap := make([]int, len(c.verts))
	verts := make([]mesh.Vertex, 0, len(c.verts))
	for v, ok := range used {
		if ok {
			remap[v] = len(verts)
			verts = append(verts, c.verts[v])
		}
	}

	faces := make([]mesh.Face, 0, c.liveFaces)
	for f, face := range c.faces {
		if c.faceLive[f] {
			faces = append(faces, mesh.Face{remap[face[0]], remap[face[1]], remap[face[2]]})
		}
	}
	return mesh.New(name, verts, faces, attrs)
}

// mergeVertex interpolates the attributes of a and b at t along the edge.
func mergeVertex(a, b mesh.Vertex, t float32, p math.Vec3) mesh.Vertex {
	out := mesh.Vertex{
		Position: p,
		TexCoord: a.TexCoord.Lerp(b.TexCoord, t),
		Normal:   a.Normal,
	}
	if n := a.Normal.Lerp(b.Normal, t); n.Length() > 0 {
		out.Normal = n.Normalize()
	}
	for i := range out.Color {
		out.Color[i] = a.Color[i] + (b.Color[i]-a.Color[i])*t
	}
	return out
}

func triangleNormal(p [3]r3.Vec) r3.Vec {
	return r3.Cross(r3.Sub(p[1], p[0]), r3.Sub(p[2], p[0]))
}

func hasVertex(f mesh.Face, v int) bool {
	return f[0] == v || f[1] == v || f[2] == v
}

func dedup(s []int) []int {
	if len(s) == 0 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// intersect returns the common elements of two ascending slices.
func intersect(a, b []int) []int {
	var out []int
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
