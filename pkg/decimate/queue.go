package decimate

import "gonum.org/v1/gonum/spatial/r3"

// edgeEntry is a candidate collapse of edge (a, b), a < b. The version
// stamps record the endpoint versions the cost was computed against.
type edgeEntry struct {
	cost       float64
	a, b       int
	verA, verB uint32
	pos        r3.Vec
}

// edgeQueue is a min-heap of collapse candidates for container/heap,
// ordered by cost, then lower endpoint, then higher endpoint.
type edgeQueue []edgeEntry

func (q edgeQueue) Len() int { return len(q) }

func (q edgeQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	if q[i].a != q[j].a {
		return q[i].a < q[j].a
	}
	return q[i].b < q[j].b
}

func (q edgeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *edgeQueue) Push(x any) {
	*q = append(*q, x.(edgeEntry))
}

func (q *edgeQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}
