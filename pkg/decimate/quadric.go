package decimate

import (
	gomath "math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// detTolerance is the smallest |det| accepted for the optimum solve,
// relative to the cube of the largest diagonal term.
const detTolerance = 1e-10

// quadric is a symmetric 4x4 error matrix stored as its upper triangle:
// a², ab, ac, ad, b², bc, bd, c², cd, d².
type quadric [10]float64

// planeQuadric returns w·ppᵀ for the plane n·x + d = 0 with unit n.
func planeQuadric(n r3.Vec, d, w float64) quadric {
	a, b, c := n.X, n.Y, n.Z
	return quadric{
		w * a * a, w * a * b, w * a * c, w * a * d,
		w * b * b, w * b * c, w * b * d,
		w * c * c, w * c * d,
		w * d * d,
	}
}

func (q *quadric) add(o quadric) {
	for i := range q {
		q[i] += o[i]
	}
}

func (q quadric) sum(o quadric) quadric {
	q.add(o)
	return q
}

// eval returns vᵀQv for v = (p, 1).
func (q quadric) eval(p r3.Vec) float64 {
	x, y, z := p.X, p.Y, p.Z
	return q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
}

// optimum solves for the position minimising the quadric. It reports false
// when the 3x3 system is singular within tolerance.
func (q quadric) optimum() (r3.Vec, bool) {
	scale := gomath.Max(gomath.Abs(q[0]), gomath.Max(gomath.Abs(q[4]), gomath.Abs(q[7])))
	if scale == 0 {
		return r3.Vec{}, false
	}

	a := mat.NewSymDense(3, []float64{
		q[0], q[1], q[2],
		q[1], q[4], q[5],
		q[2], q[5], q[7],
	})
	if gomath.Abs(mat.Det(a)) < detTolerance*scale*scale*scale {
		return r3.Vec{}, false
	}

	var x mat.VecDense
	if err := x.SolveVec(a, mat.NewVecDense(3, []float64{-q[3], -q[6], -q[8]})); err != nil {
		return r3.Vec{}, false
	}
	p := r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	if !finite(p) {
		return r3.Vec{}, false
	}
	return p, true
}

func finite(p r3.Vec) bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if gomath.IsNaN(v) || gomath.IsInf(v, 0) {
			return false
		}
	}
	return true
}
