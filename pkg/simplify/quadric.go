package simplify

import (
	"gonum.org/v1/gonum/mat"

	"github.com/golang/geo/r3"
)

// quadric is a symmetric 4x4 error quadric stored as its upper
// triangle. v^T Q v measures the squared distance of v from the set
// of planes accumulated into the quadric.
type quadric struct {
	q11, q12, q13, q14 float64
	q22, q23, q24      float64
	q33, q34           float64
	q44                float64
}

// planeQuadric builds the quadric of the plane through point p with
// unit normal n, weighted by w (the supporting triangle's area).
func planeQuadric(n r3.Vector, p r3.Vector, w float64) quadric {
	d := -n.Dot(p)
	return quadric{
		q11: w * n.X * n.X, q12: w * n.X * n.Y, q13: w * n.X * n.Z, q14: w * n.X * d,
		q22: w * n.Y * n.Y, q23: w * n.Y * n.Z, q24: w * n.Y * d,
		q33: w * n.Z * n.Z, q34: w * n.Z * d,
		q44: w * d * d,
	}
}

func (q quadric) add(o quadric) quadric {
	return quadric{
		q11: q.q11 + o.q11, q12: q.q12 + o.q12, q13: q.q13 + o.q13, q14: q.q14 + o.q14,
		q22: q.q22 + o.q22, q23: q.q23 + o.q23, q24: q.q24 + o.q24,
		q33: q.q33 + o.q33, q34: q.q34 + o.q34,
		q44: q.q44 + o.q44,
	}
}

// eval returns v^T Q v.
func (q quadric) eval(v r3.Vector) float64 {
	return q.q11*v.X*v.X + 2*q.q12*v.X*v.Y + 2*q.q13*v.X*v.Z + 2*q.q14*v.X +
		q.q22*v.Y*v.Y + 2*q.q23*v.Y*v.Z + 2*q.q24*v.Y +
		q.q33*v.Z*v.Z + 2*q.q34*v.Z +
		q.q44
}

// optimal solves for the point minimizing v^T Q v. ok is false when
// the 3x3 system is singular (flat or linear neighborhoods), in which
// case the caller falls back to candidate points.
func (q quadric) optimal() (r3.Vector, bool) {
	a := mat.NewDense(3, 3, []float64{
		q.q11, q.q12, q.q13,
		q.q12, q.q22, q.q23,
		q.q13, q.q23, q.q33,
	})
	b := mat.NewVecDense(3, []float64{-q.q14, -q.q24, -q.q34})
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return r3.Vector{}, false
	}
	return r3.Vector{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}, true
}
