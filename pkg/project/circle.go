package project

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// Circle is a circular profile recovered from a view's projected
// lines. A bore seen axis-on yields a full circle; a fillet or
// half-round yields a partial arc with SpanDeg below the full-circle
// threshold.
type Circle struct {
	Center r2.Point
	Radius float64
	// SpanDeg is the angular coverage of the chained points around
	// the fitted center.
	SpanDeg float64
	Full    bool
	// Confidence is 1 minus the relative radial residual of the fit.
	Confidence float64
}

// CircleOptions holds the recovery tolerances.
type CircleOptions struct {
	// ChainTolerance is the endpoint distance within which two
	// segments count as connected. Default 0.01.
	ChainTolerance float64
	// MinSegments is the minimum chain length worth fitting; shorter
	// chains are rectangle corners, not arcs. Default 8.
	MinSegments int
	// ResidualTolerance is the maximum relative radial residual
	// (std/mean) for a fit to be accepted. Default 0.05.
	ResidualTolerance float64
	// FullSpanDeg is the coverage above which an arc counts as a full
	// circle. Default 315.
	FullSpanDeg float64
}

func (o CircleOptions) withDefaults() CircleOptions {
	if o.ChainTolerance <= 0 {
		o.ChainTolerance = 0.01
	}
	if o.MinSegments <= 0 {
		o.MinSegments = 8
	}
	if o.ResidualTolerance <= 0 {
		o.ResidualTolerance = 0.05
	}
	if o.FullSpanDeg <= 0 {
		o.FullSpanDeg = 315
	}
	return o
}

// DetectCircles chains the view's visible segments into connected
// runs and fits a circle to every run long enough to be an arc.
// Chains that fit poorly are dropped, not reported. The result order
// is deterministic for a given view.
func DetectCircles(v *View, opts CircleOptions) []Circle {
	opts = opts.withDefaults()

	// Quantize endpoints so segments sharing a corner map to the same
	// graph node.
	type cell struct{ x, y int64 }
	quant := func(p r2.Point) cell {
		return cell{
			x: int64(math.Round(p.X / opts.ChainTolerance)),
			y: int64(math.Round(p.Y / opts.ChainTolerance)),
		}
	}
	nodes := make(map[cell]int)
	var points []r2.Point
	nodeOf := func(p r2.Point) int {
		c := quant(p)
		if n, ok := nodes[c]; ok {
			return n
		}
		n := len(points)
		nodes[c] = n
		points = append(points, p)
		return n
	}

	// Union-find over endpoint nodes.
	var parent []int
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	segs := 0
	type edge struct{ a, b int }
	var edges []edge
	for _, l := range v.Lines {
		if !l.Visible {
			continue
		}
		a := nodeOf(l.Start)
		b := nodeOf(l.End)
		for len(parent) < len(points) {
			parent = append(parent, len(parent))
		}
		if a == b {
			continue
		}
		edges = append(edges, edge{a: a, b: b})
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
		segs++
	}
	if segs == 0 {
		return nil
	}

	segCount := make(map[int]int)
	for _, e := range edges {
		segCount[find(e.a)]++
	}
	members := make(map[int][]r2.Point)
	var order []int
	for i, p := range points {
		r := find(i)
		if _, ok := members[r]; !ok {
			order = append(order, r)
		}
		members[r] = append(members[r], p)
	}

	var out []Circle
	for _, root := range order {
		if segCount[root] < opts.MinSegments {
			continue
		}
		c, ok := fitCircle2D(members[root], opts)
		if ok {
			out = append(out, c)
		}
	}
	return out
}

// fitCircle2D runs a Kåsa least-squares fit over the chain's points
// and measures its angular coverage around the fitted center.
func fitCircle2D(pts []r2.Point, opts CircleOptions) (Circle, bool) {
	if len(pts) < 3 {
		return Circle{}, false
	}
	// x²+y² + ax + by + c = 0, solved by normal equations.
	var a11, a12, a13, a22, a23, a33 float64
	var b1, b2, b3 float64
	for _, p := range pts {
		z := -(p.X*p.X + p.Y*p.Y)
		a11 += p.X * p.X
		a12 += p.X * p.Y
		a13 += p.X
		a22 += p.Y * p.Y
		a23 += p.Y
		a33++
		b1 += p.X * z
		b2 += p.Y * z
		b3 += z
	}
	A := mat.NewDense(3, 3, []float64{a11, a12, a13, a12, a22, a23, a13, a23, a33})
	bv := mat.NewVecDense(3, []float64{b1, b2, b3})
	var sol mat.VecDense
	if err := sol.SolveVec(A, bv); err != nil {
		return Circle{}, false
	}
	cx := -sol.AtVec(0) / 2
	cy := -sol.AtVec(1) / 2
	rr := cx*cx + cy*cy - sol.AtVec(2)
	if rr <= 0 {
		return Circle{}, false
	}
	radius := math.Sqrt(rr)

	// The residual is judged against the mean centroid distance, not
	// the fitted radius: a near-straight chain fits an arbitrarily
	// large circle with tiny relative error, but its centroid spread
	// stays at chain scale and rejects it.
	n := float64(len(pts))
	var mx, my float64
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	mx /= n
	my /= n
	var scale float64
	for _, p := range pts {
		scale += math.Hypot(p.X-mx, p.Y-my)
	}
	scale /= n
	if scale < 1e-12 {
		return Circle{}, false
	}

	var sum2 float64
	angles := make([]float64, 0, len(pts))
	for _, p := range pts {
		dx, dy := p.X-cx, p.Y-cy
		res := math.Hypot(dx, dy) - radius
		sum2 += res * res
		angles = append(angles, math.Atan2(dy, dx))
	}
	rel := math.Sqrt(sum2/n) / scale
	if rel > opts.ResidualTolerance {
		return Circle{}, false
	}

	sort.Float64s(angles)
	maxGap := 2*math.Pi - angles[len(angles)-1] + angles[0]
	for i := 1; i < len(angles); i++ {
		if gap := angles[i] - angles[i-1]; gap > maxGap {
			maxGap = gap
		}
	}
	span := (2*math.Pi - maxGap) * 180 / math.Pi

	return Circle{
		Center:     r2.Point{X: cx, Y: cy},
		Radius:     radius,
		SpanDeg:    span,
		Full:       span >= opts.FullSpanDeg,
		Confidence: 1 - rel,
	}, true
}
