// Package feature groups a mesh's triangles into recognizable
// geometry: planar faces found by region growing and cylindrical
// surfaces found by axis fitting. From those it derives the
// dimensionable candidates (edge lengths, bore diameters, face
// angles) the dimension system annotates. Low-confidence fits are
// dropped, never reported: a false dimension is worse than a missing
// one.
package feature

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/robertoSreis/TechDraw/pkg/analyze"
	"github.com/robertoSreis/TechDraw/pkg/mesh"
)

// Options holds the detection tolerances.
type Options struct {
	// PlanarityTolerance is the maximum normal deviation, in degrees,
	// for a triangle to join a planar region. Default 0.5.
	PlanarityTolerance float64
	// CylinderMinTriangles is the minimum member count for a group to
	// be considered a cylindrical surface. Default 8.
	CylinderMinTriangles int
	// CylinderResidualTolerance is the maximum relative radial
	// residual (std/mean) for a cylinder fit to be accepted.
	// Default 0.05.
	CylinderResidualTolerance float64
	// MinEdgeLength filters out micro edges from length candidates.
	// Default 0.01.
	MinEdgeLength float64
}

func (o Options) withDefaults() Options {
	if o.PlanarityTolerance <= 0 {
		o.PlanarityTolerance = 0.5
	}
	if o.CylinderMinTriangles <= 0 {
		o.CylinderMinTriangles = 8
	}
	if o.CylinderResidualTolerance <= 0 {
		o.CylinderResidualTolerance = 0.05
	}
	if o.MinEdgeLength <= 0 {
		o.MinEdgeLength = 0.01
	}
	return o
}

// PlanarFace is a maximal set of coplanar-adjacent triangles. It
// references mesh triangles by index and owns none of them.
type PlanarFace struct {
	Triangles []int
	Normal    r3.Vector
	Offset    float64 // plane equation: Normal·p = Offset
	// Boundary lists the edges whose other side is outside the region.
	Boundary []mesh.Edge
}

// fullCircleSpanDeg is the angular coverage above which a cylindrical
// surface counts as wrapping all the way around.
const fullCircleSpanDeg = 315

// Cylinder is a fitted cylindrical surface (bore, boss or fillet).
type Cylinder struct {
	Axis      r3.Vector // unit direction
	Point     r3.Vector // a point on the axis
	Radius    float64
	Triangles []int
	// SpanDeg is the angular coverage of the surface around the axis.
	// A bore wraps the full 360; a fillet or half-round covers less.
	SpanDeg float64
	// Full marks surfaces that wrap (nearly) all the way around.
	// Partial arcs are annotated by radius, full circles by diameter.
	Full bool
	// Confidence is 1 minus the relative radial residual of the fit.
	Confidence float64
}

// CandidateKind enumerates the dimensionable candidate types.
type CandidateKind int

const (
	EdgeLength CandidateKind = iota
	Diameter
	FaceAngle
)

// Candidate is one dimensionable item extracted from the mesh.
type Candidate struct {
	Kind CandidateKind

	// EdgeLength fields.
	Edge   mesh.Edge
	Length float64

	// Diameter fields: index into Features.Cylinders.
	Cylinder int

	// FaceAngle fields: indices into Features.Planes plus the angle in
	// degrees.
	FaceA, FaceB int
	AngleDeg     float64
}

// Features is the read-only detection result for one mesh.
type Features struct {
	Planes     []PlanarFace
	Cylinders  []Cylinder
	Candidates []Candidate
}

// Detect runs planar and cylindrical detection over m and derives the
// dimensionable candidates. The mesh and analysis are read-only.
func Detect(m *mesh.Mesh, an *analyze.Analysis, opts Options) *Features {
	opts = opts.withDefaults()
	f := &Features{}

	planeOf := f.growPlanarFaces(m, an, opts)
	f.fitCylinders(m, an, opts)
	f.collectCandidates(m, an, opts, planeOf)
	return f
}

// growPlanarFaces flood-fills coplanar-adjacent triangles into
// regions. Traversal uses an explicit worklist so stack depth stays
// bounded on large meshes. Returns a triangle-index -> plane-index
// map (-1 where the triangle joined no multi-triangle plane record).
func (f *Features) growPlanarFaces(m *mesh.Mesh, an *analyze.Analysis, opts Options) []int {
	planeOf := make([]int, m.TriangleCount())
	for i := range planeOf {
		planeOf[i] = -1
	}
	visited := make([]bool, m.TriangleCount())
	cosTol := math.Cos(opts.PlanarityTolerance * math.Pi / 180)

	for seed := 0; seed < m.TriangleCount(); seed++ {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		region := []int{seed}
		seedNormal := m.Triangles[seed].Normal

		work := []int{seed}
		for len(work) > 0 {
			ti := work[len(work)-1]
			work = work[:len(work)-1]
			for _, tj := range an.Adjacency[ti] {
				if visited[tj] {
					continue
				}
				// Compare against the seed normal, not the neighbour's,
				// so a gently curved strip cannot creep into one region.
				if m.Triangles[tj].Normal.Dot(seedNormal) < cosTol {
					continue
				}
				visited[tj] = true
				region = append(region, tj)
				work = append(work, tj)
			}
		}

		face := PlanarFace{Triangles: region, Normal: seedNormal}
		var offset float64
		for _, ti := range region {
			offset += seedNormal.Dot(m.TriangleCentroid(ti))
		}
		face.Offset = offset / float64(len(region))
		face.Boundary = regionBoundary(m, region)

		idx := len(f.Planes)
		f.Planes = append(f.Planes, face)
		for _, ti := range region {
			planeOf[ti] = idx
		}
	}
	return planeOf
}

// regionBoundary returns the edges of the region with exactly one
// adjacent triangle inside it.
func regionBoundary(m *mesh.Mesh, region []int) []mesh.Edge {
	inside := make(map[int]bool, len(region))
	for _, ti := range region {
		inside[ti] = true
	}
	var boundary []mesh.Edge
	seen := make(map[mesh.Edge]bool)
	for _, ti := range region {
		t := m.Triangles[ti]
		for i := 0; i < 3; i++ {
			e := mesh.MakeEdge(t.V[i], t.V[(i+1)%3])
			if seen[e] {
				continue
			}
			seen[e] = true
			in := 0
			for _, tj := range m.AdjacentTriangles(e) {
				if inside[tj] {
					in++
				}
			}
			if in == 1 {
				boundary = append(boundary, e)
			}
		}
	}
	return boundary
}

// fitCylinders groups triangles connected across non-sharp edges and
// fits an axis and radius to each group large and curved enough to be
// a cylindrical surface. Groups failing the residual tolerance are
// discarded.
func (f *Features) fitCylinders(m *mesh.Mesh, an *analyze.Analysis, opts Options) {
	visited := make([]bool, m.TriangleCount())

	for seed := 0; seed < m.TriangleCount(); seed++ {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		group := []int{seed}
		work := []int{seed}
		for len(work) > 0 {
			ti := work[len(work)-1]
			work = work[:len(work)-1]
			t := m.Triangles[ti]
			for i := 0; i < 3; i++ {
				e := mesh.MakeEdge(t.V[i], t.V[(i+1)%3])
				if an.Classify(e) == analyze.Sharp {
					continue
				}
				for _, tj := range m.AdjacentTriangles(e) {
					if tj == ti || visited[tj] {
						continue
					}
					visited[tj] = true
					group = append(group, tj)
					work = append(work, tj)
				}
			}
		}

		if len(group) < opts.CylinderMinTriangles {
			continue
		}
		if isFlatGroup(m, group, opts.PlanarityTolerance) {
			continue
		}
		if cyl, ok := fitCylinder(m, group, opts.CylinderResidualTolerance); ok {
			f.Cylinders = append(f.Cylinders, cyl)
		}
	}
}

// isFlatGroup reports whether all normals in the group agree within
// the planarity tolerance, i.e. the group is a plane, not a curve.
func isFlatGroup(m *mesh.Mesh, group []int, tolDeg float64) bool {
	cosTol := math.Cos(tolDeg * math.Pi / 180)
	first := m.Triangles[group[0]].Normal
	for _, ti := range group[1:] {
		if m.Triangles[ti].Normal.Dot(first) < cosTol {
			return false
		}
	}
	return true
}

// fitCylinder estimates axis, center and radius for a group of
// triangles. The axis is the direction most orthogonal to every face
// normal (smallest eigenvector of the normal second-moment matrix);
// the radius comes from a least-squares circle fit of the group's
// vertices projected onto the plane perpendicular to the axis.
func fitCylinder(m *mesh.Mesh, group []int, residualTol float64) (Cylinder, bool) {
	var sxx, sxy, sxz, syy, syz, szz float64
	for _, ti := range group {
		n := m.Triangles[ti].Normal
		sxx += n.X * n.X
		sxy += n.X * n.Y
		sxz += n.X * n.Z
		syy += n.Y * n.Y
		syz += n.Y * n.Z
		szz += n.Z * n.Z
	}
	moment := mat.NewSymDense(3, []float64{
		sxx, sxy, sxz,
		sxy, syy, syz,
		sxz, syz, szz,
	})
	var eig mat.EigenSym
	if !eig.Factorize(moment, true) {
		return Cylinder{}, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// Ascending eigenvalues: column 0 is the direction the normals
	// span least, i.e. the cylinder axis.
	axis := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	axis = axis.Normalize()

	// Gather the group's distinct vertices; they lie exactly on the
	// cylinder surface, unlike triangle centroids.
	seen := make(map[int]bool)
	var pts []r3.Vector
	for _, ti := range group {
		for _, vi := range m.Triangles[ti].V {
			if !seen[vi] {
				seen[vi] = true
				pts = append(pts, m.Vertices[vi])
			}
		}
	}

	origin := pts[0]
	u := perpendicular(axis)
	w := axis.Cross(u)

	// Kåsa circle fit in the (u, w) plane: x²+y² + ax + by + c = 0.
	var a11, a12, a13, a22, a23, a33 float64
	var b1, b2, b3 float64
	for _, p := range pts {
		d := p.Sub(origin)
		x := d.Dot(u)
		y := d.Dot(w)
		z := -(x*x + y*y)
		a11 += x * x
		a12 += x * y
		a13 += x
		a22 += y * y
		a23 += y
		a33++
		b1 += x * z
		b2 += y * z
		b3 += z
	}
	A := mat.NewDense(3, 3, []float64{a11, a12, a13, a12, a22, a23, a13, a23, a33})
	bv := mat.NewVecDense(3, []float64{b1, b2, b3})
	var sol mat.VecDense
	if err := sol.SolveVec(A, bv); err != nil {
		return Cylinder{}, false
	}
	cx := -sol.AtVec(0) / 2
	cy := -sol.AtVec(1) / 2
	r2 := cx*cx + cy*cy - sol.AtVec(2)
	if r2 <= 0 {
		return Cylinder{}, false
	}
	radius := math.Sqrt(r2)

	// Radial residual of every vertex against the fitted circle.
	var sum, sum2 float64
	for _, p := range pts {
		d := p.Sub(origin)
		x := d.Dot(u) - cx
		y := d.Dot(w) - cy
		dist := math.Hypot(x, y)
		sum += dist
		sum2 += dist * dist
	}
	n := float64(len(pts))
	meanR := sum / n
	variance := sum2/n - meanR*meanR
	if variance < 0 {
		variance = 0
	}
	rel := math.Sqrt(variance) / meanR
	if rel > residualTol {
		return Cylinder{}, false
	}

	span := angularSpan(m, group, u, w)
	return Cylinder{
		Axis:       axis,
		Point:      origin.Add(u.Mul(cx)).Add(w.Mul(cy)),
		Radius:     radius,
		Triangles:  group,
		SpanDeg:    span,
		Full:       span >= fullCircleSpanDeg,
		Confidence: 1 - rel,
	}, true
}

// angularSpan measures how far around the axis the group's facet
// normals reach: 360 minus the largest angular gap between them.
func angularSpan(m *mesh.Mesh, group []int, u, w r3.Vector) float64 {
	angles := make([]float64, 0, len(group))
	for _, ti := range group {
		n := m.Triangles[ti].Normal
		x, y := n.Dot(u), n.Dot(w)
		if math.Hypot(x, y) < 1e-12 {
			continue
		}
		angles = append(angles, math.Atan2(y, x))
	}
	if len(angles) < 2 {
		return 0
	}
	sort.Float64s(angles)
	maxGap := 2*math.Pi - angles[len(angles)-1] + angles[0]
	for i := 1; i < len(angles); i++ {
		if gap := angles[i] - angles[i-1]; gap > maxGap {
			maxGap = gap
		}
	}
	return (2*math.Pi - maxGap) * 180 / math.Pi
}

// perpendicular returns a unit vector perpendicular to v.
func perpendicular(v r3.Vector) r3.Vector {
	ref := r3.Vector{X: 1}
	if math.Abs(v.X) > 0.9 {
		ref = r3.Vector{Y: 1}
	}
	return v.Cross(ref).Normalize()
}

// collectCandidates derives the dimensionable items: straight sharp
// edges between real planar faces, one diameter per cylinder, and the
// angle between each pair of adjacent planar faces.
func (f *Features) collectCandidates(m *mesh.Mesh, an *analyze.Analysis, opts Options, planeOf []int) {
	// Edge lengths. Only edges whose both sides lie on multi-triangle
	// planar faces qualify; the short segments tessellating a curve
	// would otherwise flood the drawing with meaningless lengths.
	for _, e := range an.SharpEdges() {
		length := m.EdgeLength(e)
		if length < opts.MinEdgeLength {
			continue
		}
		faces := m.AdjacentTriangles(e)
		if len(faces) != 2 {
			continue
		}
		pa, pb := planeOf[faces[0]], planeOf[faces[1]]
		if pa < 0 || pb < 0 || pa == pb {
			continue
		}
		if len(f.Planes[pa].Triangles) < 2 || len(f.Planes[pb].Triangles) < 2 {
			continue
		}
		f.Candidates = append(f.Candidates, Candidate{
			Kind:   EdgeLength,
			Edge:   e,
			Length: length,
		})
	}

	// Diameters.
	for ci := range f.Cylinders {
		f.Candidates = append(f.Candidates, Candidate{
			Kind:     Diameter,
			Cylinder: ci,
		})
	}

	// Angles between adjacent planar faces, emitted once per pair.
	type pair struct{ a, b int }
	seen := make(map[pair]bool)
	for _, e := range m.Edges() {
		faces := m.AdjacentTriangles(e)
		if len(faces) != 2 {
			continue
		}
		pa, pb := planeOf[faces[0]], planeOf[faces[1]]
		if pa < 0 || pb < 0 || pa == pb {
			continue
		}
		if len(f.Planes[pa].Triangles) < 2 || len(f.Planes[pb].Triangles) < 2 {
			continue
		}
		key := pair{a: min(pa, pb), b: max(pa, pb)}
		if seen[key] {
			continue
		}
		seen[key] = true
		deg, ok := an.DihedralAngle(e)
		if !ok {
			continue
		}
		f.Candidates = append(f.Candidates, Candidate{
			Kind:     FaceAngle,
			FaceA:    key.a,
			FaceB:    key.b,
			AngleDeg: deg,
		})
	}
}
