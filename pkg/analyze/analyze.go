// Package analyze computes the derived geometry every later stage
// keys off of: bounding volume, centroid, principal axes, the
// triangle-adjacency graph, and the dihedral-angle classification of
// edges into coplanar, smooth and sharp.
package analyze

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/robertoSreis/TechDraw/pkg/mesh"
)

// Options holds the angular thresholds, in degrees.
type Options struct {
	// SharpEdgeAngle is the dihedral angle above which an edge is a
	// feature edge worth drawing and preserving.
	SharpEdgeAngle float64
	// CoplanarAngle is the dihedral angle below which two adjacent
	// triangles are treated as lying in the same plane.
	CoplanarAngle float64
}

// DefaultOptions mirrors the thresholds used for typical mechanical
// parts: 20 degrees for feature edges, 1 degree for coplanarity.
func DefaultOptions() Options {
	return Options{
		SharpEdgeAngle: 20,
		CoplanarAngle:  1,
	}
}

// EdgeClass is the dihedral classification of a manifold edge.
type EdgeClass int

const (
	// Coplanar edges join triangles in (nearly) the same plane.
	Coplanar EdgeClass = iota
	// Smooth edges bend by more than the coplanar tolerance but less
	// than the sharp threshold; they approximate curved surfaces.
	Smooth
	// Sharp edges bend by at least the sharp threshold, or have no
	// well-defined dihedral (boundary and non-manifold edges).
	Sharp
)

// Analysis is the read-only result of analyzing one mesh.
type Analysis struct {
	Bounds   mesh.Box
	Centroid r3.Vector
	// Axes are the principal axes of the vertex cloud, ordered by
	// descending variance.
	Axes [3]r3.Vector
	// Adjacency lists, per triangle, the triangles sharing an edge
	// with it.
	Adjacency [][]int

	opts   Options
	angles map[mesh.Edge]float64 // dihedral in degrees, manifold edges only
	m      *mesh.Mesh
}

// Analyze computes the full analysis for m. The mesh is read-only.
func Analyze(m *mesh.Mesh, opts Options) *Analysis {
	a := &Analysis{
		Bounds: m.Bounds(),
		opts:   opts,
		angles: make(map[mesh.Edge]float64, m.EdgeCount()),
		m:      m,
	}

	for _, v := range m.Vertices {
		a.Centroid = a.Centroid.Add(v)
	}
	a.Centroid = a.Centroid.Mul(1 / float64(len(m.Vertices)))
	a.Axes = principalAxes(m.Vertices, a.Centroid)

	a.Adjacency = make([][]int, m.TriangleCount())
	for _, e := range m.Edges() {
		faces := m.AdjacentTriangles(e)
		for _, fi := range faces {
			for _, fj := range faces {
				if fi != fj {
					a.Adjacency[fi] = append(a.Adjacency[fi], fj)
				}
			}
		}
		if len(faces) == 2 {
			a.angles[e] = dihedralDeg(m.Triangles[faces[0]].Normal, m.Triangles[faces[1]].Normal)
		}
	}
	return a
}

// DihedralAngle returns the angle in degrees between the normals of
// the two triangles adjacent to e. ok is false for boundary and
// non-manifold edges.
func (a *Analysis) DihedralAngle(e mesh.Edge) (deg float64, ok bool) {
	deg, ok = a.angles[e]
	return deg, ok
}

// Classify buckets an edge by its dihedral angle. Edges without a
// well-defined dihedral (boundary, non-manifold) classify as Sharp
// since they always contribute to the drawing.
func (a *Analysis) Classify(e mesh.Edge) EdgeClass {
	deg, ok := a.angles[e]
	if !ok {
		return Sharp
	}
	switch {
	case deg < a.opts.CoplanarAngle:
		return Coplanar
	case deg < a.opts.SharpEdgeAngle:
		return Smooth
	default:
		return Sharp
	}
}

// SharpEdges returns the edges classified Sharp, in the mesh's
// deterministic edge order.
func (a *Analysis) SharpEdges() []mesh.Edge {
	var out []mesh.Edge
	for _, e := range a.m.Edges() {
		if a.Classify(e) == Sharp {
			out = append(out, e)
		}
	}
	return out
}

// coplanarAdjacent reports whether triangles ti and tj share an edge
// and lie within the coplanar tolerance of each other.
func (a *Analysis) coplanarAdjacent(ti, tj int) bool {
	for _, n := range a.Adjacency[ti] {
		if n == tj {
			return dihedralDeg(a.m.Triangles[ti].Normal, a.m.Triangles[tj].Normal) < a.opts.CoplanarAngle
		}
	}
	return false
}

// dihedralDeg returns the angle between two unit normals in degrees.
func dihedralDeg(n1, n2 r3.Vector) float64 {
	dot := n1.Dot(n2)
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot) * 180 / math.Pi
}

// principalAxes eigen-decomposes the vertex covariance matrix and
// returns the axes ordered by descending variance. A degenerate cloud
// (all vertices collinear or coincident) falls back to the world axes.
func principalAxes(vertices []r3.Vector, centroid r3.Vector) [3]r3.Vector {
	world := [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}
	if len(vertices) < 3 {
		return world
	}

	var cxx, cxy, cxz, cyy, cyz, czz float64
	for _, v := range vertices {
		d := v.Sub(centroid)
		cxx += d.X * d.X
		cxy += d.X * d.Y
		cxz += d.X * d.Z
		cyy += d.Y * d.Y
		cyz += d.Y * d.Z
		czz += d.Z * d.Z
	}
	n := float64(len(vertices))
	cov := mat.NewSymDense(3, []float64{
		cxx / n, cxy / n, cxz / n,
		cxy / n, cyy / n, cyz / n,
		cxz / n, cyz / n, czz / n,
	})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return world
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// gonum orders eigenvalues ascending; reverse for descending
	// variance.
	var axes [3]r3.Vector
	for i := 0; i < 3; i++ {
		col := 2 - i
		axes[i] = r3.Vector{X: vecs.At(0, col), Y: vecs.At(1, col), Z: vecs.At(2, col)}
	}
	return axes
}
