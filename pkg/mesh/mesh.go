// Package mesh defines the triangle mesh model shared by the whole
// drawing pipeline. A Mesh is built once from raw vertex and index
// arrays, validated, and treated as immutable by every later stage.
package mesh

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// MalformedError reports structurally invalid input: out-of-range
// indices, an empty mesh, or a mesh with no usable triangles. It is
// fatal and surfaced before any pipeline stage runs.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed mesh: " + e.Reason
}

// EdgeClass classifies an edge by how many triangles share it.
type EdgeClass int

const (
	EdgeBoundary    EdgeClass = iota // exactly one adjacent triangle
	EdgeManifold                     // exactly two
	EdgeNonManifold                  // more than two; tolerated but flagged
)

// Edge is an unordered pair of vertex indices, stored with A < B so it
// can be used as a map key.
type Edge struct {
	A, B int
}

// MakeEdge returns the canonical form of the edge (a, b).
func MakeEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// Triangle is an ordered triple of vertex indices plus its cached
// outward unit normal (right-hand rule over the vertex winding).
type Triangle struct {
	V      [3]int
	Normal r3.Vector
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max r3.Vector
}

// Size returns the box extents along each axis.
func (b Box) Size() r3.Vector {
	return b.Max.Sub(b.Min)
}

// Center returns the box midpoint.
func (b Box) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Diagonal returns the length of the box diagonal.
func (b Box) Diagonal() float64 {
	return b.Max.Sub(b.Min).Norm()
}

// Mesh owns the vertex, triangle and edge-adjacency data for one
// loaded model. Construct it with Load or FromTriangles; do not
// mutate it afterwards. Simplification produces a new Mesh.
type Mesh struct {
	Vertices  []r3.Vector
	Triangles []Triangle

	edgeFaces  map[Edge][]int // edge -> adjacent triangle indices
	edgeOrder  []Edge         // edges in first-encounter order, for deterministic iteration
	bounds     Box
	degenerate int // triangles discarded at load time
	nonMan     int // edges with more than two adjacent triangles
}

// DefaultWeldEpsilonScale scales the bounding-box diagonal to obtain
// the vertex welding tolerance used by Load.
const DefaultWeldEpsilonScale = 1e-6

// Load validates raw vertex and triangle index arrays and builds a
// Mesh. Duplicate vertices within epsilon of each other are merged,
// degenerate (zero-area) triangles are discarded, and the
// edge-adjacency map is built. indices holds three entries per
// triangle. Returns a *MalformedError on structurally invalid input.
func Load(vertices []r3.Vector, indices []int) (*Mesh, error) {
	if len(vertices) == 0 {
		return nil, &MalformedError{Reason: "no vertices"}
	}
	if len(indices) == 0 {
		return nil, &MalformedError{Reason: "no triangles"}
	}
	if len(indices)%3 != 0 {
		return nil, &MalformedError{Reason: fmt.Sprintf("index count %d is not a multiple of 3", len(indices))}
	}
	for _, ix := range indices {
		if ix < 0 || ix >= len(vertices) {
			return nil, &MalformedError{Reason: fmt.Sprintf("index %d out of range [0,%d)", ix, len(vertices))}
		}
	}

	bounds := boundsOf(vertices)
	eps := bounds.Diagonal() * DefaultWeldEpsilonScale

	remap, welded := weldVertices(vertices, eps)

	m := &Mesh{
		Vertices:  welded,
		edgeFaces: make(map[Edge][]int),
	}
	for i := 0; i+2 < len(indices); i += 3 {
		a := remap[indices[i]]
		b := remap[indices[i+1]]
		c := remap[indices[i+2]]
		n, ok := normalOf(welded[a], welded[b], welded[c])
		if a == b || b == c || a == c || !ok {
			m.degenerate++
			continue
		}
		ti := len(m.Triangles)
		m.Triangles = append(m.Triangles, Triangle{V: [3]int{a, b, c}, Normal: n})
		m.addEdges(ti)
	}
	if len(m.Triangles) == 0 {
		return nil, &MalformedError{Reason: "all triangles degenerate"}
	}

	m.bounds = boundsOf(m.Vertices)
	for _, faces := range m.edgeFaces {
		if len(faces) > 2 {
			m.nonMan++
		}
	}
	return m, nil
}

// FromTriangles builds a Mesh from a triangle soup, welding shared
// vertices. This is the entry point for STL-style inputs where every
// triangle carries its own three corner positions.
func FromTriangles(tris [][3]r3.Vector) (*Mesh, error) {
	if len(tris) == 0 {
		return nil, &MalformedError{Reason: "no triangles"}
	}
	vertices := make([]r3.Vector, 0, len(tris)*3)
	indices := make([]int, 0, len(tris)*3)
	for _, t := range tris {
		for _, p := range t {
			indices = append(indices, len(vertices))
			vertices = append(vertices, p)
		}
	}
	return Load(vertices, indices)
}

// addEdges registers triangle ti under each of its three edges.
func (m *Mesh) addEdges(ti int) {
	t := m.Triangles[ti]
	for i := 0; i < 3; i++ {
		e := MakeEdge(t.V[i], t.V[(i+1)%3])
		if _, seen := m.edgeFaces[e]; !seen {
			m.edgeOrder = append(m.edgeOrder, e)
		}
		m.edgeFaces[e] = append(m.edgeFaces[e], ti)
	}
}

// VertexCount returns the number of welded vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) }

// TriangleCount returns the number of retained triangles.
func (m *Mesh) TriangleCount() int { return len(m.Triangles) }

// Bounds returns the axis-aligned bounding box.
func (m *Mesh) Bounds() Box { return m.bounds }

// DegenerateCount returns how many zero-area triangles were discarded
// at load time.
func (m *Mesh) DegenerateCount() int { return m.degenerate }

// NonManifoldCount returns how many edges border more than two
// triangles.
func (m *Mesh) NonManifoldCount() int { return m.nonMan }

// EdgeCount returns the number of distinct edges.
func (m *Mesh) EdgeCount() int { return len(m.edgeOrder) }

// Edges returns every distinct edge in a deterministic order (the
// order in which edges were first encountered during construction).
// Callers must not modify the returned slice.
func (m *Mesh) Edges() []Edge { return m.edgeOrder }

// AdjacentTriangles returns the triangle indices bordering e. The
// returned slice is shared with the mesh and must not be modified.
func (m *Mesh) AdjacentTriangles(e Edge) []int { return m.edgeFaces[e] }

// Classify reports whether e is a boundary, manifold or non-manifold
// edge.
func (m *Mesh) Classify(e Edge) EdgeClass {
	switch len(m.edgeFaces[e]) {
	case 1:
		return EdgeBoundary
	case 2:
		return EdgeManifold
	default:
		return EdgeNonManifold
	}
}

// EdgeLength returns the 3D length of e.
func (m *Mesh) EdgeLength(e Edge) float64 {
	return m.Vertices[e.B].Sub(m.Vertices[e.A]).Norm()
}

// IsWatertight reports whether every edge is shared by exactly two
// triangles.
func (m *Mesh) IsWatertight() bool {
	for _, faces := range m.edgeFaces {
		if len(faces) != 2 {
			return false
		}
	}
	return true
}

// TriangleArea returns the area of triangle ti.
func (m *Mesh) TriangleArea(ti int) float64 {
	t := m.Triangles[ti]
	a := m.Vertices[t.V[0]]
	b := m.Vertices[t.V[1]]
	c := m.Vertices[t.V[2]]
	return b.Sub(a).Cross(c.Sub(a)).Norm() / 2
}

// TriangleCentroid returns the centroid of triangle ti.
func (m *Mesh) TriangleCentroid(ti int) r3.Vector {
	t := m.Triangles[ti]
	return m.Vertices[t.V[0]].Add(m.Vertices[t.V[1]]).Add(m.Vertices[t.V[2]]).Mul(1.0 / 3.0)
}

// normalOf computes the unit normal of the triangle (a, b, c) by the
// right-hand rule. ok is false for zero-area triangles.
func normalOf(a, b, c r3.Vector) (n r3.Vector, ok bool) {
	cross := b.Sub(a).Cross(c.Sub(a))
	norm := cross.Norm()
	if norm == 0 || math.IsNaN(norm) {
		return r3.Vector{}, false
	}
	return cross.Mul(1 / norm), true
}

// boundsOf computes the bounding box of a vertex set.
func boundsOf(vertices []r3.Vector) Box {
	b := Box{Min: vertices[0], Max: vertices[0]}
	for _, v := range vertices[1:] {
		b.Min.X = math.Min(b.Min.X, v.X)
		b.Min.Y = math.Min(b.Min.Y, v.Y)
		b.Min.Z = math.Min(b.Min.Z, v.Z)
		b.Max.X = math.Max(b.Max.X, v.X)
		b.Max.Y = math.Max(b.Max.Y, v.Y)
		b.Max.Z = math.Max(b.Max.Z, v.Z)
	}
	return b
}

// weldVertices merges vertices that lie within eps of each other using
// a quantized grid. The first occurrence of a position wins, so the
// result is deterministic. Returns the old-index -> new-index map and
// the deduplicated vertex list.
func weldVertices(vertices []r3.Vector, eps float64) ([]int, []r3.Vector) {
	remap := make([]int, len(vertices))
	if eps <= 0 {
		welded := make([]r3.Vector, len(vertices))
		copy(welded, vertices)
		for i := range remap {
			remap[i] = i
		}
		return remap, welded
	}

	type cell struct{ x, y, z int64 }
	quant := func(v r3.Vector) cell {
		return cell{
			x: int64(math.Floor(v.X / eps)),
			y: int64(math.Floor(v.Y / eps)),
			z: int64(math.Floor(v.Z / eps)),
		}
	}

	seen := make(map[cell][]int)
	var welded []r3.Vector
	for i, v := range vertices {
		c := quant(v)
		// Check the home cell and its 26 neighbours so points that
		// straddle a grid boundary still weld.
		found := -1
		for dx := int64(-1); dx <= 1 && found < 0; dx++ {
			for dy := int64(-1); dy <= 1 && found < 0; dy++ {
				for dz := int64(-1); dz <= 1 && found < 0; dz++ {
					for _, j := range seen[cell{c.x + dx, c.y + dy, c.z + dz}] {
						if welded[j].Sub(v).Norm() <= eps {
							found = j
							break
						}
					}
				}
			}
		}
		if found >= 0 {
			remap[i] = found
			continue
		}
		remap[i] = len(welded)
		seen[c] = append(seen[c], len(welded))
		welded = append(welded, v)
	}
	return remap, welded
}
