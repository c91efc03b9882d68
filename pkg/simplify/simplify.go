// Package simplify reduces a mesh's triangle count by iterative edge
// collapse, ranking candidate collapses with an error quadric and
// refusing any collapse that would corrupt topology, fold the surface
// over, or blunt a sharp feature edge. The input mesh is never
// mutated; simplification produces a new mesh plus a report of the
// reduction actually achieved.
package simplify

import (
	"container/heap"
	"context"
	"math"

	"github.com/golang/geo/r3"

	"github.com/robertoSreis/TechDraw/pkg/mesh"
)

// Options configures a simplification run. Zero values fall back to
// the defaults documented on each field.
type Options struct {
	// ReductionRatio is the fraction of triangles to remove, in (0,1).
	// Default 0.83.
	ReductionRatio float64
	// TriangleBudget, when positive, is an absolute target triangle
	// count and overrides ReductionRatio.
	TriangleBudget int
	// QualityTolerance bounds the surface deviation a single collapse
	// may introduce, expressed as a fraction of the bounding-box
	// diagonal. Default 0.01.
	QualityTolerance float64
	// MaxNormalDeviation is the angular tolerance, in degrees, for the
	// fold-over guard: a collapse may not rotate any surviving
	// neighbouring triangle's normal by more than this. Default 45.
	MaxNormalDeviation float64
	// SharpEdgeAngle marks feature edges, in degrees. Collapses on
	// feature edges are held to the stricter tolerance below.
	// Default 20.
	SharpEdgeAngle float64
	// SharpQualityScale scales QualityTolerance down for collapses on
	// sharp feature edges. Default 0.1.
	SharpQualityScale float64
	// MinTriangles is the floor below which simplification never
	// goes. Default 100, clamped to at least 4.
	MinTriangles int
}

func (o Options) withDefaults() Options {
	if o.ReductionRatio <= 0 || o.ReductionRatio >= 1 {
		o.ReductionRatio = 0.83
	}
	if o.QualityTolerance <= 0 {
		o.QualityTolerance = 0.01
	}
	if o.MaxNormalDeviation <= 0 {
		o.MaxNormalDeviation = 45
	}
	if o.SharpEdgeAngle <= 0 {
		o.SharpEdgeAngle = 20
	}
	if o.SharpQualityScale <= 0 {
		o.SharpQualityScale = 0.1
	}
	if o.MinTriangles <= 0 {
		o.MinTriangles = 100
	}
	if o.MinTriangles < 4 {
		o.MinTriangles = 4
	}
	return o
}

// Result reports the outcome of a simplification run.
type Result struct {
	Mesh            *mesh.Mesh
	TrianglesBefore int
	TrianglesAfter  int
	RequestedRatio  float64
	AchievedRatio   float64
	// QualityLimited is set when the requested reduction could not be
	// met without exceeding the quality tolerance; the mesh is the
	// best effort within tolerance.
	QualityLimited bool
}

// cancelCheckInterval is how many heap pops happen between
// cooperative cancellation checks.
const cancelCheckInterval = 512

// Simplify reduces m to the configured target. The input mesh is
// untouched; a new mesh is returned inside the Result. The only error
// condition is cancellation via ctx.
func Simplify(ctx context.Context, m *mesh.Mesh, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		TrianglesBefore: m.TriangleCount(),
		RequestedRatio:  opts.ReductionRatio,
	}

	target := int(math.Ceil(float64(m.TriangleCount()) * (1 - opts.ReductionRatio)))
	if opts.TriangleBudget > 0 {
		target = opts.TriangleBudget
		res.RequestedRatio = 1 - float64(target)/float64(m.TriangleCount())
	}
	if target < opts.MinTriangles {
		target = opts.MinTriangles
	}
	if target >= m.TriangleCount() {
		// Nothing to do; hand back the input unchanged.
		res.Mesh = m
		res.TrianglesAfter = m.TriangleCount()
		return res, nil
	}

	diag := m.Bounds().Diagonal()
	maxCost := opts.QualityTolerance * diag
	maxCost *= maxCost
	sharpMaxCost := maxCost * opts.SharpQualityScale
	maxNormalDot := math.Cos(opts.MaxNormalDeviation * math.Pi / 180)
	sharpDot := math.Cos(opts.SharpEdgeAngle * math.Pi / 180)

	s := newState(m)
	h := &costHeap{}
	heap.Init(h)
	for _, e := range m.Edges() {
		if m.Classify(e) == mesh.EdgeManifold {
			s.pushEdge(h, e.A, e.B)
		}
	}

	alive := m.TriangleCount()
	pops := 0
	for alive > target && h.Len() > 0 {
		pops++
		if pops%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		c := heap.Pop(h).(candidate)
		if s.vver[c.a] != c.aver || s.vver[c.b] != c.bver {
			continue // stale entry, superseded by a later push
		}
		if c.cost > maxCost {
			// The heap is cost-ordered, so no remaining collapse fits
			// the tolerance.
			res.QualityLimited = true
			break
		}

		shared := s.sharedTriangles(c.a, c.b)
		if len(shared) != 2 {
			continue
		}
		if s.touchesBoundary(c.a) || s.touchesBoundary(c.b) {
			continue
		}
		if !s.linkConditionOK(c.a, c.b, shared) {
			continue
		}
		if s.normals[shared[0]].Dot(s.normals[shared[1]]) < sharpDot && c.cost > sharpMaxCost {
			continue // sharp feature edge, held to the stricter tolerance
		}
		if !s.foldOverSafe(c.a, c.b, c.target, shared, maxNormalDot) {
			continue
		}

		alive -= s.collapse(c.a, c.b, c.target, shared)
		s.repushNeighborhood(h, c.a)
	}
	if alive > target && !res.QualityLimited {
		// Ran out of collapsible edges before reaching the target.
		res.QualityLimited = true
	}

	out, err := s.rebuild()
	if err != nil {
		// Collapse bookkeeping guarantees a valid surface; a rebuild
		// failure would be a bug, but fall back to the input rather
		// than failing the request.
		out = m
	}
	res.Mesh = out
	res.TrianglesAfter = out.TriangleCount()
	res.AchievedRatio = 1 - float64(res.TrianglesAfter)/float64(res.TrianglesBefore)
	return res, nil
}

// candidate is a heap entry for one potential edge collapse. Entries
// are invalidated lazily: the per-vertex version counters recorded at
// push time are compared on pop, and stale entries are skipped.
type candidate struct {
	cost   float64
	a, b   int
	target r3.Vector
	aver   int
	bver   int
	seq    int // insertion sequence, breaks cost ties deterministically
}

type costHeap []candidate

func (h costHeap) Len() int { return len(h) }
func (h costHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	return h[i].seq < h[j].seq
}
func (h costHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *costHeap) Push(x any)   { *h = append(*h, x.(candidate)) }
func (h *costHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// state is the mutable working copy the collapses operate on. The
// mesh is represented as index arrays so a collapse is a handful of
// local slice and map updates with no cross-referencing node objects.
type state struct {
	pos      []r3.Vector
	quadrics []quadric
	vver     []int   // per-vertex version, bumped on every move/merge
	vtris    [][]int // incident triangle indices; lazily filtered
	tris     [][3]int
	alive    []bool
	normals  []r3.Vector
	bounds   mesh.Box
	seq      int
}

func newState(m *mesh.Mesh) *state {
	s := &state{
		pos:      make([]r3.Vector, len(m.Vertices)),
		quadrics: make([]quadric, len(m.Vertices)),
		vver:     make([]int, len(m.Vertices)),
		vtris:    make([][]int, len(m.Vertices)),
		tris:     make([][3]int, m.TriangleCount()),
		alive:    make([]bool, m.TriangleCount()),
		normals:  make([]r3.Vector, m.TriangleCount()),
		bounds:   m.Bounds(),
	}
	copy(s.pos, m.Vertices)
	for ti, t := range m.Triangles {
		s.tris[ti] = t.V
		s.alive[ti] = true
		s.normals[ti] = t.Normal
		q := planeQuadric(t.Normal, m.Vertices[t.V[0]], 1)
		for _, vi := range t.V {
			s.vtris[vi] = append(s.vtris[vi], ti)
			s.quadrics[vi] = s.quadrics[vi].add(q)
		}
	}
	// Expand the clamp box slightly so optimal points on the hull are
	// not rejected by floating-point noise.
	pad := s.bounds.Diagonal() * 1e-3
	s.bounds.Min = s.bounds.Min.Sub(r3.Vector{X: pad, Y: pad, Z: pad})
	s.bounds.Max = s.bounds.Max.Add(r3.Vector{X: pad, Y: pad, Z: pad})
	return s
}

// pushEdge computes the collapse cost and target for edge (a, b) and
// pushes it onto the heap.
func (s *state) pushEdge(h *costHeap, a, b int) {
	q := s.quadrics[a].add(s.quadrics[b])
	target, ok := q.optimal()
	if ok {
		target = s.clamp(target)
	}
	if !ok {
		// Singular neighborhood: pick the cheapest of the midpoint and
		// the two endpoints.
		target = s.pos[a].Add(s.pos[b]).Mul(0.5)
		best := q.eval(target)
		for _, p := range [...]r3.Vector{s.pos[a], s.pos[b]} {
			if c := q.eval(p); c < best {
				best = c
				target = p
			}
		}
	}
	cost := q.eval(target)
	if cost < 0 {
		cost = 0 // numeric noise near-flat regions
	}
	s.seq++
	heap.Push(h, candidate{
		cost: cost, a: a, b: b, target: target,
		aver: s.vver[a], bver: s.vver[b], seq: s.seq,
	})
}

func (s *state) clamp(v r3.Vector) r3.Vector {
	v.X = math.Min(math.Max(v.X, s.bounds.Min.X), s.bounds.Max.X)
	v.Y = math.Min(math.Max(v.Y, s.bounds.Min.Y), s.bounds.Max.Y)
	v.Z = math.Min(math.Max(v.Z, s.bounds.Min.Z), s.bounds.Max.Z)
	return v
}

// liveTriangles returns the alive triangles currently incident to v,
// compacting the lazily-maintained incidence list as a side effect.
func (s *state) liveTriangles(v int) []int {
	out := s.vtris[v][:0]
	for _, ti := range s.vtris[v] {
		if s.alive[ti] && s.hasVertex(ti, v) {
			out = append(out, ti)
		}
	}
	s.vtris[v] = out
	return out
}

func (s *state) hasVertex(ti, v int) bool {
	t := s.tris[ti]
	return t[0] == v || t[1] == v || t[2] == v
}

// sharedTriangles returns the alive triangles containing both a and b.
func (s *state) sharedTriangles(a, b int) []int {
	var shared []int
	for _, ti := range s.liveTriangles(a) {
		if s.hasVertex(ti, b) {
			shared = append(shared, ti)
		}
	}
	return shared
}

// touchesBoundary reports whether any edge incident to v is not
// manifold. Collapses never move boundary or non-manifold vertices,
// preserving the mesh outline and tolerating dirty topology.
func (s *state) touchesBoundary(v int) bool {
	for _, ti := range s.liveTriangles(v) {
		t := s.tris[ti]
		for i := 0; i < 3; i++ {
			x, y := t[i], t[(i+1)%3]
			if x != v && y != v {
				continue
			}
			n := 0
			for _, tj := range s.liveTriangles(x) {
				if s.hasVertex(tj, y) {
					n++
				}
			}
			if n != 2 {
				return true
			}
		}
	}
	return false
}

// linkConditionOK verifies that collapsing (a, b) keeps the surface
// manifold: the common vertex neighbours of a and b must be exactly
// the opposite vertices of the shared triangles.
func (s *state) linkConditionOK(a, b int, shared []int) bool {
	common := 0
	for _, v := range s.neighbors(a) {
		for _, w := range s.neighbors(b) {
			if v == w {
				common++
				break
			}
		}
	}
	return common == len(shared)
}

// neighbors returns the vertices edge-connected to v.
func (s *state) neighbors(v int) []int {
	seen := map[int]struct{}{}
	var out []int
	for _, ti := range s.liveTriangles(v) {
		for _, w := range s.tris[ti] {
			if w == v {
				continue
			}
			if _, ok := seen[w]; !ok {
				seen[w] = struct{}{}
				out = append(out, w)
			}
		}
	}
	return out
}

// foldOverSafe simulates moving both endpoints to target and rejects
// the collapse if any surviving neighbour triangle degenerates or its
// normal rotates past the angular tolerance.
func (s *state) foldOverSafe(a, b int, target r3.Vector, shared []int, minDot float64) bool {
	check := func(v int) bool {
		for _, ti := range s.liveTriangles(v) {
			if containsTri(shared, ti) {
				continue // removed by the collapse
			}
			var p [3]r3.Vector
			for i, w := range s.tris[ti] {
				if w == a || w == b {
					p[i] = target
				} else {
					p[i] = s.pos[w]
				}
			}
			cross := p[1].Sub(p[0]).Cross(p[2].Sub(p[0]))
			norm := cross.Norm()
			if norm == 0 {
				return false
			}
			if cross.Mul(1 / norm).Dot(s.normals[ti]) < minDot {
				return false
			}
		}
		return true
	}
	return check(a) && check(b)
}

func containsTri(list []int, ti int) bool {
	for _, x := range list {
		if x == ti {
			return true
		}
	}
	return false
}

// collapse merges b into a at target, removes the shared triangles,
// and re-links b's surviving triangles to a. Returns the number of
// triangles removed.
func (s *state) collapse(a, b int, target r3.Vector, shared []int) int {
	for _, ti := range shared {
		s.alive[ti] = false
	}
	s.pos[a] = target
	s.quadrics[a] = s.quadrics[a].add(s.quadrics[b])

	for _, ti := range s.liveTriangles(b) {
		for i, w := range s.tris[ti] {
			if w == b {
				s.tris[ti][i] = a
			}
		}
		s.vtris[a] = append(s.vtris[a], ti)
	}
	s.vtris[b] = nil
	s.vver[a]++
	s.vver[b]++

	// Refresh cached normals around the surviving vertex.
	for _, ti := range s.liveTriangles(a) {
		t := s.tris[ti]
		cross := s.pos[t[1]].Sub(s.pos[t[0]]).Cross(s.pos[t[2]].Sub(s.pos[t[0]]))
		if norm := cross.Norm(); norm > 0 {
			s.normals[ti] = cross.Mul(1 / norm)
		}
	}
	return len(shared)
}

// repushNeighborhood recomputes and pushes every edge incident to v.
func (s *state) repushNeighborhood(h *costHeap, v int) {
	for _, w := range s.neighbors(v) {
		n := 0
		for _, ti := range s.liveTriangles(v) {
			if s.hasVertex(ti, w) {
				n++
			}
		}
		if n == 2 {
			s.pushEdge(h, v, w)
		}
	}
}

// rebuild compacts the surviving triangles and vertices into a fresh
// immutable mesh.
func (s *state) rebuild() (*mesh.Mesh, error) {
	remap := make(map[int]int)
	var vertices []r3.Vector
	var indices []int
	for ti, ok := range s.alive {
		if !ok {
			continue
		}
		for _, v := range s.tris[ti] {
			nv, seen := remap[v]
			if !seen {
				nv = len(vertices)
				remap[v] = nv
				vertices = append(vertices, s.pos[v])
			}
			indices = append(indices, nv)
		}
	}
	return mesh.Load(vertices, indices)
}
