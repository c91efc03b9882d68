// Package project flattens a mesh into 2D line work for each of the
// seven canonical drawing views. Every candidate edge is depth-tested
// against the mesh and split at occlusion boundaries, so one source
// edge may come out as several pieces with different visibility
// flags. Hidden pieces are classified, not discarded; the renderer
// decides whether to draw them.
package project

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/robertoSreis/TechDraw/pkg/analyze"
	"github.com/robertoSreis/TechDraw/pkg/mesh"
)

// Options holds the projection tolerances.
type Options struct {
	// OcclusionResolution is the depth difference below which an
	// occluder is treated as coincident with the tested edge rather
	// than in front of it. Default 1e-6 of the bounding-box diagonal.
	OcclusionResolution float64
	// MinSegment drops projected pieces shorter than this. Default 1e-3.
	MinSegment float64
}

func (o Options) withDefaults(diag float64) Options {
	if o.OcclusionResolution <= 0 {
		o.OcclusionResolution = 1e-6 * diag
	}
	if o.MinSegment <= 0 {
		o.MinSegment = 1e-3
	}
	return o
}

// Line is one projected 2D piece of a mesh edge.
type Line struct {
	Start, End r2.Point
	// Visible is false for pieces hidden behind nearer geometry.
	Visible bool
	// Silhouette marks outline pieces: edges where the two adjacent
	// triangles face opposite ways, and boundary edges.
	Silhouette bool
	// Depth is the average distance toward the viewer, for renderers
	// that stack line weights.
	Depth float64
	// Source is the mesh edge this piece came from.
	Source mesh.Edge
}

// Box2 is a 2D bounding rectangle.
type Box2 struct {
	Min, Max r2.Point
}

func (b Box2) Width() float64  { return b.Max.X - b.Min.X }
func (b Box2) Height() float64 { return b.Max.Y - b.Min.Y }

// View is the complete projection result for one direction.
type View struct {
	Direction Direction
	Lines     []Line
	Bounds    Box2
}

// rtreego needs strictly positive rectangle extents.
const rectPad = 1e-9

type triEntry struct {
	rect rtreego.Rect
	ti   int
}

func (t *triEntry) Bounds() rtreego.Rect { return t.rect }

// Project computes the 2D line set for one view direction. The mesh
// and analysis are read-only and may be shared across concurrent
// calls. Output is deterministic: same mesh, same direction, same
// lines in the same order. A view of a degenerate (flat, in-plane)
// mesh yields an empty or zero-area line set, which is valid.
func Project(m *mesh.Mesh, an *analyze.Analysis, dir Direction, opts Options) *View {
	opts = opts.withDefaults(m.Bounds().Diagonal())
	t := transformFor(dir)

	rotated := make([]r3.Vector, len(m.Vertices))
	for i, v := range m.Vertices {
		rotated[i] = t.rot.apply(v)
	}
	frontFacing := make([]bool, m.TriangleCount())
	for ti, tri := range m.Triangles {
		// After rotation the viewer sits at +Z looking down -Z, so a
		// triangle faces the viewer when its rotated normal has
		// positive Z.
		frontFacing[ti] = t.rot.apply(tri.Normal).Z > 0
	}

	occ := newOccluderIndex(m, rotated, frontFacing)
	view := &View{Direction: dir}

	for _, e := range m.Edges() {
		faces := m.AdjacentTriangles(e)
		silhouette := false
		switch len(faces) {
		case 1:
			silhouette = true
		case 2:
			silhouette = frontFacing[faces[0]] != frontFacing[faces[1]]
		}
		// Silhouettes always draw; otherwise only feature edges do.
		// Coplanar and smoothly curved interior edges would render a
		// technical drawing as a triangle-soup wireframe.
		if !silhouette && an.Classify(e) != analyze.Sharp {
			continue
		}

		p1, p2 := rotated[e.A], rotated[e.B]
		if math.Hypot(p2.X-p1.X, p2.Y-p1.Y) < opts.MinSegment {
			continue
		}

		hidden := occ.hiddenIntervals(e, p1, p2, opts.OcclusionResolution)
		emit := func(t0, t1 float64, visible bool) {
			a := lerp3(p1, p2, t0)
			b := lerp3(p1, p2, t1)
			if math.Hypot(b.X-a.X, b.Y-a.Y) < opts.MinSegment {
				return
			}
			view.Lines = append(view.Lines, Line{
				Start:      applyFlips(t, r2.Point{X: a.X, Y: a.Y}),
				End:        applyFlips(t, r2.Point{X: b.X, Y: b.Y}),
				Visible:    visible,
				Silhouette: silhouette,
				Depth:      (a.Z + b.Z) / 2,
				Source:     e,
			})
		}
		cursor := 0.0
		for _, iv := range hidden {
			if iv.lo > cursor {
				emit(cursor, iv.lo, true)
			}
			emit(iv.lo, iv.hi, false)
			cursor = iv.hi
		}
		if cursor < 1 {
			emit(cursor, 1, true)
		}
	}

	view.Lines = dropCoincidentHidden(view.Lines, opts.OcclusionResolution*10)
	view.Bounds = boundsOfLines(view.Lines)
	return view
}

// dropCoincidentHidden removes hidden pieces that project exactly
// onto a visible line, such as a box's rear edges landing on its
// outline. Drawing conventions give coincident lines to the visible
// one.
func dropCoincidentHidden(lines []Line, tol float64) []Line {
	out := lines[:0]
	for _, l := range lines {
		if !l.Visible && coveredByVisible(l, lines, tol) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func coveredByVisible(h Line, lines []Line, tol float64) bool {
	for _, v := range lines {
		if !v.Visible {
			continue
		}
		if pointSegDist(h.Start, v.Start, v.End) <= tol && pointSegDist(h.End, v.Start, v.End) <= tol {
			return true
		}
	}
	return false
}

// pointSegDist returns the distance from p to the segment (a, b).
func pointSegDist(p, a, b r2.Point) float64 {
	d := b.Sub(a)
	len2 := d.X*d.X + d.Y*d.Y
	if len2 == 0 {
		return p.Sub(a).Norm()
	}
	t := (p.Sub(a).X*d.X + p.Sub(a).Y*d.Y) / len2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	proj := r2.Point{X: a.X + t*d.X, Y: a.Y + t*d.Y}
	return p.Sub(proj).Norm()
}

// ProjectAll computes each requested view in order. For parallel
// execution across views, call Project from separate goroutines; the
// inputs are read-only.
func ProjectAll(m *mesh.Mesh, an *analyze.Analysis, dirs []Direction, opts Options) []*View {
	views := make([]*View, len(dirs))
	for i, d := range dirs {
		views[i] = Project(m, an, d, opts)
	}
	return views
}

func lerp3(a, b r3.Vector, t float64) r3.Vector {
	return a.Add(b.Sub(a).Mul(t))
}

func applyFlips(t viewTransform, p r2.Point) r2.Point {
	if t.flipH {
		p.X = -p.X
	}
	if t.flipV {
		p.Y = -p.Y
	}
	return p
}

func boundsOfLines(lines []Line) Box2 {
	if len(lines) == 0 {
		return Box2{}
	}
	b := Box2{Min: lines[0].Start, Max: lines[0].Start}
	grow := func(p r2.Point) {
		b.Min.X = math.Min(b.Min.X, p.X)
		b.Min.Y = math.Min(b.Min.Y, p.Y)
		b.Max.X = math.Max(b.Max.X, p.X)
		b.Max.Y = math.Max(b.Max.Y, p.Y)
	}
	for _, l := range lines {
		grow(l.Start)
		grow(l.End)
	}
	return b
}

// interval is a parameter range along a projected edge, 0 at Start.
type interval struct {
	lo, hi float64
}

// occluderIndex spatially indexes the projected front-facing
// triangles so each edge only depth-tests against nearby geometry.
type occluderIndex struct {
	m       *mesh.Mesh
	rotated []r3.Vector
	tree    *rtreego.Rtree
}

func newOccluderIndex(m *mesh.Mesh, rotated []r3.Vector, frontFacing []bool) *occluderIndex {
	idx := &occluderIndex{m: m, rotated: rotated, tree: rtreego.NewTree(2, 25, 50)}
	for ti := range m.Triangles {
		if !frontFacing[ti] {
			// In a closed mesh anything hidden behind a back-facing
			// triangle is also behind a nearer front-facing one, so
			// back faces never need to occlude.
			continue
		}
		v := m.Triangles[ti].V
		a, b, c := rotated[v[0]], rotated[v[1]], rotated[v[2]]
		minX := math.Min(a.X, math.Min(b.X, c.X))
		minY := math.Min(a.Y, math.Min(b.Y, c.Y))
		maxX := math.Max(a.X, math.Max(b.X, c.X))
		maxY := math.Max(a.Y, math.Max(b.Y, c.Y))
		rect, err := rtreego.NewRect(
			rtreego.Point{minX, minY},
			[]float64{maxX - minX + rectPad, maxY - minY + rectPad},
		)
		if err != nil {
			continue
		}
		idx.tree.Insert(&triEntry{rect: rect, ti: ti})
	}
	return idx
}

// hiddenIntervals returns the merged, sorted parameter intervals of
// the edge (p1, p2) that lie behind some front-facing triangle by
// more than tol.
func (o *occluderIndex) hiddenIntervals(e mesh.Edge, p1, p2 r3.Vector, tol float64) []interval {
	minX := math.Min(p1.X, p2.X)
	minY := math.Min(p1.Y, p2.Y)
	maxX := math.Max(p1.X, p2.X)
	maxY := math.Max(p1.Y, p2.Y)
	rect, err := rtreego.NewRect(
		rtreego.Point{minX, minY},
		[]float64{maxX - minX + rectPad, maxY - minY + rectPad},
	)
	if err != nil {
		return nil
	}

	var covered []interval
	for _, hit := range o.tree.SearchIntersect(rect) {
		ti := hit.(*triEntry).ti
		if o.adjacentToEdge(ti, e) {
			continue // an edge cannot be hidden by its own faces
		}
		iv, ok := o.clipAgainstTriangle(ti, p1, p2)
		if !ok {
			continue
		}
		if o.triangleInFront(ti, p1, p2, iv, tol) {
			covered = append(covered, iv)
		}
	}
	return mergeIntervals(covered)
}

func (o *occluderIndex) adjacentToEdge(ti int, e mesh.Edge) bool {
	for _, fi := range o.m.AdjacentTriangles(e) {
		if fi == ti {
			return true
		}
	}
	return false
}

// clipAgainstTriangle intersects the 2D projection of the edge with
// the 2D projection of triangle ti, returning the covered parameter
// interval.
func (o *occluderIndex) clipAgainstTriangle(ti int, p1, p2 r3.Vector) (interval, bool) {
	v := o.m.Triangles[ti].V
	a := o.rotated[v[0]]
	b := o.rotated[v[1]]
	c := o.rotated[v[2]]

	// Orient the triangle counter-clockwise in 2D.
	area := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	if math.Abs(area) < 1e-12 {
		return interval{}, false // edge-on triangle, projects to a sliver
	}
	if area < 0 {
		b, c = c, b
	}

	lo, hi := 0.0, 1.0
	corners := [3][2]r3.Vector{{a, b}, {b, c}, {c, a}}
	for _, edge := range corners {
		// Inside is the left half-plane of each CCW triangle edge.
		ex := edge[1].X - edge[0].X
		ey := edge[1].Y - edge[0].Y
		d1 := ex*(p1.Y-edge[0].Y) - ey*(p1.X-edge[0].X)
		d2 := ex*(p2.Y-edge[0].Y) - ey*(p2.X-edge[0].X)
		dd := d2 - d1
		switch {
		case d1 >= 0 && d2 >= 0:
			// Fully inside this half-plane.
		case d1 < 0 && d2 < 0:
			return interval{}, false
		case dd > 0:
			lo = math.Max(lo, -d1/dd)
		default:
			hi = math.Min(hi, -d1/dd)
		}
		if lo >= hi {
			return interval{}, false
		}
	}
	return interval{lo: lo, hi: hi}, true
}

// triangleInFront reports whether ti is strictly nearer the viewer
// than the edge over the interval iv, sampled at the interval
// midpoint. Depth ties within tol count as coincident, not
// occluding, which keeps coplanar face edges visible.
//
// The single midpoint sample assumes the depth order is constant
// across the interval. That holds for non-interpenetrating solids,
// where an edge cannot cross an occluder's support plane inside the
// clipped span; a mesh with self-intersecting shells may get one
// visibility flag where a split at the crossing would be exact.
func (o *occluderIndex) triangleInFront(ti int, p1, p2 r3.Vector, iv interval, tol float64) bool {
	mid := lerp3(p1, p2, (iv.lo+iv.hi)/2)

	v := o.m.Triangles[ti].V
	a := o.rotated[v[0]]
	n := o.rotated[v[1]].Sub(a).Cross(o.rotated[v[2]].Sub(a))
	if math.Abs(n.Z) < 1e-12 {
		return false
	}
	// Plane: n·(p - a) = 0, solved for z at the midpoint's (x, y).
	z := a.Z - (n.X*(mid.X-a.X)+n.Y*(mid.Y-a.Y))/n.Z
	return z > mid.Z+tol
}

// mergeIntervals sorts and unions overlapping parameter intervals.
func mergeIntervals(ivs []interval) []interval {
	if len(ivs) == 0 {
		return nil
	}
	sort.Slice(ivs, func(i, j int) bool {
		if ivs[i].lo != ivs[j].lo {
			return ivs[i].lo < ivs[j].lo
		}
		return ivs[i].hi < ivs[j].hi
	})
	merged := ivs[:1]
	for _, iv := range ivs[1:] {
		last := &merged[len(merged)-1]
		if iv.lo <= last.hi {
			if iv.hi > last.hi {
				last.hi = iv.hi
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
