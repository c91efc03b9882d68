// Package dimension lays out dimension annotations for a projected
// view: overall width/height, edge lengths, bore diameters and face
// angles. Placement is greedy: each dimension tries its default
// standoff and steps outward while its rectangle collides with
// geometry or previously placed dimensions, giving up after a bounded
// number of attempts rather than looping. The returned slice is plain
// data and never mutated after layout; regenerate it when the inputs
// change.
package dimension

import (
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/robertoSreis/TechDraw/pkg/feature"
	"github.com/robertoSreis/TechDraw/pkg/mesh"
	"github.com/robertoSreis/TechDraw/pkg/project"
)

// Kind enumerates dimension types.
type Kind int

const (
	Linear Kind = iota
	Radial
	Diameter
	Angular
)

func (k Kind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Radial:
		return "radial"
	case Diameter:
		return "diameter"
	case Angular:
		return "angular"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Style holds the drawing constants for dimension line work, in the
// drawing's model units.
type Style struct {
	ArrowSize          float64
	TextHeight         float64
	TextGap            float64
	ExtensionGap       float64
	ExtensionOvershoot float64
	DecimalPlaces      int
	Unit               string
	ShowUnit           bool
}

// DefaultStyle matches common mechanical drawing practice in
// millimeters.
func DefaultStyle() Style {
	return Style{
		ArrowSize:          3.0,
		TextHeight:         3.5,
		TextGap:            1.5,
		ExtensionGap:       1.5,
		ExtensionOvershoot: 2.0,
		DecimalPlaces:      2,
		Unit:               "mm",
	}
}

// Options configures layout for one view.
type Options struct {
	// Clearance is the default standoff between geometry and a
	// dimension line. Zero means 8% of the larger view extent.
	Clearance float64
	// CollisionStep is how far a colliding dimension moves outward
	// per retry. Default 8.
	CollisionStep float64
	// MaxAttempts bounds the retries before overlap is accepted.
	// Default 5.
	MaxAttempts int
	Style       Style
}

func (o Options) withDefaults(view *project.View) Options {
	if o.Clearance <= 0 {
		o.Clearance = 0.08 * math.Max(view.Bounds.Width(), view.Bounds.Height())
	}
	if o.CollisionStep <= 0 {
		o.CollisionStep = 8
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Style == (Style{}) {
		o.Style = DefaultStyle()
	}
	return o
}

// Dimension is one placed annotation. All geometry is in the view's
// 2D coordinates; Value is the true 3D measurement, not the
// foreshortened projection.
type Dimension struct {
	Kind  Kind
	Value float64
	// Text is the pre-formatted label: "10.00", "⌀5.00", "90.0°".
	Text string

	// P1, P2 are the measured points.
	P1, P2 r2.Point
	// Line is the dimension line itself.
	Line [2]r2.Point
	// Ext1, Ext2 are the extension lines from the measured points out
	// to the dimension line. Unused pairs are zero (diameter, angle).
	Ext1, Ext2 [2]r2.Point

	TextPos r2.Point
	// TextRotation is in degrees counter-clockwise; -90 for vertical
	// dimensions.
	TextRotation float64
}

// formatValue renders the label for a value of the given kind.
func formatValue(k Kind, v float64, s Style) string {
	switch k {
	case Diameter:
		return fmt.Sprintf("⌀%.*f", s.DecimalPlaces, v)
	case Radial:
		return fmt.Sprintf("R%.*f", s.DecimalPlaces, v)
	case Angular:
		return fmt.Sprintf("%.1f°", v)
	default:
		t := fmt.Sprintf("%.*f", s.DecimalPlaces, v)
		if s.ShowUnit {
			t += " " + s.Unit
		}
		return t
	}
}

// axisAlignTol is the cosine threshold for "parallel to the view
// direction": within about 1 degree counts.
const axisAlignTol = 0.9998

// inPlaneDotMax bounds how far out of the view plane an edge may tilt
// before its projection no longer reads as a true length.
const inPlaneDotMax = 0.02

// LayoutView places dimensions for one view. The mesh, features and
// view are read-only; the result depends only on them and opts.
func LayoutView(m *mesh.Mesh, feats *feature.Features, view *project.View, opts Options) []Dimension {
	opts = opts.withDefaults(view)
	if len(view.Lines) == 0 {
		return nil
	}

	l := newLayout(view, opts)
	viewVec := project.ViewVector(view.Direction)

	// Overall extents first: they anchor the drawing and claim the
	// prime positions below and beside the view. The isometric view
	// carries no dimensions by convention.
	if view.Direction != project.Isometric {
		w, h := trueExtents(m, view.Direction)
		l.placeHorizontal(w, view.Bounds.Min, r2.Point{X: view.Bounds.Max.X, Y: view.Bounds.Min.Y})
		l.placeVertical(h, r2.Point{X: view.Bounds.Max.X, Y: view.Bounds.Min.Y}, view.Bounds.Max)

		l.placeEdgeLengths(m, feats, view, viewVec)
		l.placeAngles(m, feats, view, viewVec)
		l.placeDiameters(feats, view, viewVec)
		l.placeRecoveredCircles(view)
	}

	return l.placed
}

// trueExtents returns the true 3D sizes mapped to the view's
// horizontal and vertical axes. Orthographic views are axis aligned,
// so these are exact model measurements, not projections.
func trueExtents(m *mesh.Mesh, dir project.Direction) (w, h float64) {
	size := m.Bounds().Size()
	right := project.UpVector(dir).Cross(project.ViewVector(dir))
	up := project.UpVector(dir)
	w = math.Abs(size.X*right.X) + math.Abs(size.Y*right.Y) + math.Abs(size.Z*right.Z)
	h = math.Abs(size.X*up.X) + math.Abs(size.Y*up.Y) + math.Abs(size.Z*up.Z)
	return w, h
}

// layout tracks occupied regions with a 2D spatial index so each new
// dimension can test for collisions cheaply.
type layout struct {
	opts   Options
	tree   *rtreego.Rtree
	placed []Dimension
}

type regionEntry struct {
	rect rtreego.Rect
}

func (r *regionEntry) Bounds() rtreego.Rect { return r.rect }

func newLayout(view *project.View, opts Options) *layout {
	l := &layout{opts: opts, tree: rtreego.NewTree(2, 25, 50)}
	// Seed the index with the view geometry so dimensions keep clear
	// of the part outline itself.
	for _, line := range view.Lines {
		l.occupy(boxAround(line.Start, line.End, 0))
	}
	return l
}

type box2 struct{ minX, minY, maxX, maxY float64 }

func boxAround(a, b r2.Point, pad float64) box2 {
	return box2{
		minX: math.Min(a.X, b.X) - pad,
		minY: math.Min(a.Y, b.Y) - pad,
		maxX: math.Max(a.X, b.X) + pad,
		maxY: math.Max(a.Y, b.Y) + pad,
	}
}

func (b box2) union(o box2) box2 {
	return box2{
		minX: math.Min(b.minX, o.minX),
		minY: math.Min(b.minY, o.minY),
		maxX: math.Max(b.maxX, o.maxX),
		maxY: math.Max(b.maxY, o.maxY),
	}
}

func (l *layout) occupy(b box2) {
	rect, err := rtreego.NewRect(
		rtreego.Point{b.minX, b.minY},
		[]float64{b.maxX - b.minX + 1e-9, b.maxY - b.minY + 1e-9},
	)
	if err != nil {
		return
	}
	l.tree.Insert(&regionEntry{rect: rect})
}

func (l *layout) collides(b box2) bool {
	rect, err := rtreego.NewRect(
		rtreego.Point{b.minX, b.minY},
		[]float64{b.maxX - b.minX + 1e-9, b.maxY - b.minY + 1e-9},
	)
	if err != nil {
		return false
	}
	return len(l.tree.SearchIntersect(rect)) > 0
}

// commit records a placed dimension and marks its footprint occupied.
func (l *layout) commit(d Dimension, footprint box2) {
	l.placed = append(l.placed, d)
	l.occupy(footprint)
}

// placeHorizontal lays a horizontal dimension below the span p1–p2.
func (l *layout) placeHorizontal(value float64, p1, p2 r2.Point) {
	s := l.opts.Style
	x1, x2 := math.Min(p1.X, p2.X), math.Max(p1.X, p2.X)
	baseY := math.Min(p1.Y, p2.Y)

	offset := l.opts.Clearance
	var d Dimension
	var footprint box2
	for attempt := 0; attempt < l.opts.MaxAttempts; attempt++ {
		dimY := baseY - offset
		d = Dimension{
			Kind:    Linear,
			Value:   value,
			Text:    formatValue(Linear, value, s),
			P1:      p1,
			P2:      p2,
			Line:    [2]r2.Point{{X: x1, Y: dimY}, {X: x2, Y: dimY}},
			Ext1:    [2]r2.Point{{X: x1, Y: baseY - s.ExtensionGap}, {X: x1, Y: dimY - s.ExtensionOvershoot}},
			Ext2:    [2]r2.Point{{X: x2, Y: baseY - s.ExtensionGap}, {X: x2, Y: dimY - s.ExtensionOvershoot}},
			TextPos: r2.Point{X: (x1 + x2) / 2, Y: dimY - s.TextGap - s.TextHeight/2},
		}
		footprint = boxAround(d.Line[0], d.Line[1], s.TextHeight+s.TextGap)
		if !l.collides(footprint) {
			break
		}
		offset += l.opts.CollisionStep
	}
	l.commit(d, footprint)
}

// placeVertical lays a vertical dimension to the right of the span.
func (l *layout) placeVertical(value float64, p1, p2 r2.Point) {
	s := l.opts.Style
	y1, y2 := math.Min(p1.Y, p2.Y), math.Max(p1.Y, p2.Y)
	baseX := math.Max(p1.X, p2.X)

	offset := l.opts.Clearance
	var d Dimension
	var footprint box2
	for attempt := 0; attempt < l.opts.MaxAttempts; attempt++ {
		dimX := baseX + offset
		d = Dimension{
			Kind:         Linear,
			Value:        value,
			Text:         formatValue(Linear, value, s),
			P1:           p1,
			P2:           p2,
			Line:         [2]r2.Point{{X: dimX, Y: y1}, {X: dimX, Y: y2}},
			Ext1:         [2]r2.Point{{X: baseX + s.ExtensionGap, Y: y1}, {X: dimX + s.ExtensionOvershoot, Y: y1}},
			Ext2:         [2]r2.Point{{X: baseX + s.ExtensionGap, Y: y2}, {X: dimX + s.ExtensionOvershoot, Y: y2}},
			TextPos:      r2.Point{X: dimX + s.TextGap + s.TextHeight/2, Y: (y1 + y2) / 2},
			TextRotation: -90,
		}
		footprint = boxAround(d.Line[0], d.Line[1], s.TextHeight+s.TextGap)
		if !l.collides(footprint) {
			break
		}
		offset += l.opts.CollisionStep
	}
	l.commit(d, footprint)
}

// placeEdgeLengths dimensions the edge-length candidates that lie in
// the view plane, where the projection preserves true length. Each
// distinct value is dimensioned once per orientation to keep the
// drawing readable.
func (l *layout) placeEdgeLengths(m *mesh.Mesh, feats *feature.Features, view *project.View, viewVec r3.Vector) {
	overall := trueExtentSet(l.placed)

	type edgeKey struct {
		value      int64
		horizontal bool
	}
	seen := make(map[edgeKey]bool)

	for _, c := range feats.Candidates {
		if c.Kind != feature.EdgeLength {
			continue
		}
		dir3 := m.Vertices[c.Edge.B].Sub(m.Vertices[c.Edge.A]).Normalize()
		if math.Abs(dir3.Dot(viewVec)) > inPlaneDotMax {
			continue // foreshortened in this view
		}
		seg, ok := visibleSegment(view, c.Edge)
		if !ok {
			continue
		}
		dx := math.Abs(seg[1].X - seg[0].X)
		dy := math.Abs(seg[1].Y - seg[0].Y)
		// Only axis-aligned edges get automatic dimensions; aligned
		// dimensions of slanted edges are left to the operator.
		if dx > 1e-9 && dy > 1e-9 {
			continue
		}
		horizontal := dy <= 1e-9
		key := edgeKey{value: int64(math.Round(c.Length * 1e6)), horizontal: horizontal}
		if seen[key] || overall[key.value] {
			continue
		}
		seen[key] = true
		if horizontal {
			l.placeHorizontal(c.Length, seg[0], seg[1])
		} else {
			l.placeVertical(c.Length, seg[0], seg[1])
		}
	}
}

// trueExtentSet collects the values already claimed by the overall
// dimensions so edge dimensions do not repeat them.
func trueExtentSet(placed []Dimension) map[int64]bool {
	set := make(map[int64]bool, len(placed))
	for _, d := range placed {
		set[int64(math.Round(d.Value*1e6))] = true
	}
	return set
}

// visibleSegment finds the projected span of a source edge if any
// visible piece of it survives in the view.
func visibleSegment(view *project.View, e mesh.Edge) ([2]r2.Point, bool) {
	found := false
	var seg [2]r2.Point
	for _, line := range view.Lines {
		if line.Source != e || !line.Visible {
			continue
		}
		if !found {
			seg = [2]r2.Point{line.Start, line.End}
			found = true
			continue
		}
		// Extend to span all visible pieces of the edge.
		b := boxAround(seg[0], seg[1], 0).union(boxAround(line.Start, line.End, 0))
		seg = [2]r2.Point{{X: b.minX, Y: b.minY}, {X: b.maxX, Y: b.maxY}}
	}
	return seg, found
}

// placeDiameters annotates full cylinders whose axis runs along the
// view direction, where the bore projects as its true circle. Partial
// barrels are left to the arc recovery pass, which dimensions them as
// radii.
func (l *layout) placeDiameters(feats *feature.Features, view *project.View, viewVec r3.Vector) {
	for _, c := range feats.Candidates {
		if c.Kind != feature.Diameter {
			continue
		}
		cyl := feats.Cylinders[c.Cylinder]
		if !cyl.Full {
			continue
		}
		if math.Abs(cyl.Axis.Dot(viewVec)) < axisAlignTol {
			continue // axis not aligned with the view
		}
		l.placeDiameterAt(project.To2D(view.Direction, cyl.Point), cyl.Radius)
	}
}

// placeDiameterAt lays a diameter dimension across the circle at 45°,
// label pulled outside the bore.
func (l *layout) placeDiameterAt(center r2.Point, radius float64) {
	s := l.opts.Style
	value := radius * 2

	offset := radius + l.opts.Clearance
	var d Dimension
	var footprint box2
	for attempt := 0; attempt < l.opts.MaxAttempts; attempt++ {
		dx := radius * math.Cos(math.Pi/4)
		dy := radius * math.Sin(math.Pi/4)
		p1 := r2.Point{X: center.X - dx, Y: center.Y - dy}
		p2 := r2.Point{X: center.X + dx, Y: center.Y + dy}
		textPos := r2.Point{X: center.X, Y: center.Y + offset + s.TextGap}
		d = Dimension{
			Kind:    Diameter,
			Value:   value,
			Text:    formatValue(Diameter, value, s),
			P1:      p1,
			P2:      p2,
			Line:    [2]r2.Point{p1, p2},
			TextPos: textPos,
		}
		footprint = boxAround(textPos, textPos, s.TextHeight)
		if !l.collides(footprint) {
			break
		}
		offset += l.opts.CollisionStep
	}
	l.commit(d, footprint)
}

// placeRecoveredCircles fits circles to the view's projected outline
// and dimensions what the cylinder pass could not see: full circles
// not already claimed by an axis-aligned cylinder get a diameter, and
// partial arcs get a radius leader.
func (l *layout) placeRecoveredCircles(view *project.View) {
	for _, c := range project.DetectCircles(view, project.CircleOptions{}) {
		if c.Full {
			if !l.hasDiameter(c.Radius * 2) {
				l.placeDiameterAt(c.Center, c.Radius)
			}
			continue
		}
		l.placeRadius(c.Center, c.Radius)
	}
}

func (l *layout) hasDiameter(value float64) bool {
	for _, d := range l.placed {
		if d.Kind == Diameter && math.Abs(d.Value-value) <= 0.02*value {
			return true
		}
	}
	return false
}

// placeRadius lays a radius leader from the arc's center out through
// the arc, label at the leader tip.
func (l *layout) placeRadius(center r2.Point, radius float64) {
	s := l.opts.Style
	dirX := math.Cos(math.Pi / 4)
	dirY := math.Sin(math.Pi / 4)
	arc := r2.Point{X: center.X + dirX*radius, Y: center.Y + dirY*radius}

	offset := l.opts.Clearance
	var d Dimension
	var footprint box2
	for attempt := 0; attempt < l.opts.MaxAttempts; attempt++ {
		tip := r2.Point{X: center.X + dirX*(radius+offset), Y: center.Y + dirY*(radius+offset)}
		d = Dimension{
			Kind:    Radial,
			Value:   radius,
			Text:    formatValue(Radial, radius, s),
			P1:      center,
			P2:      arc,
			Line:    [2]r2.Point{center, tip},
			TextPos: r2.Point{X: tip.X + s.TextGap, Y: tip.Y + s.TextGap},
		}
		footprint = boxAround(d.TextPos, d.TextPos, s.TextHeight)
		if !l.collides(footprint) {
			break
		}
		offset += l.opts.CollisionStep
	}
	l.commit(d, footprint)
}

// placeAngles annotates face-angle candidates whose dihedral edge
// points along the view direction, so both faces project edge-on and
// the angle reads true.
func (l *layout) placeAngles(m *mesh.Mesh, feats *feature.Features, view *project.View, viewVec r3.Vector) {
	s := l.opts.Style
	for _, c := range feats.Candidates {
		if c.Kind != feature.FaceAngle {
			continue
		}
		// Right angles are implied by drawing convention.
		if math.Abs(c.AngleDeg-90) < 0.5 {
			continue
		}
		fa := feats.Planes[c.FaceA]
		fb := feats.Planes[c.FaceB]
		edge, ok := sharedBoundaryEdge(fa, fb)
		if !ok {
			continue
		}
		dir3 := m.Vertices[edge.B].Sub(m.Vertices[edge.A]).Normalize()
		if math.Abs(dir3.Dot(viewVec)) < axisAlignTol {
			continue // dihedral edge must point along the view
		}
		mid := m.Vertices[edge.A].Add(m.Vertices[edge.B]).Mul(0.5)
		vertex := project.To2D(view.Direction, mid)

		// Bisector of the two projected face normals points into the
		// wedge; the label sits on it.
		n1 := project.To2D(view.Direction, fa.Normal)
		n2 := project.To2D(view.Direction, fb.Normal)
		bis := r2.Point{X: n1.X + n2.X, Y: n1.Y + n2.Y}
		norm := math.Hypot(bis.X, bis.Y)
		if norm < 1e-9 {
			continue
		}
		bis = r2.Point{X: bis.X / norm, Y: bis.Y / norm}

		offset := l.opts.Clearance
		var d Dimension
		var footprint box2
		for attempt := 0; attempt < l.opts.MaxAttempts; attempt++ {
			textPos := r2.Point{X: vertex.X + bis.X*offset, Y: vertex.Y + bis.Y*offset}
			d = Dimension{
				Kind:    Angular,
				Value:   c.AngleDeg,
				Text:    formatValue(Angular, c.AngleDeg, s),
				P1:      vertex,
				P2:      textPos,
				Line:    [2]r2.Point{vertex, textPos},
				TextPos: textPos,
			}
			footprint = boxAround(textPos, textPos, s.TextHeight)
			if !l.collides(footprint) {
				break
			}
			offset += l.opts.CollisionStep
		}
		l.commit(d, footprint)
	}
}

// sharedBoundaryEdge finds an edge present in both faces' boundary
// loops.
func sharedBoundaryEdge(a, b feature.PlanarFace) (mesh.Edge, bool) {
	set := make(map[mesh.Edge]bool, len(a.Boundary))
	for _, e := range a.Boundary {
		set[e] = true
	}
	for _, e := range b.Boundary {
		if set[e] {
			return e, true
		}
	}
	return mesh.Edge{}, false
}
