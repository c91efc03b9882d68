package dimension

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/robertoSreis/TechDraw/pkg/analyze"
	"github.com/robertoSreis/TechDraw/pkg/feature"
	"github.com/robertoSreis/TechDraw/pkg/mesh"
	"github.com/robertoSreis/TechDraw/pkg/project"
)

func boxMesh(t *testing.T, sx, sy, sz float64) *mesh.Mesh {
	t.Helper()
	hx, hy, hz := sx/2, sy/2, sz/2
	v := []r3.Vector{
		{X: -hx, Y: -hy, Z: -hz},
		{X: hx, Y: -hy, Z: -hz},
		{X: hx, Y: hy, Z: -hz},
		{X: -hx, Y: hy, Z: -hz},
		{X: -hx, Y: -hy, Z: hz},
		{X: hx, Y: -hy, Z: hz},
		{X: hx, Y: hy, Z: hz},
		{X: -hx, Y: hy, Z: hz},
	}
	idx := []int{
		0, 2, 1, 0, 3, 2,
		4, 5, 6, 4, 6, 7,
		0, 1, 5, 0, 5, 4,
		3, 7, 6, 3, 6, 2,
		0, 4, 7, 0, 7, 3,
		1, 2, 6, 1, 6, 5,
	}
	m, err := mesh.Load(v, idx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

// wedge is a right triangular prism: a 10x10 right triangle in XY
// extruded 10 units along Z. Its slanted face meets the others at 135
// degrees.
func wedge(t *testing.T) *mesh.Mesh {
	t.Helper()
	v := []r3.Vector{
		{X: 0, Y: 0, Z: 0},
		{X: 10, Y: 0, Z: 0},
		{X: 0, Y: 10, Z: 0},
		{X: 0, Y: 0, Z: 10},
		{X: 10, Y: 0, Z: 10},
		{X: 0, Y: 10, Z: 10},
	}
	idx := []int{
		0, 2, 1, // back cap, -Z
		3, 4, 5, // front cap, +Z
		0, 1, 4, 0, 4, 3, // bottom, -Y
		0, 3, 5, 0, 5, 2, // left, -X
		1, 2, 5, 1, 5, 4, // slanted face
	}
	m, err := mesh.Load(v, idx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

// prism builds a closed n-sided prism around the Y axis with fan caps.
func prism(t *testing.T, radius, height float64, sides int) *mesh.Mesh {
	t.Helper()
	var verts []r3.Vector
	for _, y := range []float64{-height / 2, height / 2} {
		for s := 0; s < sides; s++ {
			a := 2 * math.Pi * float64(s) / float64(sides)
			verts = append(verts, r3.Vector{
				X: radius * math.Cos(a),
				Y: y,
				Z: radius * math.Sin(a),
			})
		}
	}
	bot := func(s int) int { return s % sides }
	top := func(s int) int { return sides + s%sides }

	var idx []int
	for s := 0; s < sides; s++ {
		idx = append(idx, bot(s), top(s), top(s+1))
		idx = append(idx, bot(s), top(s+1), bot(s+1))
	}
	for s := 1; s < sides-1; s++ {
		idx = append(idx, bot(0), bot(s), bot(s+1))
		idx = append(idx, top(0), top(s+1), top(s))
	}
	m, err := mesh.Load(verts, idx)
	if err != nil {
		t.Fatalf("prism: %v", err)
	}
	return m
}

// halfRound builds a half cylinder: a semicircular cross section in
// XY, flat face on the y=0 plane, extruded along Z. Seen from the
// front its barrel reads as an arc, not a full circle.
func halfRound(t *testing.T, radius, height float64, sides int) *mesh.Mesh {
	t.Helper()
	var verts []r3.Vector
	for _, z := range []float64{-height / 2, height / 2} {
		for s := 0; s <= sides; s++ {
			a := math.Pi * float64(s) / float64(sides)
			verts = append(verts, r3.Vector{
				X: radius * math.Cos(a),
				Y: radius * math.Sin(a),
				Z: z,
			})
		}
	}
	bot := func(s int) int { return s }
	top := func(s int) int { return sides + 1 + s }

	var idx []int
	for s := 0; s < sides; s++ {
		// Outward-wound barrel quad.
		idx = append(idx, bot(s), bot(s+1), top(s+1))
		idx = append(idx, bot(s), top(s+1), top(s))
	}
	// Cap fans: front (+Z) winds counter-clockwise, back clockwise.
	for s := 1; s < sides; s++ {
		idx = append(idx, top(0), top(s), top(s+1))
		idx = append(idx, bot(0), bot(s+1), bot(s))
	}
	// Flat face closing the chord, normal -Y.
	idx = append(idx, bot(0), top(0), top(sides))
	idx = append(idx, bot(0), top(sides), bot(sides))

	m, err := mesh.Load(verts, idx)
	if err != nil {
		t.Fatalf("halfRound: %v", err)
	}
	return m
}

func layoutFor(t *testing.T, m *mesh.Mesh, dir project.Direction) []Dimension {
	t.Helper()
	an := analyze.Analyze(m, analyze.DefaultOptions())
	feats := feature.Detect(m, an, feature.Options{})
	view := project.Project(m, an, dir, project.Options{})
	return LayoutView(m, feats, view, Options{})
}

func TestCubeOverallDimensions(t *testing.T) {
	dims := layoutFor(t, boxMesh(t, 10, 10, 10), project.Front)
	if len(dims) != 2 {
		t.Fatalf("dimensions = %d, want 2 (overall width and height)", len(dims))
	}
	for _, d := range dims {
		if d.Kind != Linear {
			t.Errorf("kind = %v, want Linear", d.Kind)
		}
		if math.Abs(d.Value-10) > 1e-9 {
			t.Errorf("value = %v, want 10", d.Value)
		}
		if d.Text != "10.00" {
			t.Errorf("text = %q, want \"10.00\"", d.Text)
		}
	}
	// One horizontal, one vertical.
	if dims[0].TextRotation == dims[1].TextRotation {
		t.Errorf("both dimensions share rotation %v", dims[0].TextRotation)
	}
}

func TestOverallDimensionsUseTrueExtents(t *testing.T) {
	dims := layoutFor(t, boxMesh(t, 20, 10, 5), project.Front)
	if len(dims) != 2 {
		t.Fatalf("dimensions = %d, want 2", len(dims))
	}
	values := map[float64]bool{}
	for _, d := range dims {
		values[math.Round(d.Value)] = true
	}
	if !values[20] || !values[10] {
		t.Errorf("values = %v, want {20, 10}", values)
	}
}

func TestDimensionLinesStandOffGeometry(t *testing.T) {
	m := boxMesh(t, 10, 10, 10)
	an := analyze.Analyze(m, analyze.DefaultOptions())
	feats := feature.Detect(m, an, feature.Options{})
	view := project.Project(m, an, project.Front, project.Options{})
	dims := LayoutView(m, feats, view, Options{Clearance: 2})

	for _, d := range dims {
		for _, p := range d.Line {
			inside := p.X > view.Bounds.Min.X && p.X < view.Bounds.Max.X &&
				p.Y > view.Bounds.Min.Y && p.Y < view.Bounds.Max.Y
			if inside {
				t.Errorf("dimension line endpoint %v sits inside the view geometry", p)
			}
		}
	}
}

func TestDimensionTextDoesNotOverlap(t *testing.T) {
	dims := layoutFor(t, boxMesh(t, 20, 10, 5), project.Front)
	s := DefaultStyle()
	for i := 0; i < len(dims); i++ {
		for j := i + 1; j < len(dims); j++ {
			a, b := dims[i].TextPos, dims[j].TextPos
			if math.Abs(a.X-b.X) < s.TextHeight && math.Abs(a.Y-b.Y) < s.TextHeight {
				t.Errorf("text positions %v and %v overlap", a, b)
			}
		}
	}
}

func TestWedgeAngularDimension(t *testing.T) {
	dims := layoutFor(t, wedge(t), project.Front)
	var angular int
	for _, d := range dims {
		if d.Kind != Angular {
			continue
		}
		angular++
		if math.Abs(d.Value-135) > 0.01 {
			t.Errorf("angle = %v, want 135", d.Value)
		}
		if d.Text != "135.0°" {
			t.Errorf("text = %q, want \"135.0°\"", d.Text)
		}
	}
	if angular == 0 {
		t.Error("no angular dimension placed for the slanted face")
	}
}

func TestIsometricViewCarriesNoDimensions(t *testing.T) {
	m := boxMesh(t, 10, 10, 10)
	an := analyze.Analyze(m, analyze.DefaultOptions())
	feats := feature.Detect(m, an, feature.Options{})
	view := project.Project(m, an, project.Isometric, project.Options{})
	dims := LayoutView(m, feats, view, Options{})
	if len(dims) != 0 {
		t.Errorf("isometric cube view has %d dimensions, want 0", len(dims))
	}
}

func TestHalfRoundGetsRadiusNotDiameter(t *testing.T) {
	// Seen along its axis the half cylinder shows a 180 degree arc, so
	// the drawing calls out a radius rather than a bore diameter.
	dims := layoutFor(t, halfRound(t, 5, 10, 16), project.Front)

	var radial, diameter int
	for _, d := range dims {
		switch d.Kind {
		case Radial:
			radial++
			if math.Abs(d.Value-5) > 0.05 {
				t.Errorf("radius = %v, want 5", d.Value)
			}
			if d.Text != "R5.00" {
				t.Errorf("text = %q, want \"R5.00\"", d.Text)
			}
		case Diameter:
			diameter++
		}
	}
	if radial != 1 {
		t.Errorf("radial dimensions = %d, want 1", radial)
	}
	if diameter != 0 {
		t.Errorf("diameter dimensions = %d, want 0 for a half barrel", diameter)
	}
}

func TestPrismTopViewSingleDiameter(t *testing.T) {
	// Both the cylinder pass and the outline recovery see the same
	// bore from the top; only one diameter callout may survive.
	dims := layoutFor(t, prism(t, 5, 20, 32), project.Top)

	var diameters int
	for _, d := range dims {
		switch d.Kind {
		case Diameter:
			diameters++
			if d.Text != "⌀10.00" {
				t.Errorf("text = %q, want \"⌀10.00\"", d.Text)
			}
		case Radial:
			t.Errorf("unexpected radius dimension %q on a full circle", d.Text)
		}
	}
	if diameters != 1 {
		t.Errorf("diameter dimensions = %d, want 1", diameters)
	}
}

func TestLayoutSurvivesEdgeOnView(t *testing.T) {
	// A zero-thickness sheet seen edge-on projects to a zero-area view.
	// Layout must cope with the collapsed extent instead of producing
	// NaN geometry.
	sheet := [][3]r3.Vector{
		{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}},
		{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}},
	}
	m, err := mesh.FromTriangles(sheet)
	if err != nil {
		t.Fatalf("FromTriangles: %v", err)
	}
	an := analyze.Analyze(m, analyze.DefaultOptions())
	feats := feature.Detect(m, an, feature.Options{})

	for _, dir := range []project.Direction{project.Top, project.Bottom, project.Left, project.Right} {
		view := project.Project(m, an, dir, project.Options{})
		for _, d := range LayoutView(m, feats, view, Options{}) {
			for _, p := range []r2.Point{d.P1, d.P2, d.TextPos, d.Line[0], d.Line[1]} {
				if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
					t.Errorf("%v: dimension %q has a non-finite point %v", dir, d.Text, p)
				}
			}
		}
	}
}

func TestFormatting(t *testing.T) {
	s := DefaultStyle()
	cases := []struct {
		kind Kind
		v    float64
		want string
	}{
		{Linear, 12.5, "12.50"},
		{Diameter, 8, "⌀8.00"},
		{Radial, 4, "R4.00"},
		{Angular, 135, "135.0°"},
	}
	for _, tc := range cases {
		if got := formatValue(tc.kind, tc.v, s); got != tc.want {
			t.Errorf("formatValue(%v, %v) = %q, want %q", tc.kind, tc.v, got, tc.want)
		}
	}
}

func TestLinearShowsUnitWhenConfigured(t *testing.T) {
	s := DefaultStyle()
	s.ShowUnit = true
	if got := formatValue(Linear, 10, s); got != "10.00 mm" {
		t.Errorf("formatValue = %q, want \"10.00 mm\"", got)
	}
}
