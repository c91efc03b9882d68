package simplify

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/robertoSreis/TechDraw/pkg/mesh"
)

// uvSphere builds a closed latitude/longitude sphere for reduction
// tests. segments is the longitude count, rings the latitude count.
func uvSphere(t *testing.T, radius float64, segments, rings int) *mesh.Mesh {
	t.Helper()
	var verts []r3.Vector
	verts = append(verts, r3.Vector{Y: radius}) // north pole
	for r := 1; r < rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s < segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			verts = append(verts, r3.Vector{
				X: radius * math.Sin(phi) * math.Cos(theta),
				Y: radius * math.Cos(phi),
				Z: radius * math.Sin(phi) * math.Sin(theta),
			})
		}
	}
	south := len(verts)
	verts = append(verts, r3.Vector{Y: -radius})

	ring := func(r, s int) int { return 1 + (r-1)*segments + s%segments }
	var idx []int
	for s := 0; s < segments; s++ {
		idx = append(idx, 0, ring(1, s), ring(1, s+1))
	}
	for r := 1; r < rings-1; r++ {
		for s := 0; s < segments; s++ {
			a, b := ring(r, s), ring(r, s+1)
			c, d := ring(r+1, s), ring(r+1, s+1)
			idx = append(idx, a, c, d, a, d, b)
		}
	}
	for s := 0; s < segments; s++ {
		idx = append(idx, south, ring(rings-1, s+1), ring(rings-1, s))
	}

	m, err := mesh.Load(verts, idx)
	if err != nil {
		t.Fatalf("uvSphere: %v", err)
	}
	if !m.IsWatertight() {
		t.Fatal("uvSphere: not watertight")
	}
	return m
}

func TestSimplifyReducesSphere(t *testing.T) {
	m := uvSphere(t, 10, 32, 16)
	before := m.TriangleCount()

	res, err := Simplify(context.Background(), m, Options{
		ReductionRatio: 0.83,
		MinTriangles:   4,
	})
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.TrianglesAfter > before {
		t.Errorf("triangle count grew: %d -> %d", before, res.TrianglesAfter)
	}
	if res.TrianglesAfter < 4 {
		t.Errorf("triangle count %d below floor", res.TrianglesAfter)
	}
	// A smooth dense sphere reduces well below half under default
	// quality settings.
	if res.TrianglesAfter > before/2 {
		t.Errorf("weak reduction: %d -> %d", before, res.TrianglesAfter)
	}
	if res.AchievedRatio <= 0 || res.AchievedRatio > 1 {
		t.Errorf("AchievedRatio = %v out of range", res.AchievedRatio)
	}
	if !res.Mesh.IsWatertight() {
		t.Error("simplified sphere lost watertightness")
	}
}

func TestSimplifyDenseSphereHitsRatio(t *testing.T) {
	// A densely tessellated sphere has plenty of removable detail, so
	// the requested ratio should be reached exactly and the surviving
	// vertices should stay on the sphere within the quality tolerance.
	m := uvSphere(t, 10, 70, 71)
	before := m.TriangleCount()
	if before != 9800 {
		t.Fatalf("triangle count = %d, want 9800", before)
	}

	res, err := Simplify(context.Background(), m, Options{
		ReductionRatio: 0.83,
		MinTriangles:   4,
	})
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.TrianglesAfter > 1700 {
		t.Errorf("TrianglesAfter = %d, want <= 1700 for ratio 0.83 of %d", res.TrianglesAfter, before)
	}
	if math.Abs(res.AchievedRatio-res.RequestedRatio) > 0.02 {
		t.Errorf("achieved %v, requested %v", res.AchievedRatio, res.RequestedRatio)
	}
	if !res.Mesh.IsWatertight() {
		t.Error("simplified sphere lost watertightness")
	}

	// Collapses must not pull vertices off the surface by more than
	// the default quality tolerance times the bounding diagonal.
	maxOff := m.Bounds().Diagonal() * 0.01
	for _, v := range res.Mesh.Vertices {
		if off := math.Abs(v.Norm() - 10); off > maxOff {
			t.Fatalf("vertex %v is %v off the sphere, limit %v", v, off, maxOff)
		}
	}
}

func TestSimplifyPreservesBounds(t *testing.T) {
	m := uvSphere(t, 5, 24, 12)
	res, err := Simplify(context.Background(), m, Options{ReductionRatio: 0.5})
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	in, out := m.Bounds(), res.Mesh.Bounds()
	slack := in.Diagonal() * 0.01
	if out.Min.X < in.Min.X-slack || out.Min.Y < in.Min.Y-slack || out.Min.Z < in.Min.Z-slack ||
		out.Max.X > in.Max.X+slack || out.Max.Y > in.Max.Y+slack || out.Max.Z > in.Max.Z+slack {
		t.Errorf("bounds escaped input box: in %+v out %+v", in, out)
	}
}

func TestSimplifyInputUntouched(t *testing.T) {
	m := uvSphere(t, 10, 24, 12)
	before := m.TriangleCount()
	if _, err := Simplify(context.Background(), m, Options{ReductionRatio: 0.83}); err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if m.TriangleCount() != before {
		t.Errorf("input mesh mutated: %d -> %d triangles", before, m.TriangleCount())
	}
}

func TestSimplifyTargetAboveInputIsNoop(t *testing.T) {
	m := uvSphere(t, 10, 16, 8)
	res, err := Simplify(context.Background(), m, Options{
		TriangleBudget: m.TriangleCount() * 2,
	})
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if res.TrianglesAfter != m.TriangleCount() {
		t.Errorf("noop request changed count: %d -> %d", m.TriangleCount(), res.TrianglesAfter)
	}
	if res.QualityLimited {
		t.Error("noop request flagged as quality limited")
	}
}

func TestSimplifyTriangleBudget(t *testing.T) {
	m := uvSphere(t, 10, 32, 16)
	budget := 200
	res, err := Simplify(context.Background(), m, Options{TriangleBudget: budget})
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if !res.QualityLimited && res.TrianglesAfter > budget {
		t.Errorf("TrianglesAfter = %d exceeds budget %d without quality limit", res.TrianglesAfter, budget)
	}
}

func TestSimplifyTightToleranceFlagsQuality(t *testing.T) {
	m := uvSphere(t, 10, 32, 16)
	res, err := Simplify(context.Background(), m, Options{
		ReductionRatio:   0.95,
		QualityTolerance: 1e-9,
		MinTriangles:     4,
	})
	if err != nil {
		t.Fatalf("Simplify: %v", err)
	}
	if !res.QualityLimited {
		t.Error("near-zero tolerance should stop short and set QualityLimited")
	}
	if res.AchievedRatio >= res.RequestedRatio {
		t.Errorf("achieved %v should fall short of requested %v", res.AchievedRatio, res.RequestedRatio)
	}
}

func TestSimplifyCancellation(t *testing.T) {
	m := uvSphere(t, 10, 16, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Simplify(ctx, m, Options{ReductionRatio: 0.83})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
