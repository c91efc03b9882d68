package samples

import (
	"math"
	"testing"
)

func TestCubeExactGeometry(t *testing.T) {
	m, err := Cube(10)
	if err != nil {
		t.Fatalf("Cube: %v", err)
	}
	if got := m.VertexCount(); got != 8 {
		t.Errorf("VertexCount = %d, want 8", got)
	}
	if got := m.TriangleCount(); got != 12 {
		t.Errorf("TriangleCount = %d, want 12", got)
	}
	if !m.IsWatertight() {
		t.Error("cube not watertight")
	}
	s := m.Bounds().Size()
	if s.X != 10 || s.Y != 10 || s.Z != 10 {
		t.Errorf("bounds size = %v, want (10,10,10)", s)
	}
	c := m.Bounds().Center()
	if c.Norm() > 1e-12 {
		t.Errorf("center = %v, want origin", c)
	}
}

func TestCubeRejectsBadSize(t *testing.T) {
	if _, err := Cube(0); err == nil {
		t.Error("Cube(0) should fail")
	}
	if _, err := Cube(-1); err == nil {
		t.Error("Cube(-1) should fail")
	}
}

func TestPlateWithBoreRejectsOversizeBore(t *testing.T) {
	if _, err := PlateWithBore(10, 10, 2, 6); err == nil {
		t.Error("bore wider than the plate should fail")
	}
}

func TestSphereTessellation(t *testing.T) {
	if testing.Short() {
		t.Skip("marching cubes is slow")
	}
	m, err := Sphere(5)
	if err != nil {
		t.Fatalf("Sphere: %v", err)
	}
	if !m.IsWatertight() {
		t.Error("sphere not watertight")
	}
	d := m.Bounds().Size()
	for _, got := range []float64{d.X, d.Y, d.Z} {
		if math.Abs(got-10) > 0.5 {
			t.Errorf("sphere extent = %v, want about 10", got)
		}
	}
}

func TestPlateWithBore(t *testing.T) {
	if testing.Short() {
		t.Skip("marching cubes is slow")
	}
	m, err := PlateWithBore(40, 30, 5, 4)
	if err != nil {
		t.Fatalf("PlateWithBore: %v", err)
	}
	if !m.IsWatertight() {
		t.Error("plate not watertight")
	}
	s := m.Bounds().Size()
	if math.Abs(s.X-40) > 1 || math.Abs(s.Y-30) > 1 || math.Abs(s.Z-5) > 1 {
		t.Errorf("bounds size = %v, want about (40,30,5)", s)
	}
}
