// Package samples builds small parametric test parts. The cube is
// hand-built so its triangle count and edge lengths are exact; the
// curved parts are modeled as signed distance fields with the
// github.com/deadsy/sdfx library and tessellated with marching
// cubes.
package samples

import (
	"fmt"
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/golang/geo/r3"

	"github.com/robertoSreis/TechDraw/pkg/mesh"
)

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 120

// Cube returns an axis-aligned cube of the given edge length centered
// at the origin, as twelve exact triangles.
func Cube(size float64) (*mesh.Mesh, error) {
	if size <= 0 {
		return nil, fmt.Errorf("samples: cube size must be positive, got %v", size)
	}
	h := size / 2
	v := []r3.Vector{
		{X: -h, Y: -h, Z: -h},
		{X: h, Y: -h, Z: -h},
		{X: h, Y: h, Z: -h},
		{X: -h, Y: h, Z: -h},
		{X: -h, Y: -h, Z: h},
		{X: h, Y: -h, Z: h},
		{X: h, Y: h, Z: h},
		{X: -h, Y: h, Z: h},
	}
	// Two triangles per face, outward CCW winding.
	idx := []int{
		0, 2, 1, 0, 3, 2, // -Z
		4, 5, 6, 4, 6, 7, // +Z
		0, 1, 5, 0, 5, 4, // -Y
		3, 7, 6, 3, 6, 2, // +Y
		0, 4, 7, 0, 7, 3, // -X
		1, 2, 6, 1, 6, 5, // +X
	}
	return mesh.Load(v, idx)
}

// Sphere returns a tessellated sphere of the given radius.
func Sphere(radius float64) (*mesh.Mesh, error) {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		return nil, fmt.Errorf("samples: sphere: %w", err)
	}
	return tessellate(s)
}

// Cylinder returns a tessellated cylinder, axis along Z.
func Cylinder(height, radius float64) (*mesh.Mesh, error) {
	s, err := sdf.Cylinder3D(height, radius, 0)
	if err != nil {
		return nil, fmt.Errorf("samples: cylinder: %w", err)
	}
	return tessellate(s)
}

// PlateWithBore returns a rectangular plate with a circular through
// hole at its center. The bore axis is Z.
func PlateWithBore(x, y, thickness, boreRadius float64) (*mesh.Mesh, error) {
	if boreRadius*2 >= math.Min(x, y) {
		return nil, fmt.Errorf("samples: bore diameter %v exceeds plate", boreRadius*2)
	}
	plate, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: thickness}, 0)
	if err != nil {
		return nil, fmt.Errorf("samples: plate: %w", err)
	}
	// Oversize the cutter so the difference cuts cleanly through.
	bore, err := sdf.Cylinder3D(thickness*2, boreRadius, 0)
	if err != nil {
		return nil, fmt.Errorf("samples: bore: %w", err)
	}
	return tessellate(sdf.Difference3D(plate, bore))
}

// BossedPlate returns a plate with a cylindrical boss raised from its
// top face, a common shape for exercising both planar and cylindrical
// feature detection at once.
func BossedPlate(x, y, thickness, bossRadius, bossHeight float64) (*mesh.Mesh, error) {
	plate, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: thickness}, 0)
	if err != nil {
		return nil, fmt.Errorf("samples: plate: %w", err)
	}
	boss, err := sdf.Cylinder3D(bossHeight, bossRadius, 0)
	if err != nil {
		return nil, fmt.Errorf("samples: boss: %w", err)
	}
	m := sdf.Translate3d(v3.Vec{Z: thickness/2 + bossHeight/2})
	return tessellate(sdf.Union3D(plate, sdf.Transform3D(boss, m)))
}

// tessellate runs marching cubes and loads the soup into a mesh,
// welding the duplicated corner vertices.
func tessellate(s sdf.SDF3) (*mesh.Mesh, error) {
	renderer := render.NewMarchingCubesUniform(defaultMeshCells)
	triangles := render.ToTriangles(s, renderer)
	if len(triangles) == 0 {
		return nil, fmt.Errorf("samples: tessellation produced no triangles")
	}
	tris := make([][3]r3.Vector, 0, len(triangles))
	for _, tri := range triangles {
		tris = append(tris, [3]r3.Vector{
			{X: tri[0].X, Y: tri[0].Y, Z: tri[0].Z},
			{X: tri[1].X, Y: tri[1].Y, Z: tri[1].Z},
			{X: tri[2].X, Y: tri[2].Y, Z: tri[2].Z},
		})
	}
	return mesh.FromTriangles(tris)
}
