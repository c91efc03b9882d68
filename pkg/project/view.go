package project

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Direction enumerates the seven canonical view orientations.
type Direction int

const (
	Front Direction = iota
	Back
	Top
	Bottom
	Left
	Right
	Isometric
)

// Canonical returns all seven directions in drawing order.
func Canonical() []Direction {
	return []Direction{Front, Back, Top, Bottom, Left, Right, Isometric}
}

var directionNames = map[Direction]string{
	Front:     "front",
	Back:      "back",
	Top:       "top",
	Bottom:    "bottom",
	Left:      "left",
	Right:     "right",
	Isometric: "isometric",
}

func (d Direction) String() string {
	if s, ok := directionNames[d]; ok {
		return s
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection maps a view name back to its Direction. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseDirection(s string) (Direction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d, name := range directionNames {
		if name == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown view direction %q", s)
}

// matrix is a row-major 3x3 rotation.
type matrix [3]r3.Vector

func (m matrix) apply(v r3.Vector) r3.Vector {
	return r3.Vector{X: m[0].Dot(v), Y: m[1].Dot(v), Z: m[2].Dot(v)}
}

func mul(a, b matrix) matrix {
	var out matrix
	cols := [3]r3.Vector{
		{X: b[0].X, Y: b[1].X, Z: b[2].X},
		{X: b[0].Y, Y: b[1].Y, Z: b[2].Y},
		{X: b[0].Z, Y: b[1].Z, Z: b[2].Z},
	}
	for i := 0; i < 3; i++ {
		out[i] = r3.Vector{X: a[i].Dot(cols[0]), Y: a[i].Dot(cols[1]), Z: a[i].Dot(cols[2])}
	}
	return out
}

var identity = matrix{{X: 1}, {Y: 1}, {Z: 1}}

func rotX(deg float64) matrix {
	s, c := math.Sincos(deg * math.Pi / 180)
	return matrix{
		{X: 1},
		{Y: c, Z: -s},
		{Y: s, Z: c},
	}
}

func rotY(deg float64) matrix {
	s, c := math.Sincos(deg * math.Pi / 180)
	return matrix{
		{X: c, Z: s},
		{Y: 1},
		{X: -s, Z: c},
	}
}

// viewTransform is the rotation plus the 2D flips applied to the
// projected coordinates. Flips stay outside the rotation so normals
// keep transforming under a proper rotation.
type viewTransform struct {
	rot          matrix
	flipH, flipV bool
}

// isoAltitude is the rotation about X that makes all three axes
// foreshorten equally in the isometric view: atan(1/sqrt 2).
const isoAltitude = 35.264389682754654

// transformFor returns the viewing transform for d. After rotation
// the viewer looks down the -Z axis, so the projected coordinates are
// the rotated X and Y and the rotated Z is depth toward the viewer.
func transformFor(d Direction) viewTransform {
	switch d {
	case Front:
		return viewTransform{rot: identity}
	case Back:
		return viewTransform{rot: rotY(180)}
	case Top:
		return viewTransform{rot: rotX(90), flipV: true}
	case Bottom:
		return viewTransform{rot: rotX(-90)}
	case Left:
		return viewTransform{rot: rotY(90)}
	case Right:
		return viewTransform{rot: rotY(-90)}
	case Isometric:
		return viewTransform{rot: mul(rotX(isoAltitude), rotY(45))}
	default:
		return viewTransform{rot: identity}
	}
}

// ViewVector returns the world-space direction the viewer looks
// along for d.
func ViewVector(d Direction) r3.Vector {
	t := transformFor(d)
	// The viewer looks along -Z in rotated space; pull that back to
	// world space via the rotation transpose.
	return r3.Vector{X: -t.rot[2].X, Y: -t.rot[2].Y, Z: -t.rot[2].Z}
}

// UpVector returns the world-space up direction for d.
func UpVector(d Direction) r3.Vector {
	t := transformFor(d)
	return r3.Vector{X: t.rot[1].X, Y: t.rot[1].Y, Z: t.rot[1].Z}
}

// To2D maps a world-space point into the 2D coordinates of view d,
// consistent with the lines emitted by Project.
func To2D(d Direction, p r3.Vector) r2.Point {
	t := transformFor(d)
	rp := t.rot.apply(p)
	return applyFlips(t, r2.Point{X: rp.X, Y: rp.Y})
}
