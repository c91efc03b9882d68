package stl

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
)

// quadTris is a unit square in the XY plane split into two triangles.
var quadTris = [][3]r3.Vector{
	{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 0},
	},
	{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 1, Z: 0},
		{X: 0, Y: 1, Z: 0},
	},
}

func TestBinaryRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, quadTris); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// 80-byte header + 4-byte count + 50 bytes per triangle.
	if want := 80 + 4 + 50*len(quadTris); buf.Len() != want {
		t.Errorf("encoded length = %d, want %d", buf.Len(), want)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(quadTris) {
		t.Fatalf("decoded %d triangles, want %d", len(got), len(quadTris))
	}
	for i, tri := range got {
		for j := range tri {
			if tri[j].Sub(quadTris[i][j]).Norm() > 1e-6 {
				t.Errorf("triangle %d vertex %d = %v, want %v", i, j, tri[j], quadTris[i][j])
			}
		}
	}
}

func TestDecodeASCII(t *testing.T) {
	src := `solid square
facet normal 0 0 1
  outer loop
    vertex 0 0 0
    vertex 1 0 0
    vertex 1 1 0
  endloop
endfacet
facet normal 0 0 1
  outer loop
    vertex 0 0 0
    vertex 1 1 0
    vertex 0 1 0
  endloop
endfacet
endsolid square
`
	got, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("decoded %d triangles, want 2", len(got))
	}
	if got[0][1] != (r3.Vector{X: 1, Y: 0, Z: 0}) {
		t.Errorf("vertex = %v, want (1,0,0)", got[0][1])
	}
}

func TestDecodeASCIIMalformed(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"truncated facet", "solid x\nfacet normal 0 0 1\nouter loop\nvertex 0 0 0\nendloop\nendfacet\nendsolid x\n"},
		{"bad number", "solid x\nfacet normal 0 0 1\nouter loop\nvertex a b c\nvertex 0 0 0\nvertex 1 0 0\nendloop\nendfacet\nendsolid x\n"},
		{"empty solid", "solid x\nendsolid x\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tc.src)); err == nil {
				t.Error("expected decode error, got nil")
			}
		})
	}
}

func TestDecodeBinaryTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, quadTris); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	short := buf.Bytes()[:buf.Len()-10]
	if _, err := Decode(bytes.NewReader(short)); err == nil {
		t.Error("expected error for truncated binary STL, got nil")
	}
}

func TestDecodeModelWelds(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, quadTris); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := DecodeModel(&buf, DecodeOptions{})
	if err != nil {
		t.Fatalf("DecodeModel: %v", err)
	}
	// The soup has 6 corner entries but only 4 distinct positions.
	if got := m.VertexCount(); got != 4 {
		t.Errorf("VertexCount = %d, want 4", got)
	}
	if got := m.TriangleCount(); got != 2 {
		t.Errorf("TriangleCount = %d, want 2", got)
	}
}

func TestDecodeModelZUpConversion(t *testing.T) {
	// A triangle standing in the XZ plane under Z-up convention
	// should lie flat only after conversion swaps Y and Z.
	tris := [][3]r3.Vector{
		{
			{X: 0, Y: 0, Z: 0},
			{X: 1, Y: 0, Z: 0},
			{X: 0, Y: 0, Z: 1},
		},
	}
	var buf bytes.Buffer
	if err := Encode(&buf, tris); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	m, err := DecodeModel(&buf, DecodeOptions{ZUpToYUp: true})
	if err != nil {
		t.Fatalf("DecodeModel: %v", err)
	}
	b := m.Bounds()
	if b.Size().Z != 0 || math.Abs(b.Size().Y-1) > 1e-9 {
		t.Errorf("bounds size = %v, want height along Y", b.Size())
	}
	// Winding must flip with the axis swap so the normal still
	// points away from the surface.
	n := m.Triangles[0].Normal
	if n.Z >= 0 {
		t.Errorf("normal = %v, want -Z facing", n)
	}
}
