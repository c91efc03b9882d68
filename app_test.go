package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/robertoSreis/TechDraw/pkg/mesh"
	"github.com/robertoSreis/TechDraw/pkg/mesh/stl"
	"github.com/robertoSreis/TechDraw/pkg/pipeline"
	"github.com/robertoSreis/TechDraw/pkg/samples"
)

// TestE2ECubeDrawing exercises the full path the CLI takes: sample
// part, pipeline, result flattening. The JSON document must round
// trip and describe the expected drawing.
func TestE2ECubeDrawing(t *testing.T) {
	opts := pipeline.DefaultOptions()
	opts.SkipSimplify = true
	app := NewApp(opts)

	m, err := app.LoadSample("cube")
	if err != nil {
		t.Fatalf("LoadSample: %v", err)
	}

	result, err := app.Generate(context.Background(), m, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Views) != 7 {
		t.Fatalf("views = %d, want 7", len(result.Views))
	}

	names := map[string]bool{}
	for _, v := range result.Views {
		names[v.Name] = true
		if len(v.Lines) == 0 {
			t.Errorf("view %q: no lines", v.Name)
		}
		if v.Width <= 0 || v.Height <= 0 {
			t.Errorf("view %q: degenerate size %v x %v", v.Name, v.Width, v.Height)
		}
	}
	for _, want := range []string{"front", "back", "top", "bottom", "left", "right", "isometric"} {
		if !names[want] {
			t.Errorf("missing view %q", want)
		}
	}
	if !result.Stats.Watertight {
		t.Error("stats: cube should be watertight")
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(result); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded DrawingResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Views) != len(result.Views) {
		t.Errorf("round trip lost views: %d -> %d", len(result.Views), len(decoded.Views))
	}
}

// TestE2ESTLFile writes a cube to disk as STL and runs the file path
// the -in flag takes.
func TestE2ESTLFile(t *testing.T) {
	m, err := samples.Cube(10)
	if err != nil {
		t.Fatalf("Cube: %v", err)
	}
	path := filepath.Join(t.TempDir(), "cube.stl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	soup := triangleSoup(m)
	if err := stl.Encode(f, soup); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	f.Close()

	opts := pipeline.DefaultOptions()
	opts.SkipSimplify = true
	opts.ViewSet = []string{"front"}
	app := NewApp(opts)

	loaded, err := app.LoadSTL(path, false)
	if err != nil {
		t.Fatalf("LoadSTL: %v", err)
	}
	result, err := app.Generate(context.Background(), loaded, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Views) != 1 || result.Views[0].Name != "front" {
		t.Fatalf("unexpected views: %+v", result.Views)
	}
	if got := len(result.Views[0].Lines); got != 4 {
		t.Errorf("front view lines = %d, want 4", got)
	}
}

// triangleSoup expands a mesh back into per-triangle corner triples.
func triangleSoup(m *mesh.Mesh) [][3]r3.Vector {
	soup := make([][3]r3.Vector, 0, len(m.Triangles))
	for _, tri := range m.Triangles {
		soup = append(soup, [3]r3.Vector{
			m.Vertices[tri.V[0]],
			m.Vertices[tri.V[1]],
			m.Vertices[tri.V[2]],
		})
	}
	return soup
}

func TestLoadSampleUnknown(t *testing.T) {
	app := NewApp(pipeline.DefaultOptions())
	if _, err := app.LoadSample("teapot"); err == nil {
		t.Error("unknown sample should fail")
	}
}
