package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/robertoSreis/TechDraw/pkg/mesh"
	"github.com/robertoSreis/TechDraw/pkg/mesh/stl"
	"github.com/robertoSreis/TechDraw/pkg/pipeline"
	"github.com/robertoSreis/TechDraw/pkg/samples"
)

// App holds one drawing request and turns it into the
// JSON-serializable result emitted on stdout.
type App struct {
	opts pipeline.Options
}

// PointData is a 2D coordinate in view space.
type PointData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LineData is one projected edge segment.
type LineData struct {
	Start      PointData `json:"start"`
	End        PointData `json:"end"`
	Visible    bool      `json:"visible"`
	Silhouette bool      `json:"silhouette"`
}

// DimensionData is one placed annotation.
type DimensionData struct {
	Kind    string       `json:"kind"`
	Value   float64      `json:"value"`
	Text    string       `json:"text"`
	Line    [2]PointData `json:"line"`
	Ext1    [2]PointData `json:"ext1"`
	Ext2    [2]PointData `json:"ext2"`
	TextPos PointData    `json:"textPos"`
	TextRot float64      `json:"textRotation"`
}

// ViewData is one complete orthographic view.
type ViewData struct {
	Name       string          `json:"name"`
	Lines      []LineData      `json:"lines"`
	Dimensions []DimensionData `json:"dimensions"`
	Width      float64         `json:"width"`
	Height     float64         `json:"height"`
}

// StatsData summarizes the processed model for the caller.
type StatsData struct {
	Vertices          int     `json:"vertices"`
	Triangles         int     `json:"triangles"`
	TrianglesBefore   int     `json:"trianglesBefore"`
	DegenerateDropped int     `json:"degenerateDropped"`
	Watertight        bool    `json:"watertight"`
	AchievedReduction float64 `json:"achievedReduction"`
}

// DrawingResult is the full output document.
type DrawingResult struct {
	Views    []ViewData `json:"views"`
	Stats    StatsData  `json:"stats"`
	Warnings []string   `json:"warnings"`
}

// NewApp creates an App with the given pipeline options.
func NewApp(opts pipeline.Options) *App {
	return &App{opts: opts}
}

// LoadSTL reads and normalizes a mesh from an STL file.
func (a *App) LoadSTL(path string, zUp bool) (*mesh.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return stl.DecodeModel(f, stl.DecodeOptions{ZUpToYUp: zUp})
}

// LoadSample builds one of the built-in parametric parts by name.
func (a *App) LoadSample(name string) (*mesh.Mesh, error) {
	switch name {
	case "cube":
		return samples.Cube(10)
	case "sphere":
		return samples.Sphere(5)
	case "cylinder":
		return samples.Cylinder(20, 5)
	case "plate":
		return samples.PlateWithBore(40, 30, 5, 4)
	case "boss":
		return samples.BossedPlate(40, 30, 5, 6, 8)
	default:
		return nil, fmt.Errorf("unknown sample %q (cube, sphere, cylinder, plate, boss)", name)
	}
}

// Generate runs the pipeline over a loaded mesh and flattens the
// result into the output document.
func (a *App) Generate(ctx context.Context, m *mesh.Mesh, verbose bool) (*DrawingResult, error) {
	var progress pipeline.Progress
	if verbose {
		progress = func(stage string, frac float64) {
			log.Printf("%s %3.0f%%", stage, frac*100)
		}
	}
	res, err := pipeline.Generate(ctx, m, a.opts, progress)
	if err != nil {
		return nil, err
	}

	out := &DrawingResult{
		Views: make([]ViewData, 0, len(res.Views)),
		Stats: StatsData{
			Vertices:          res.Stats.Vertices,
			Triangles:         res.Stats.Triangles,
			TrianglesBefore:   res.Stats.TrianglesBefore,
			DegenerateDropped: res.Stats.DegenerateDropped,
			Watertight:        res.Stats.Watertight,
			AchievedReduction: res.Stats.AchievedRatio,
		},
		Warnings: res.Warnings,
	}
	for _, v := range res.Views {
		vd := ViewData{
			Name:   v.Direction.String(),
			Width:  v.Bounds.Width(),
			Height: v.Bounds.Height(),
		}
		for _, l := range v.Lines {
			vd.Lines = append(vd.Lines, LineData{
				Start:      PointData{X: l.Start.X, Y: l.Start.Y},
				End:        PointData{X: l.End.X, Y: l.End.Y},
				Visible:    l.Visible,
				Silhouette: l.Silhouette,
			})
		}
		for _, d := range v.Dimensions {
			vd.Dimensions = append(vd.Dimensions, DimensionData{
				Kind:  d.Kind.String(),
				Value: d.Value,
				Text:  d.Text,
				Line: [2]PointData{
					{X: d.Line[0].X, Y: d.Line[0].Y},
					{X: d.Line[1].X, Y: d.Line[1].Y},
				},
				Ext1: [2]PointData{
					{X: d.Ext1[0].X, Y: d.Ext1[0].Y},
					{X: d.Ext1[1].X, Y: d.Ext1[1].Y},
				},
				Ext2: [2]PointData{
					{X: d.Ext2[0].X, Y: d.Ext2[0].Y},
					{X: d.Ext2[1].X, Y: d.Ext2[1].Y},
				},
				TextPos: PointData{X: d.TextPos.X, Y: d.TextPos.Y},
				TextRot: d.TextRotation,
			})
		}
		out.Views = append(out.Views, vd)
	}
	return out, nil
}
