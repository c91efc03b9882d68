// Package pipeline runs the full drawing generation: simplify,
// analyze, detect features, then project and dimension every
// requested view. Each request owns its mesh/feature/view graph
// exclusively; the per-view stage runs in parallel over shared
// read-only data and joins before the result is assembled.
// Cancellation is cooperative and discards the partial result.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/robertoSreis/TechDraw/pkg/analyze"
	"github.com/robertoSreis/TechDraw/pkg/dimension"
	"github.com/robertoSreis/TechDraw/pkg/feature"
	"github.com/robertoSreis/TechDraw/pkg/mesh"
	"github.com/robertoSreis/TechDraw/pkg/project"
	"github.com/robertoSreis/TechDraw/pkg/simplify"
)

// Options is the recognized configuration surface of the core. The
// JSON names form the on-disk config format. Zero values take the
// stage defaults.
type Options struct {
	// ReductionRatio is the fraction of triangles simplification
	// removes, in (0,1).
	ReductionRatio float64 `json:"reduction_ratio"`
	// TriangleBudget, when positive, overrides ReductionRatio with an
	// absolute triangle target.
	TriangleBudget int `json:"triangle_budget"`
	// QualityTolerance bounds per-collapse surface deviation as a
	// fraction of the bounding-box diagonal.
	QualityTolerance float64 `json:"quality_tolerance"`
	// SharpEdgeAngle is the feature-edge dihedral threshold, degrees.
	SharpEdgeAngle float64 `json:"sharp_edge_angle"`
	// PlanarityTolerance is the planar region-growing tolerance,
	// degrees.
	PlanarityTolerance float64 `json:"planarity_tolerance"`
	// ViewSet selects which canonical views to compute. Empty means
	// all seven.
	ViewSet []string `json:"view_set"`
	// DimensionClearance is the standoff between geometry and
	// dimension lines, model units.
	DimensionClearance float64 `json:"dimension_clearance"`
	// OcclusionResolution is the depth-tie tolerance for hidden-line
	// classification.
	OcclusionResolution float64 `json:"occlusion_resolution"`
	// SkipSimplify bypasses decimation, drawing the input mesh as-is.
	SkipSimplify bool `json:"skip_simplify"`
}

// DefaultOptions mirrors the defaults of each stage.
func DefaultOptions() Options {
	return Options{
		ReductionRatio:     0.83,
		QualityTolerance:   0.01,
		SharpEdgeAngle:     20,
		PlanarityTolerance: 0.5,
	}
}

// LoadOptions reads a JSON options document.
func LoadOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		return Options{}, fmt.Errorf("pipeline: parse options: %w", err)
	}
	return opts, nil
}

// views resolves the configured view set.
func (o Options) views() ([]project.Direction, error) {
	if len(o.ViewSet) == 0 {
		return project.Canonical(), nil
	}
	out := make([]project.Direction, 0, len(o.ViewSet))
	for _, name := range o.ViewSet {
		d, err := project.ParseDirection(name)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Progress is the advisory side-channel: stage name plus fractional
// completion in [0,1]. Callbacks happen at stage boundaries and after
// each finished view; they never alter computation order. During the
// parallel view stage the callback is serialized but may run on a
// worker goroutine.
type Progress func(stage string, frac float64)

// DrawingView is the per-view output handed to the renderer: plain
// line and dimension data, no drawing-toolkit types.
type DrawingView struct {
	Direction  project.Direction
	Lines      []project.Line
	Dimensions []dimension.Dimension
	Bounds     project.Box2
}

// Stats summarizes the processed model.
type Stats struct {
	Vertices          int
	Triangles         int
	TrianglesBefore   int
	DegenerateDropped int
	NonManifoldEdges  int
	Watertight        bool
	RequestedRatio    float64
	AchievedRatio     float64
}

// Result is the complete output of one generation request.
type Result struct {
	Views    []*DrawingView
	Features *feature.Features
	Stats    Stats
	// Warnings carries the non-fatal conditions absorbed during the
	// run, such as a quality-limited simplification.
	Warnings []string
}

// Generate runs the full pipeline over a loaded mesh. The input mesh
// is never mutated. progress may be nil. On cancellation the partial
// result is discarded and ctx's error is returned.
func Generate(ctx context.Context, m *mesh.Mesh, opts Options, progress Progress) (*Result, error) {
	if m == nil {
		return nil, &mesh.MalformedError{Reason: "nil mesh"}
	}
	notify := func(stage string, frac float64) {
		if progress != nil {
			progress(stage, frac)
		}
	}
	dirs, err := opts.views()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	res.Stats.TrianglesBefore = m.TriangleCount()

	// Stage 1: simplification.
	notify("simplify", 0)
	working := m
	if !opts.SkipSimplify {
		simp, err := simplify.Simplify(ctx, m, simplify.Options{
			ReductionRatio:   opts.ReductionRatio,
			TriangleBudget:   opts.TriangleBudget,
			QualityTolerance: opts.QualityTolerance,
			SharpEdgeAngle:   opts.SharpEdgeAngle,
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: simplify: %w", err)
		}
		working = simp.Mesh
		res.Stats.RequestedRatio = simp.RequestedRatio
		res.Stats.AchievedRatio = simp.AchievedRatio
		if simp.QualityLimited {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"requested %.0f%% reduction, achieved %.0f%% within quality tolerance",
				simp.RequestedRatio*100, simp.AchievedRatio*100))
		}
	}
	notify("simplify", 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 2: analysis.
	notify("analyze", 0)
	an := analyze.Analyze(working, analyze.Options{
		SharpEdgeAngle: orDefault(opts.SharpEdgeAngle, 20),
		CoplanarAngle:  1,
	})
	notify("analyze", 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 3: feature detection.
	notify("features", 0)
	feats := feature.Detect(working, an, feature.Options{
		PlanarityTolerance: opts.PlanarityTolerance,
	})
	notify("features", 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 4: per-view projection and dimensioning. Views are
	// independent over the now-frozen mesh and features, so they fan
	// out; the slice is preallocated so each worker writes only its
	// own slot.
	res.Views = make([]*DrawingView, len(dirs))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			view := project.Project(working, an, dir, project.Options{
				OcclusionResolution: opts.OcclusionResolution,
			})
			dims := dimension.LayoutView(working, feats, view, dimension.Options{
				Clearance: opts.DimensionClearance,
			})
			res.Views[i] = &DrawingView{
				Direction:  dir,
				Lines:      view.Lines,
				Dimensions: dims,
				Bounds:     view.Bounds,
			}
			mu.Lock()
			done++
			notify("views", float64(done)/float64(len(dirs)))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Features = feats
	res.Stats.Vertices = working.VertexCount()
	res.Stats.Triangles = working.TriangleCount()
	res.Stats.DegenerateDropped = m.DegenerateCount()
	res.Stats.NonManifoldEdges = working.NonManifoldCount()
	res.Stats.Watertight = working.IsWatertight()
	return res, nil
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
