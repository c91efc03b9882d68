// Command techdraw generates 2D technical drawing views from an STL
// mesh and writes them as JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/robertoSreis/TechDraw/pkg/mesh"
	"github.com/robertoSreis/TechDraw/pkg/pipeline"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("techdraw: ")

	var (
		input      = flag.String("in", "", "input STL file (binary or ASCII)")
		sample     = flag.String("sample", "", "use a built-in sample part instead of -in (cube, sphere, cylinder, plate, boss)")
		configPath = flag.String("config", "", "JSON options file")
		views      = flag.String("views", "", "comma-separated view names (default: all seven)")
		ratio      = flag.Float64("reduce", 0, "triangle reduction ratio in (0,1)")
		budget     = flag.Int("triangles", 0, "absolute triangle budget, overrides -reduce")
		zUp        = flag.Bool("zup", false, "input uses Z-up convention, convert to Y-up")
		noSimplify = flag.Bool("no-simplify", false, "skip mesh simplification")
		verbose    = flag.Bool("v", false, "log stage progress to stderr")
		output     = flag.String("out", "", "output file (default: stdout)")
	)
	flag.Parse()

	opts := pipeline.DefaultOptions()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		opts, err = pipeline.LoadOptions(f)
		f.Close()
		if err != nil {
			log.Fatal(err)
		}
	}
	if *views != "" {
		opts.ViewSet = strings.Split(*views, ",")
	}
	if *ratio > 0 {
		opts.ReductionRatio = *ratio
	}
	if *budget > 0 {
		opts.TriangleBudget = *budget
	}
	if *noSimplify {
		opts.SkipSimplify = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := NewApp(opts)
	m, err := loadInput(app, *input, *sample, *zUp)
	if err != nil {
		log.Fatal(err)
	}

	result, err := app.Generate(ctx, m, *verbose)
	if err != nil {
		log.Fatal(err)
	}
	for _, w := range result.Warnings {
		log.Printf("warning: %s", w)
	}

	w := os.Stdout
	if *output != "" {
		w, err = os.Create(*output)
		if err != nil {
			log.Fatal(err)
		}
		defer w.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal(err)
	}
}

func loadInput(app *App, input, sample string, zUp bool) (*mesh.Mesh, error) {
	switch {
	case input != "" && sample != "":
		return nil, fmt.Errorf("-in and -sample are mutually exclusive")
	case input != "":
		return app.LoadSTL(input, zUp)
	case sample != "":
		return app.LoadSample(sample)
	default:
		return nil, fmt.Errorf("no input: pass -in <file.stl> or -sample <name>")
	}
}
