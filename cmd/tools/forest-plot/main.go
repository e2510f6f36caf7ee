// Command forest-plot renders a per-official sensitivity forest plot
// for one playstyle feature as a PNG, reading fitted slopes from a
// coefficient database.
package main

import (
	"context"
	"flag"
	"image/color"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/whistle-data/refzone.report/internal/coeffdb"
	"github.com/whistle-data/refzone.report/internal/effects"
	"github.com/whistle-data/refzone.report/internal/features"
	"github.com/whistle-data/refzone.report/internal/zones"
)

func main() {
	dbPath := flag.String("db", "coefficients.db", "path to the coefficient database")
	feature := flag.String("feature", features.PPDA, "playstyle feature to plot")
	seasonName := flag.String("season", "2025-26", "season")
	gridName := flag.String("grid", "5x3", "zone grid")
	output := flag.String("o", "forest.png", "output path")
	flag.Parse()

	if !features.Known(*feature) {
		log.Fatalf("unknown feature %q", *feature)
	}
	grid, err := zones.ParseGrid(*gridName)
	if err != nil {
		log.Fatal(err)
	}

	db, err := coeffdb.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	slopes, err := db.FeatureSlopes(context.Background(), *feature, *seasonName, grid)
	if err != nil {
		log.Fatalf("failed to load slopes: %v", err)
	}
	ranked := effects.Ranked(*feature, slopes)
	if len(ranked) == 0 {
		log.Fatalf("no slopes for %s in %s", *feature, *seasonName)
	}

	if err := render(ranked, *feature, *output); err != nil {
		log.Fatalf("failed to render plot: %v", err)
	}
	log.Printf("✓ Created: %s (%d officials)", *output, len(ranked))
}

// forestData adapts the ranked effect list for gonum/plot: x is the
// rank position, y the mean slope, and the error bars span the pooled
// 95% interval.
type forestData []effects.EffectSummary

func (f forestData) Len() int { return len(f) }

func (f forestData) XY(i int) (float64, float64) {
	return float64(i), f[i].MeanCoef
}

func (f forestData) YError(i int) (float64, float64) {
	half := f[i].MeanCoef - f[i].CILow
	return half, half
}

func render(ranked []effects.EffectSummary, feature, output string) error {
	p := plot.New()
	p.Title.Text = "Per-official sensitivity to " + feature + " (+1 SD)"
	p.Y.Label.Text = "mean log-rate slope"

	data := forestData(ranked)

	bars, err := plotter.NewYErrorBars(data)
	if err != nil {
		return err
	}

	points, err := plotter.NewScatter(data)
	if err != nil {
		return err
	}
	points.GlyphStyle.Radius = vg.Points(3)
	points.GlyphStyle.Color = color.RGBA{R: 0x25, G: 0x63, B: 0xeb, A: 0xff}

	zero := plotter.NewFunction(func(float64) float64 { return 0 })
	zero.LineStyle.Color = color.Gray{Y: 0x99}
	zero.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(zero, bars, points)

	names := make([]string, len(ranked))
	for i, e := range ranked {
		names[i] = e.OfficialID
	}
	p.NominalX(names...)

	return p.Save(10*vg.Inch, 5*vg.Inch, output)
}
