package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/whistle-data/refzone.report/internal/effects"
	"github.com/whistle-data/refzone.report/internal/features"
	"github.com/whistle-data/refzone.report/internal/httputil"
	"github.com/whistle-data/refzone.report/internal/predict"
	"github.com/whistle-data/refzone.report/internal/session"
	"github.com/whistle-data/refzone.report/internal/zones"
)

// chartHeatmap renders a quick HTML heatmap of the predicted zone
// counts using go-echarts. This is a debugging endpoint for checking
// model output without the UI. Overrides are passed as ov.<feature>
// query params, matching the shareable URL encoding.
func (s *Server) chartHeatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	officialID := q.Get("official_id")
	seasonName := q.Get("season")
	if officialID == "" || seasonName == "" {
		httputil.BadRequest(w, "official_id and season are required")
		return
	}
	gridName := q.Get("grid")
	if gridName == "" {
		gridName = session.DefaultGrid
	}
	grid, err := zones.ParseGrid(gridName)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	overrides := features.Overrides{}
	for key, vals := range q {
		name, ok := strings.CutPrefix(key, "ov.")
		if !ok || len(vals) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(vals[0], 64)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid override %s: %v", key, err))
			return
		}
		overrides[name] = v
	}
	if err := features.Validate(overrides); err != nil {
		writeStoreError(w, err)
		return
	}

	res, err := s.engine.Heatmap(r.Context(), predict.Request{
		OfficialID: officialID,
		Season:     seasonName,
		Exposure:   q.Get("exposure"),
		Grid:       grid,
		Overrides:  overrides,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	data := make([]opts.HeatMapData, 0, len(res.Grid))
	maxVal := 0.0
	for _, cell := range res.Grid {
		if cell.Predicted > maxVal {
			maxVal = cell.Predicted
		}
		data = append(data, opts.HeatMapData{
			Value: [3]interface{}{cell.XBin, cell.YBin, cell.Predicted},
		})
	}
	if maxVal == 0 {
		maxVal = 1
	}

	xLabels := make([]string, grid.XBins)
	for i := range xLabels {
		xLabels[i] = fmt.Sprintf("x%d", i)
	}
	yLabels := make([]string, grid.YBins)
	for i := range yLabels {
		yLabels[i] = fmt.Sprintf("y%d", i)
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Predicted Fouls by Zone", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Predicted fouls by zone",
			Subtitle: fmt.Sprintf("official=%s season=%s grid=%s %s", officialID, seasonName, grid, features.Fingerprint(overrides)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xLabels, Name: "attack direction →"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: yLabels}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxVal),
			InRange:    &opts.VisualMapInRange{Color: []string{"#ffffcc", "#fd8d3c", "#bd0026"}},
		}),
	)
	hm.SetXAxis(xLabels).AddSeries("predicted", data)

	renderChart(w, hm)
}

// chartForest renders the ranked per-official effect list for one
// feature as a bar chart, significant officials highlighted.
func (s *Server) chartForest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	feature := q.Get("feature")
	seasonName := q.Get("season")
	if !features.Known(feature) {
		httputil.BadRequest(w, fmt.Sprintf("unknown feature %q", feature))
		return
	}
	if seasonName == "" {
		httputil.BadRequest(w, "season is required")
		return
	}
	gridName := q.Get("grid")
	if gridName == "" {
		gridName = session.DefaultGrid
	}
	grid, err := zones.ParseGrid(gridName)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	slopes, err := s.source.FeatureSlopes(r.Context(), feature, seasonName, grid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	ranked := effects.Ranked(feature, slopes)

	names := make([]string, 0, len(ranked))
	data := make([]opts.BarData, 0, len(ranked))
	for _, e := range ranked {
		names = append(names, e.OfficialID)
		color := "#9ca3af"
		if e.Significant {
			color = "#2563eb"
			if e.MeanCoef < 0 {
				color = "#dc2626"
			}
		}
		data = append(data, opts.BarData{
			Value:     e.MeanCoef,
			ItemStyle: &opts.ItemStyle{Color: color},
		})
	}

	summary := effects.Summarise(ranked)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Referee Sensitivity", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Per-official sensitivity to %s (+1 SD)", feature),
			Subtitle: fmt.Sprintf("season=%s grid=%s significant=%d/%d", seasonName, grid, summary.Significant, summary.Officials),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mean log-rate slope"}),
	)
	bar.SetXAxis(names).AddSeries("mean slope", data)

	renderChart(w, bar)
}

type chartRenderer interface {
	Render(w io.Writer) error
}

func renderChart(w http.ResponseWriter, c chartRenderer) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
