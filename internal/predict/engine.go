// Package predict turns a set of standardised style overrides into a
// zone-by-zone predicted foul distribution for one official, relative to
// that official's own baseline.
package predict

import (
	"context"
	"math"

	"github.com/whistle-data/refzone.report/internal/features"
	"github.com/whistle-data/refzone.report/internal/model"
	"github.com/whistle-data/refzone.report/internal/zones"
)

// zCritical is the two-sided 95% normal quantile used for all intervals.
const zCritical = 1.96

// Request identifies one what-if prediction.
type Request struct {
	OfficialID string             `json:"official_id"`
	Season     string             `json:"season"`
	Exposure   string             `json:"exposure"`
	Grid       zones.Grid         `json:"grid"`
	Overrides  features.Overrides `json:"overrides"`
}

// ZoneCell is the per-zone prediction result.
type ZoneCell struct {
	XBin      int     `json:"x_bin"`
	YBin      int     `json:"y_bin"`
	Predicted float64 `json:"predicted"`
	Baseline  float64 `json:"baseline"`
	CILow     float64 `json:"ci_low"`
	CIHigh    float64 `json:"ci_high"`
}

// Bucket is a predicted/baseline/delta triple for a zone aggregate.
type Bucket struct {
	Predicted float64 `json:"predicted"`
	Baseline  float64 `json:"baseline"`
	Delta     float64 `json:"delta"`
}

// Thirds holds the three length-wise band aggregates.
type Thirds struct {
	Defensive Bucket `json:"defensive"`
	Middle    Bucket `json:"middle"`
	Attacking Bucket `json:"attacking"`
}

// Result is the full prediction for one request. PartialCoverage is set
// when at least one overridden feature had no fitted slopes for the
// official; those features contribute zero effect and are listed in
// MissingFeatures so the consumer can disclose the limitation.
type Result struct {
	Grid            []ZoneCell `json:"grid"`
	Totals          Bucket     `json:"totals"`
	ByThirds        Thirds     `json:"by_thirds"`
	PartialCoverage bool       `json:"partial_coverage"`
	MissingFeatures []string   `json:"missing_features,omitempty"`
}

// Engine computes predictions from a coefficient Store.
type Engine struct {
	store Store
}

// NewEngine creates an Engine reading from store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Heatmap produces the zone-wise prediction for req.
//
// Overrides are validated before anything is fetched: an unknown key
// fails with *features.InvalidFeatureError and no partial computation is
// performed. Each zone's prediction applies the multiplicative
// (rate-ratio) link
//
//	predicted = baseline * exp(sum_f override[f] * coef[f])
//
// and propagates the per-feature standard errors independently on the
// log scale, which keeps the interval bounds non-negative. A zero
// override vector reproduces the baseline exactly.
func (e *Engine) Heatmap(ctx context.Context, req Request) (*Result, error) {
	if err := features.Validate(req.Overrides); err != nil {
		return nil, err
	}

	base, err := e.store.ZoneBaselines(ctx, req.OfficialID, req.Season, req.Exposure, req.Grid)
	if err != nil {
		return nil, err
	}

	// Fetch slopes only for features actually being adjusted, in
	// canonical order so MissingFeatures is deterministic.
	type featureSlopes struct {
		value  float64
		byZone map[int]model.Slope
	}
	var active []featureSlopes
	var missing []string
	for _, f := range features.All() {
		v := req.Overrides[f]
		if v == 0 {
			continue
		}
		slopes, err := e.store.Slopes(ctx, req.OfficialID, f, req.Season, req.Grid)
		if err != nil {
			return nil, err
		}
		if len(slopes) == 0 {
			missing = append(missing, f)
			continue
		}
		byZone := make(map[int]model.Slope, len(slopes))
		for _, s := range slopes {
			if req.Grid.Contains(s.XBin, s.YBin) {
				byZone[req.Grid.Index(s.XBin, s.YBin)] = s
			}
		}
		active = append(active, featureSlopes{value: v, byZone: byZone})
	}

	res := &Result{
		Grid:            make([]ZoneCell, 0, req.Grid.NumZones()),
		PartialCoverage: len(missing) > 0,
		MissingFeatures: missing,
	}

	for idx := 0; idx < req.Grid.NumZones(); idx++ {
		xBin, yBin := req.Grid.Bin(idx)
		b := base[idx]

		var eta, varLog float64
		for _, fs := range active {
			s, ok := fs.byZone[idx]
			if !ok {
				// Zone-level gaps in an otherwise fitted feature also
				// contribute nothing.
				continue
			}
			eta += fs.value * s.Coef
			varLog += (fs.value * s.SE) * (fs.value * s.SE)
		}

		pred := b
		if eta != 0 {
			pred = b * math.Exp(eta)
		}
		seTot := math.Sqrt(varLog)
		cell := ZoneCell{
			XBin:      xBin,
			YBin:      yBin,
			Predicted: pred,
			Baseline:  b,
			CILow:     pred * math.Exp(-zCritical*seTot),
			CIHigh:    pred * math.Exp(+zCritical*seTot),
		}
		res.Grid = append(res.Grid, cell)

		res.Totals.Predicted += pred
		res.Totals.Baseline += b

		switch req.Grid.ThirdOf(xBin) {
		case zones.Defensive:
			addTo(&res.ByThirds.Defensive, pred, b)
		case zones.Middle:
			addTo(&res.ByThirds.Middle, pred, b)
		case zones.Attacking:
			addTo(&res.ByThirds.Attacking, pred, b)
		}
	}

	res.Totals.Delta = res.Totals.Predicted - res.Totals.Baseline
	return res, nil
}

func addTo(b *Bucket, pred, base float64) {
	b.Predicted += pred
	b.Baseline += base
	b.Delta = b.Predicted - b.Baseline
}
