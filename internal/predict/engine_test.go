package predict

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/whistle-data/refzone.report/internal/features"
	"github.com/whistle-data/refzone.report/internal/model"
	"github.com/whistle-data/refzone.report/internal/zones"
)

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	baselines map[string][]float64               // officialID -> per-zone rates
	slopes    map[string]map[string][]model.Slope // officialID -> feature -> slopes
	calls     int
}

func (f *fakeStore) OfficialBaseline(_ context.Context, officialID, season, exposure string) (model.OfficialBaseline, error) {
	if _, ok := f.baselines[officialID]; !ok {
		return model.OfficialBaseline{}, &NoBaselineError{OfficialID: officialID, Season: season}
	}
	return model.OfficialBaseline{OfficialID: officialID, Season: season, Exposure: exposure}, nil
}

func (f *fakeStore) ZoneBaselines(_ context.Context, officialID, season, _ string, grid zones.Grid) ([]float64, error) {
	f.calls++
	b, ok := f.baselines[officialID]
	if !ok {
		return nil, &NoBaselineError{OfficialID: officialID, Season: season}
	}
	if len(b) != grid.NumZones() {
		// Test fixture mismatch, treat as missing.
		return nil, &NoBaselineError{OfficialID: officialID, Season: season}
	}
	return b, nil
}

func (f *fakeStore) Slopes(_ context.Context, officialID, feature, _ string, _ zones.Grid) ([]model.Slope, error) {
	f.calls++
	return f.slopes[officialID][feature], nil
}

func (f *fakeStore) TeamBaseline(_ context.Context, teamID, season string) (model.TeamBaseline, error) {
	return model.TeamBaseline{TeamID: teamID, Season: season}, nil
}

// r1Store builds a 5x3 fixture for official R1: baselines rising toward
// the attacking third, directness slopes positive in the middle column,
// negative in the first column, absent in the last column.
func r1Store() *fakeStore {
	grid := zones.Grid5x3
	base := make([]float64, grid.NumZones())
	for idx := range base {
		x, _ := grid.Bin(idx)
		base[idx] = 0.8 + 0.3*float64(x)
	}

	var dirSlopes []model.Slope
	for y := 0; y < grid.YBins; y++ {
		dirSlopes = append(dirSlopes,
			model.Slope{OfficialID: "R1", Feature: features.Directness, XBin: 0, YBin: y, Coef: -0.15, SE: 0.05},
			model.Slope{OfficialID: "R1", Feature: features.Directness, XBin: 2, YBin: y, Coef: 0.22, SE: 0.07},
		)
	}

	return &fakeStore{
		baselines: map[string][]float64{"R1": base},
		slopes: map[string]map[string][]model.Slope{
			"R1": {features.Directness: dirSlopes},
		},
	}
}

const relTol = 1e-9

func TestZeroOverrideIdentity(t *testing.T) {
	engine := NewEngine(r1Store())

	res, err := engine.Heatmap(context.Background(), Request{
		OfficialID: "R1", Season: "2024", Exposure: "opp_passes",
		Grid: zones.Grid5x3, Overrides: features.Overrides{features.Directness: 0},
	})
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}

	for _, cell := range res.Grid {
		if cell.Predicted != cell.Baseline {
			t.Errorf("zone (%d,%d): predicted %v != baseline %v with zero overrides",
				cell.XBin, cell.YBin, cell.Predicted, cell.Baseline)
		}
	}
	if math.Abs(res.Totals.Predicted-res.Totals.Baseline) > relTol*res.Totals.Baseline {
		t.Errorf("totals diverge: predicted %v baseline %v", res.Totals.Predicted, res.Totals.Baseline)
	}
	if res.Totals.Delta != res.Totals.Predicted-res.Totals.Baseline {
		t.Error("delta is not predicted - baseline")
	}
	if res.PartialCoverage {
		t.Error("zero overrides must not flag partial coverage")
	}
}

func TestTotalsConsistency(t *testing.T) {
	engine := NewEngine(r1Store())

	res, err := engine.Heatmap(context.Background(), Request{
		OfficialID: "R1", Season: "2024", Exposure: "opp_passes",
		Grid: zones.Grid5x3, Overrides: features.Overrides{features.Directness: 1.5},
	})
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}

	var sum float64
	for _, cell := range res.Grid {
		sum += cell.Predicted
	}
	if math.Abs(sum-res.Totals.Predicted) > relTol*math.Abs(res.Totals.Predicted) {
		t.Errorf("sum of zones %v != totals.predicted %v", sum, res.Totals.Predicted)
	}

	thirdsSum := res.ByThirds.Defensive.Predicted + res.ByThirds.Middle.Predicted + res.ByThirds.Attacking.Predicted
	if math.Abs(thirdsSum-res.Totals.Predicted) > relTol*math.Abs(res.Totals.Predicted) {
		t.Errorf("thirds sum %v != totals.predicted %v", thirdsSum, res.Totals.Predicted)
	}

	if res.Totals.Delta != res.Totals.Predicted-res.Totals.Baseline {
		t.Error("totals.delta inconsistent")
	}
	for _, b := range []Bucket{res.ByThirds.Defensive, res.ByThirds.Middle, res.ByThirds.Attacking} {
		if math.Abs(b.Delta-(b.Predicted-b.Baseline)) > relTol {
			t.Errorf("third delta inconsistent: %+v", b)
		}
	}
}

func TestCIContainment(t *testing.T) {
	engine := NewEngine(r1Store())

	res, err := engine.Heatmap(context.Background(), Request{
		OfficialID: "R1", Season: "2024", Exposure: "opp_passes",
		Grid: zones.Grid5x3, Overrides: features.Overrides{features.Directness: -2.0},
	})
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}

	for _, cell := range res.Grid {
		if cell.CILow > cell.Predicted || cell.Predicted > cell.CIHigh {
			t.Errorf("zone (%d,%d): CI [%v, %v] does not contain %v",
				cell.XBin, cell.YBin, cell.CILow, cell.CIHigh, cell.Predicted)
		}
		if cell.CILow < 0 {
			t.Errorf("zone (%d,%d): negative CI bound %v", cell.XBin, cell.YBin, cell.CILow)
		}
	}
}

// With a +1 SD directness override, zones where R1 has a positive slope
// must come out above baseline, negative-slope zones below, and zones
// with no fitted slope exactly at baseline.
func TestDirectnessScenarioSigns(t *testing.T) {
	engine := NewEngine(r1Store())

	res, err := engine.Heatmap(context.Background(), Request{
		OfficialID: "R1", Season: "2024", Exposure: "opp_passes",
		Grid: zones.Grid5x3, Overrides: features.Overrides{features.Directness: 1.0},
	})
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}

	for _, cell := range res.Grid {
		switch cell.XBin {
		case 0: // negative slope
			if cell.Predicted >= cell.Baseline {
				t.Errorf("zone (%d,%d): predicted %v should be below baseline %v",
					cell.XBin, cell.YBin, cell.Predicted, cell.Baseline)
			}
		case 2: // positive slope
			if cell.Predicted <= cell.Baseline {
				t.Errorf("zone (%d,%d): predicted %v should be above baseline %v",
					cell.XBin, cell.YBin, cell.Predicted, cell.Baseline)
			}
		default: // no slope fitted for this zone
			if cell.Predicted != cell.Baseline {
				t.Errorf("zone (%d,%d): predicted %v should equal baseline %v",
					cell.XBin, cell.YBin, cell.Predicted, cell.Baseline)
			}
		}
	}
	if res.PartialCoverage {
		t.Error("directness has fitted slopes; partial coverage must not be set")
	}
}

func TestUnknownFeatureRejectedBeforeFetch(t *testing.T) {
	store := r1Store()
	engine := NewEngine(store)

	_, err := engine.Heatmap(context.Background(), Request{
		OfficialID: "R1", Season: "2024", Exposure: "opp_passes",
		Grid: zones.Grid5x3, Overrides: features.Overrides{"foo": 1.0},
	})

	var ife *features.InvalidFeatureError
	if !errors.As(err, &ife) {
		t.Fatalf("Heatmap returned %v, want InvalidFeatureError", err)
	}
	if store.calls != 0 {
		t.Errorf("store saw %d calls; validation must reject before any fetch", store.calls)
	}
}

func TestMissingSlopesPartialCoverage(t *testing.T) {
	engine := NewEngine(r1Store())

	res, err := engine.Heatmap(context.Background(), Request{
		OfficialID: "R1", Season: "2024", Exposure: "opp_passes",
		Grid: zones.Grid5x3, Overrides: features.Overrides{features.WingShare: 2.0},
	})
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}

	if !res.PartialCoverage {
		t.Error("partial coverage flag not set")
	}
	if len(res.MissingFeatures) != 1 || res.MissingFeatures[0] != features.WingShare {
		t.Errorf("missing features = %v, want [wing_share]", res.MissingFeatures)
	}
	for _, cell := range res.Grid {
		if cell.Predicted != cell.Baseline {
			t.Errorf("zone (%d,%d): predicted %v != baseline %v despite zero contribution",
				cell.XBin, cell.YBin, cell.Predicted, cell.Baseline)
		}
	}
}

func TestNoBaselineSurfaced(t *testing.T) {
	engine := NewEngine(r1Store())

	_, err := engine.Heatmap(context.Background(), Request{
		OfficialID: "R9", Season: "2024", Exposure: "opp_passes",
		Grid: zones.Grid5x3, Overrides: nil,
	})

	var nbe *NoBaselineError
	if !errors.As(err, &nbe) {
		t.Fatalf("Heatmap returned %v, want NoBaselineError", err)
	}
	if nbe.OfficialID != "R9" || nbe.Season != "2024" {
		t.Errorf("error identifies %q/%q", nbe.OfficialID, nbe.Season)
	}
}

func TestHeatmapOn6x4Grid(t *testing.T) {
	grid := zones.Grid6x4
	base := make([]float64, grid.NumZones())
	for i := range base {
		base[i] = 1.0
	}
	store := &fakeStore{
		baselines: map[string][]float64{"R2": base},
		slopes: map[string]map[string][]model.Slope{
			"R2": {features.PPDA: {
				{OfficialID: "R2", Feature: features.PPDA, XBin: 5, YBin: 3, Coef: 0.4, SE: 0.1},
			}},
		},
	}
	engine := NewEngine(store)

	res, err := engine.Heatmap(context.Background(), Request{
		OfficialID: "R2", Season: "2024", Exposure: "opp_passes",
		Grid: grid, Overrides: features.Overrides{features.PPDA: 1.0},
	})
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}
	if len(res.Grid) != 24 {
		t.Fatalf("grid cells = %d, want 24", len(res.Grid))
	}

	// Only the single fitted zone moves; it sits in the attacking band.
	want := math.Exp(0.4)
	if math.Abs(res.ByThirds.Attacking.Predicted-(7+want)) > 1e-9 {
		t.Errorf("attacking third predicted = %v, want %v", res.ByThirds.Attacking.Predicted, 7+want)
	}
	if res.ByThirds.Defensive.Predicted != 8 || res.ByThirds.Middle.Predicted != 8 {
		t.Errorf("unaffected thirds moved: def %v mid %v",
			res.ByThirds.Defensive.Predicted, res.ByThirds.Middle.Predicted)
	}
}
