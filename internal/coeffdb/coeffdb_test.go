package coeffdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/whistle-data/refzone.report/internal/features"
	"github.com/whistle-data/refzone.report/internal/model"
	"github.com/whistle-data/refzone.report/internal/predict"
	"github.com/whistle-data/refzone.report/internal/zones"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "coefficients.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOfficialBaselineRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	want := model.OfficialBaseline{
		OfficialID:       "R1",
		Season:           "2025-26",
		Exposure:         "opp_passes",
		FoulsPerExposure: 0.052,
		CardsPerExposure: 0.007,
		MatchesObserved:  31,
	}
	if err := db.RecordOfficialBaseline(want); err != nil {
		t.Fatalf("RecordOfficialBaseline failed: %v", err)
	}

	got, err := db.OfficialBaseline(ctx, "R1", "2025-26", "opp_passes")
	if err != nil {
		t.Fatalf("OfficialBaseline failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("baseline mismatch (-want +got):\n%s", diff)
	}
}

func TestOfficialBaselineUpsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := model.OfficialBaseline{OfficialID: "R1", Season: "2025-26", Exposure: "opp_passes", FoulsPerExposure: 0.05, MatchesObserved: 10}
	if err := db.RecordOfficialBaseline(b); err != nil {
		t.Fatal(err)
	}
	b.FoulsPerExposure = 0.06
	b.MatchesObserved = 12
	if err := db.RecordOfficialBaseline(b); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := db.OfficialBaseline(ctx, "R1", "2025-26", "opp_passes")
	if err != nil {
		t.Fatal(err)
	}
	if got.FoulsPerExposure != 0.06 || got.MatchesObserved != 12 {
		t.Errorf("upsert did not replace: %+v", got)
	}
}

func TestOfficialBaselineMissing(t *testing.T) {
	db := newTestDB(t)

	_, err := db.OfficialBaseline(context.Background(), "nobody", "2025-26", "opp_passes")
	var nbe *predict.NoBaselineError
	if !errors.As(err, &nbe) {
		t.Fatalf("err = %v, want NoBaselineError", err)
	}
	if nbe.OfficialID != "nobody" {
		t.Errorf("error official = %q", nbe.OfficialID)
	}
}

func seedZoneBaselines(t *testing.T, db *DB, officialID string, grid zones.Grid) []float64 {
	t.Helper()
	rates := make([]float64, grid.NumZones())
	for x := 0; x < grid.XBins; x++ {
		for y := 0; y < grid.YBins; y++ {
			rate := 0.5 + 0.1*float64(x) + 0.01*float64(y)
			rates[grid.Index(x, y)] = rate
			if err := db.RecordZoneBaseline(officialID, "2025-26", "opp_passes", grid, x, y, rate); err != nil {
				t.Fatalf("RecordZoneBaseline(%d,%d) failed: %v", x, y, err)
			}
		}
	}
	return rates
}

func TestZoneBaselinesRoundTrip(t *testing.T) {
	db := newTestDB(t)
	grid := zones.Grid5x3

	want := seedZoneBaselines(t, db, "R1", grid)

	got, err := db.ZoneBaselines(context.Background(), "R1", "2025-26", "opp_passes", grid)
	if err != nil {
		t.Fatalf("ZoneBaselines failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("zone baselines mismatch (-want +got):\n%s", diff)
	}
}

func TestZoneBaselinesMissingIsNoBaseline(t *testing.T) {
	db := newTestDB(t)

	_, err := db.ZoneBaselines(context.Background(), "nobody", "2025-26", "opp_passes", zones.Grid5x3)
	var nbe *predict.NoBaselineError
	if !errors.As(err, &nbe) {
		t.Fatalf("err = %v, want NoBaselineError", err)
	}
}

func TestZoneBaselinesIncomplete(t *testing.T) {
	db := newTestDB(t)
	grid := zones.Grid5x3

	if err := db.RecordZoneBaseline("R1", "2025-26", "opp_passes", grid, 0, 0, 0.5); err != nil {
		t.Fatal(err)
	}

	_, err := db.ZoneBaselines(context.Background(), "R1", "2025-26", "opp_passes", grid)
	if err == nil {
		t.Fatal("partial zone coverage must be an error")
	}
}

func TestRecordZoneBaselineRejectsOutOfGrid(t *testing.T) {
	db := newTestDB(t)
	if err := db.RecordZoneBaseline("R1", "2025-26", "opp_passes", zones.Grid5x3, 5, 0, 0.5); err == nil {
		t.Fatal("out-of-grid zone accepted")
	}
}

func TestSlopesRoundTrip(t *testing.T) {
	db := newTestDB(t)
	grid := zones.Grid5x3
	p := 0.03

	want := []model.Slope{
		{OfficialID: "R1", Feature: features.Directness, XBin: 0, YBin: 1, Coef: -0.15, SE: 0.04, PValue: &p},
		{OfficialID: "R1", Feature: features.Directness, XBin: 2, YBin: 0, Coef: 0.22, SE: 0.05},
	}
	for _, s := range want {
		if err := db.RecordSlope("2025-26", grid, s); err != nil {
			t.Fatalf("RecordSlope failed: %v", err)
		}
	}

	got, err := db.Slopes(context.Background(), "R1", features.Directness, "2025-26", grid)
	if err != nil {
		t.Fatalf("Slopes failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("slopes mismatch (-want +got):\n%s", diff)
	}
}

func TestSlopesEmptyIsNotError(t *testing.T) {
	db := newTestDB(t)

	got, err := db.Slopes(context.Background(), "R1", features.WingShare, "2025-26", zones.Grid5x3)
	if err != nil {
		t.Fatalf("Slopes failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d slopes, want none", len(got))
	}
}

func TestSlopesGridsAreSeparate(t *testing.T) {
	db := newTestDB(t)

	s := model.Slope{OfficialID: "R1", Feature: features.PPDA, XBin: 1, YBin: 1, Coef: 0.1, SE: 0.02}
	if err := db.RecordSlope("2025-26", zones.Grid5x3, s); err != nil {
		t.Fatal(err)
	}

	got, err := db.Slopes(context.Background(), "R1", features.PPDA, "2025-26", zones.Grid6x4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("5x3 slopes leaked into the 6x4 grid: %v", got)
	}
}

func TestFeatureSlopesAcrossOfficials(t *testing.T) {
	db := newTestDB(t)
	grid := zones.Grid5x3

	for _, s := range []model.Slope{
		{OfficialID: "R1", Feature: features.Directness, XBin: 0, YBin: 0, Coef: 0.1, SE: 0.02},
		{OfficialID: "R2", Feature: features.Directness, XBin: 0, YBin: 0, Coef: -0.3, SE: 0.05},
		{OfficialID: "R2", Feature: features.PPDA, XBin: 0, YBin: 0, Coef: 0.9, SE: 0.05},
	} {
		if err := db.RecordSlope("2025-26", grid, s); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.FeatureSlopes(context.Background(), features.Directness, "2025-26", grid)
	if err != nil {
		t.Fatalf("FeatureSlopes failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d slopes, want 2", len(got))
	}
	for _, s := range got {
		if s.Feature != features.Directness {
			t.Errorf("foreign feature in result: %+v", s)
		}
	}
}

func TestTeamBaselineRoundTrip(t *testing.T) {
	db := newTestDB(t)

	want := model.TeamBaseline{
		TeamID:          "T7",
		Season:          "2025-26",
		PPDA:            9.4,
		Directness:      0.31,
		PossessionShare: 0.56,
		BlockHeightX:    42.7,
		WingShare:       0.38,
		FoulsPerMatch:   10.2,
		YellowsPerMatch: 1.9,
		RedsPerMatch:    0.08,
		MatchesObserved: 34,
	}
	if err := db.RecordTeamBaseline(want); err != nil {
		t.Fatalf("RecordTeamBaseline failed: %v", err)
	}

	got, err := db.TeamBaseline(context.Background(), "T7", "2025-26")
	if err != nil {
		t.Fatalf("TeamBaseline failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("team baseline mismatch (-want +got):\n%s", diff)
	}

	if _, err := db.TeamBaseline(context.Background(), "nobody", "2025-26"); err == nil {
		t.Error("missing team baseline must be an error")
	}
}

func TestSeasonsAndOfficials(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, b := range []model.OfficialBaseline{
		{OfficialID: "R2", Season: "2024-25", Exposure: "opp_passes"},
		{OfficialID: "R1", Season: "2025-26", Exposure: "opp_passes"},
		{OfficialID: "R3", Season: "2025-26", Exposure: "opp_passes"},
		{OfficialID: "R1", Season: "2025-26", Exposure: "minutes"},
	} {
		if err := db.RecordOfficialBaseline(b); err != nil {
			t.Fatal(err)
		}
	}

	seasons, err := db.Seasons(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"2025-26", "2024-25"}, seasons); diff != "" {
		t.Errorf("seasons mismatch (-want +got):\n%s", diff)
	}

	officials, err := db.Officials(ctx, "2025-26")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"R1", "R3"}, officials); diff != "" {
		t.Errorf("officials mismatch (-want +got):\n%s", diff)
	}
}
