package predict

import (
	"context"
	"fmt"

	"github.com/whistle-data/refzone.report/internal/model"
	"github.com/whistle-data/refzone.report/internal/zones"
)

// Store is the read-only coefficient lookup the engine consumes. All
// implementations must be idempotent and side-effect-free; retry policy
// is layered on top by RetryingStore, not baked into adapters.
type Store interface {
	// OfficialBaseline returns an official's season-level rate summary.
	// A missing baseline is reported as *NoBaselineError.
	OfficialBaseline(ctx context.Context, officialID, season, exposure string) (model.OfficialBaseline, error)

	// ZoneBaselines returns the official's expected per-match foul count
	// for each zone of the grid, indexed by grid.Index. A missing
	// baseline is reported as *NoBaselineError.
	ZoneBaselines(ctx context.Context, officialID, season, exposure string, grid zones.Grid) ([]float64, error)

	// Slopes returns the fitted slopes for one (official, feature,
	// season) on the given grid, one entry per fitted zone. An empty
	// slice is a legitimate no-data state, not an error.
	Slopes(ctx context.Context, officialID, feature, season string, grid zones.Grid) ([]model.Slope, error)

	// TeamBaseline returns a team's season playstyle and discipline
	// profile.
	TeamBaseline(ctx context.Context, teamID, season string) (model.TeamBaseline, error)
}

// NoBaselineError reports that the requested official/season has no
// fitted baseline. It is terminal for the request and never retried.
type NoBaselineError struct {
	OfficialID string
	Season     string
}

func (e *NoBaselineError) Error() string {
	return fmt.Sprintf("no fitted baseline for official %q in season %q", e.OfficialID, e.Season)
}

// TransientFetchError wraps a network or lookup failure that is eligible
// for automatic retry before being surfaced.
type TransientFetchError struct {
	Op  string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure in %s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }
