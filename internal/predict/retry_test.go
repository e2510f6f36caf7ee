package predict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/whistle-data/refzone.report/internal/model"
	"github.com/whistle-data/refzone.report/internal/timeutil"
	"github.com/whistle-data/refzone.report/internal/zones"
)

// flakyStore fails with a transient error a fixed number of times before
// succeeding.
type flakyStore struct {
	fakeStore
	failures int
	seen     int
}

func (f *flakyStore) ZoneBaselines(ctx context.Context, officialID, season, exposure string, grid zones.Grid) ([]float64, error) {
	f.seen++
	if f.seen <= f.failures {
		return nil, &TransientFetchError{Op: "zone baselines", Err: errors.New("connection reset")}
	}
	return f.fakeStore.ZoneBaselines(ctx, officialID, season, exposure, grid)
}

func newFlaky(failures int) *flakyStore {
	base := make([]float64, zones.Grid5x3.NumZones())
	for i := range base {
		base[i] = 1.0
	}
	return &flakyStore{
		fakeStore: fakeStore{
			baselines: map[string][]float64{"R1": base},
			slopes:    map[string]map[string][]model.Slope{},
		},
		failures: failures,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	store := newFlaky(2)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	rs := NewRetryingStore(store, RetryPolicy{Attempts: 3, Backoff: 100 * time.Millisecond}, clock)

	got, err := rs.ZoneBaselines(context.Background(), "R1", "2024", "opp_passes", zones.Grid5x3)
	if err != nil {
		t.Fatalf("ZoneBaselines: %v", err)
	}
	if len(got) != 15 {
		t.Errorf("got %d baselines, want 15", len(got))
	}
	if store.seen != 3 {
		t.Errorf("store saw %d attempts, want 3", store.seen)
	}

	// Exponential backoff: 100ms then 200ms.
	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 100*time.Millisecond || sleeps[1] != 200*time.Millisecond {
		t.Errorf("backoff sleeps = %v", sleeps)
	}
}

func TestRetryExhaustionKeepsLastCause(t *testing.T) {
	store := newFlaky(10)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	rs := NewRetryingStore(store, RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, clock)

	_, err := rs.ZoneBaselines(context.Background(), "R1", "2024", "opp_passes", zones.Grid5x3)
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	var tf *TransientFetchError
	if !errors.As(err, &tf) {
		t.Errorf("surfaced error %v does not wrap the last transient cause", err)
	}
	if store.seen != 3 {
		t.Errorf("store saw %d attempts, want 3", store.seen)
	}
}

func TestNoBaselineIsNotRetried(t *testing.T) {
	store := newFlaky(0)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	rs := NewRetryingStore(store, RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, clock)

	_, err := rs.ZoneBaselines(context.Background(), "unknown", "2024", "opp_passes", zones.Grid5x3)

	var nbe *NoBaselineError
	if !errors.As(err, &nbe) {
		t.Fatalf("got %v, want NoBaselineError", err)
	}
	if store.seen != 1 {
		t.Errorf("store saw %d attempts; terminal errors must not be retried", store.seen)
	}
	if len(clock.Sleeps()) != 0 {
		t.Error("no backoff sleep expected for terminal errors")
	}
}

func TestRetryDefaultsApplied(t *testing.T) {
	rs := NewRetryingStore(newFlaky(0), RetryPolicy{}, nil)
	if rs.policy.Attempts != DefaultRetryPolicy.Attempts || rs.policy.Backoff != DefaultRetryPolicy.Backoff {
		t.Errorf("zero policy not defaulted: %+v", rs.policy)
	}
}
