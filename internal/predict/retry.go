package predict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/whistle-data/refzone.report/internal/model"
	"github.com/whistle-data/refzone.report/internal/monitoring"
	"github.com/whistle-data/refzone.report/internal/timeutil"
	"github.com/whistle-data/refzone.report/internal/zones"
)

// RetryPolicy bounds automatic retries of transient store failures.
type RetryPolicy struct {
	Attempts int           // total attempts including the first (default 3)
	Backoff  time.Duration // base backoff, doubled after each failure (default 200ms)
}

// DefaultRetryPolicy matches the documented error-handling contract: a
// small fixed number of retries with backoff before surfacing.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: 200 * time.Millisecond}

// RetryingStore decorates a Store with bounded retry of transient
// failures. Terminal conditions (NoBaselineError, validation failures,
// context cancellation) pass through untouched on the first occurrence.
type RetryingStore struct {
	inner  Store
	policy RetryPolicy
	clock  timeutil.Clock
}

// NewRetryingStore wraps inner with the given policy. A zero policy
// falls back to DefaultRetryPolicy; a nil clock uses the real one.
func NewRetryingStore(inner Store, policy RetryPolicy, clock timeutil.Clock) *RetryingStore {
	if policy.Attempts <= 0 {
		policy.Attempts = DefaultRetryPolicy.Attempts
	}
	if policy.Backoff <= 0 {
		policy.Backoff = DefaultRetryPolicy.Backoff
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &RetryingStore{inner: inner, policy: policy, clock: clock}
}

// retry runs op up to policy.Attempts times while it keeps failing with
// a TransientFetchError. The last underlying cause stays attached to the
// surfaced error.
func (s *RetryingStore) retry(ctx context.Context, name string, op func() error) error {
	backoff := s.policy.Backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		var tf *TransientFetchError
		if !errors.As(err, &tf) {
			return err
		}
		if attempt >= s.policy.Attempts {
			break
		}
		monitoring.Logf("retrying %s after transient failure (attempt %d/%d): %v",
			name, attempt, s.policy.Attempts, err)
		s.clock.Sleep(backoff)
		backoff *= 2
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, s.policy.Attempts, err)
}

func (s *RetryingStore) OfficialBaseline(ctx context.Context, officialID, season, exposure string) (model.OfficialBaseline, error) {
	var out model.OfficialBaseline
	err := s.retry(ctx, "official baseline", func() error {
		var err error
		out, err = s.inner.OfficialBaseline(ctx, officialID, season, exposure)
		return err
	})
	return out, err
}

func (s *RetryingStore) ZoneBaselines(ctx context.Context, officialID, season, exposure string, grid zones.Grid) ([]float64, error) {
	var out []float64
	err := s.retry(ctx, "zone baselines", func() error {
		var err error
		out, err = s.inner.ZoneBaselines(ctx, officialID, season, exposure, grid)
		return err
	})
	return out, err
}

func (s *RetryingStore) Slopes(ctx context.Context, officialID, feature, season string, grid zones.Grid) ([]model.Slope, error) {
	var out []model.Slope
	err := s.retry(ctx, "slopes", func() error {
		var err error
		out, err = s.inner.Slopes(ctx, officialID, feature, season, grid)
		return err
	})
	return out, err
}

func (s *RetryingStore) TeamBaseline(ctx context.Context, teamID, season string) (model.TeamBaseline, error) {
	var out model.TeamBaseline
	err := s.retry(ctx, "team baseline", func() error {
		var err error
		out, err = s.inner.TeamBaseline(ctx, teamID, season)
		return err
	})
	return out, err
}
