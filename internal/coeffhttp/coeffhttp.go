// Package coeffhttp is the remote coefficient store adapter: a
// predict.Store backed by the fitting service's JSON API. Network and
// 5xx failures surface as *predict.TransientFetchError so the retry
// layer knows they are safe to repeat; 404 on a baseline endpoint maps
// to *predict.NoBaselineError.
package coeffhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/whistle-data/refzone.report/internal/httputil"
	"github.com/whistle-data/refzone.report/internal/model"
	"github.com/whistle-data/refzone.report/internal/predict"
	"github.com/whistle-data/refzone.report/internal/zones"
)

// DefaultTimeout bounds a single coefficient fetch. A fetch that does
// not resolve in time is a transient failure, never left pending.
const DefaultTimeout = 10 * time.Second

// Client fetches coefficients from a remote fitting service.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
	timeout time.Duration
}

var _ predict.Store = (*Client)(nil)

// NewClient creates a client for the fitting service at baseURL. A nil
// httpClient falls back to a standard client.
func NewClient(baseURL string, httpClient httputil.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: baseURL, http: httpClient, timeout: DefaultTimeout}
}

// SetTimeout overrides the per-fetch timeout.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// getJSON fetches path with the given query and decodes the body into
// out. missing is invoked to build the error for a 404 response.
func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out interface{}, missing func() error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &predict.TransientFetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && missing != nil:
		return missing()
	case resp.StatusCode >= 500:
		return &predict.TransientFetchError{Op: op, Err: fmt.Errorf("upstream status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: upstream status %d", op, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &predict.TransientFetchError{Op: op, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) OfficialBaseline(ctx context.Context, officialID, season, exposure string) (model.OfficialBaseline, error) {
	q := url.Values{}
	q.Set("season", season)
	q.Set("exposure", exposure)

	var b model.OfficialBaseline
	err := c.getJSON(ctx, "official baseline", "/officials/"+url.PathEscape(officialID)+"/baseline", q, &b,
		func() error { return &predict.NoBaselineError{OfficialID: officialID, Season: season} })
	if err != nil {
		return model.OfficialBaseline{}, err
	}
	return b, nil
}

func (c *Client) ZoneBaselines(ctx context.Context, officialID, season, exposure string, grid zones.Grid) ([]float64, error) {
	q := url.Values{}
	q.Set("season", season)
	q.Set("exposure", exposure)
	q.Set("grid", grid.String())

	var payload struct {
		Rates []float64 `json:"rates"`
	}
	err := c.getJSON(ctx, "zone baselines", "/officials/"+url.PathEscape(officialID)+"/zone-baselines", q, &payload,
		func() error { return &predict.NoBaselineError{OfficialID: officialID, Season: season} })
	if err != nil {
		return nil, err
	}
	if len(payload.Rates) != grid.NumZones() {
		return nil, fmt.Errorf("zone baselines: got %d rates for %s grid, want %d",
			len(payload.Rates), grid, grid.NumZones())
	}
	return payload.Rates, nil
}

func (c *Client) Slopes(ctx context.Context, officialID, feature, season string, grid zones.Grid) ([]model.Slope, error) {
	q := url.Values{}
	q.Set("feature", feature)
	q.Set("season", season)
	q.Set("grid", grid.String())

	var payload struct {
		Slopes []model.Slope `json:"slopes"`
	}
	// 404 here means no fitted model for this official/feature, a
	// legitimate empty result rather than an error.
	err := c.getJSON(ctx, "slopes", "/officials/"+url.PathEscape(officialID)+"/slopes", q, &payload,
		func() error { return nil })
	if err != nil {
		return nil, err
	}
	return payload.Slopes, nil
}

// FeatureSlopes returns every official's slopes for one feature and
// season, the input to the ranked effect list.
func (c *Client) FeatureSlopes(ctx context.Context, feature, season string, grid zones.Grid) ([]model.Slope, error) {
	q := url.Values{}
	q.Set("feature", feature)
	q.Set("season", season)
	q.Set("grid", grid.String())

	var payload struct {
		Slopes []model.Slope `json:"slopes"`
	}
	err := c.getJSON(ctx, "feature slopes", "/slopes", q, &payload,
		func() error { return nil })
	if err != nil {
		return nil, err
	}
	return payload.Slopes, nil
}

// Seasons lists the seasons the fitting service has models for.
func (c *Client) Seasons(ctx context.Context) ([]string, error) {
	var payload struct {
		Seasons []string `json:"seasons"`
	}
	if err := c.getJSON(ctx, "seasons", "/seasons", nil, &payload, nil); err != nil {
		return nil, err
	}
	return payload.Seasons, nil
}

// Officials lists the officials with a fitted baseline for season.
func (c *Client) Officials(ctx context.Context, season string) ([]string, error) {
	q := url.Values{}
	q.Set("season", season)

	var payload struct {
		Officials []string `json:"officials"`
	}
	if err := c.getJSON(ctx, "officials", "/officials", q, &payload, nil); err != nil {
		return nil, err
	}
	return payload.Officials, nil
}

func (c *Client) TeamBaseline(ctx context.Context, teamID, season string) (model.TeamBaseline, error) {
	q := url.Values{}
	q.Set("season", season)

	var b model.TeamBaseline
	err := c.getJSON(ctx, "team baseline", "/teams/"+url.PathEscape(teamID)+"/baseline", q, &b,
		func() error { return fmt.Errorf("no baseline for team %q in season %q", teamID, season) })
	if err != nil {
		return model.TeamBaseline{}, err
	}
	return b, nil
}
