package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/whistle-data/refzone.report/internal/effects"
	"github.com/whistle-data/refzone.report/internal/features"
	"github.com/whistle-data/refzone.report/internal/httputil"
	"github.com/whistle-data/refzone.report/internal/predict"
	"github.com/whistle-data/refzone.report/internal/session"
	"github.com/whistle-data/refzone.report/internal/version"
	"github.com/whistle-data/refzone.report/internal/zones"
)

// writeStoreError maps the error taxonomy onto HTTP statuses: caller
// bugs are 400, missing baselines 404, exhausted transient failures 502.
func writeStoreError(w http.ResponseWriter, err error) {
	var ife *features.InvalidFeatureError
	var nbe *predict.NoBaselineError
	var tfe *predict.TransientFetchError
	switch {
	case errors.As(err, &ife):
		httputil.BadRequest(w, ife.Error())
	case errors.As(err, &nbe):
		httputil.NotFound(w, nbe.Error())
	case errors.As(err, &tfe):
		httputil.WriteJSONError(w, http.StatusBadGateway, tfe.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

type heatmapRequest struct {
	OfficialID string             `json:"official_id"`
	Season     string             `json:"season"`
	Exposure   string             `json:"exposure"`
	Grid       string             `json:"grid"`
	Overrides  features.Overrides `json:"overrides"`
}

func (s *Server) predictHeatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req heatmapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.OfficialID == "" {
		httputil.BadRequest(w, "official_id is required")
		return
	}
	if req.Season == "" {
		httputil.BadRequest(w, "season is required")
		return
	}
	if req.Exposure == "" {
		req.Exposure = session.ExposureOppPass
	}
	if req.Grid == "" {
		req.Grid = session.DefaultGrid
	}
	grid, err := zones.ParseGrid(req.Grid)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	result, err := s.engine.Heatmap(r.Context(), predict.Request{
		OfficialID: req.OfficialID,
		Season:     req.Season,
		Exposure:   req.Exposure,
		Grid:       grid,
		Overrides:  req.Overrides,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, result)
}

func (s *Server) rankedEffects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	feature := q.Get("feature")
	if !features.Known(feature) {
		httputil.BadRequest(w, fmt.Sprintf("unknown playstyle feature %q", feature))
		return
	}
	seasonName := q.Get("season")
	if seasonName == "" {
		httputil.BadRequest(w, "season is required")
		return
	}
	gridLabel := q.Get("grid")
	if gridLabel == "" {
		gridLabel = session.DefaultGrid
	}
	grid, err := zones.ParseGrid(gridLabel)
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
	httputil.WriteJSONOK(w, map[string]interface{}{
		"feature": feature,
		"season":  seasonName,
		"grid":    grid.String(),
		"effects": ranked,
		"summary": effects.Summarise(ranked),
	})
}

func (s *Server) listFeatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"features": features.All()})
}

func (s *Server) listSeasons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	seasons, err := s.source.Seasons(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"seasons": seasons})
}

func (s *Server) listOfficials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	seasonName := r.URL.Query().Get("season")
	if seasonName == "" {
		httputil.BadRequest(w, "season is required")
		return
	}
	officials, err := s.source.Officials(r.Context(), seasonName)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"season":    seasonName,
		"officials": officials,
	})
}

// officialBaseline serves /api/officials/{id}/baseline and
// /api/officials/{id}/slopes.
func (s *Server) officialBaseline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/officials/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		httputil.NotFound(w, "not found")
		return
	}
	officialID := parts[0]

	q := r.URL.Query()
	seasonName := q.Get("season")
	if seasonName == "" {
		httputil.BadRequest(w, "season is required")
		return
	}

	switch parts[1] {
	case "baseline":
		exposure := q.Get("exposure")
		if exposure == "" {
			exposure = session.ExposureOppPass
		}
		b, err := s.source.OfficialBaseline(r.Context(), officialID, seasonName, exposure)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.WriteJSONOK(w, b)

	case "slopes":
		feature := q.Get("feature")
		if !features.Known(feature) {
			httputil.BadRequest(w, fmt.Sprintf("unknown playstyle feature %q", feature))
			return
		}
		gridLabel := q.Get("grid")
		if gridLabel == "" {
			gridLabel = session.DefaultGrid
		}
		grid, err := zones.ParseGrid(gridLabel)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		slopes, err := s.source.Slopes(r.Context(), officialID, feature, seasonName, grid)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{
			"official_id": officialID,
			"feature":     feature,
			"season":      seasonName,
			"grid":        grid.String(),
			"slopes":      slopes,
		})

	default:
		httputil.NotFound(w, "not found")
	}
}

func (s *Server) teamBaseline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/teams/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "baseline" {
		httputil.NotFound(w, "not found")
		return
	}
	seasonName := r.URL.Query().Get("season")
	if seasonName == "" {
		httputil.BadRequest(w, "season is required")
		return
	}

	b, err := s.source.TeamBaseline(r.Context(), parts[0], seasonName)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, b)
}

type sessionResponse struct {
	State session.State `json:"state"`
	Query string        `json:"query"`
}

type sessionPatch struct {
	Filters   *session.FiltersPatch   `json:"filters,omitempty"`
	Selection *session.SelectionPatch `json:"selection,omitempty"`
	Overrides features.Overrides      `json:"overrides,omitempty"`
}

// sessionState serves the shareable session representation. GET returns
// the current state and its query encoding; PUT applies a partial
// update.
func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, sessionResponse{
			State: s.sessions.Get(),
			Query: s.sessions.Encoded(),
		})

	case http.MethodPut:
		var patch sessionPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if patch.Overrides != nil {
			if _, err := s.sessions.SetOverrides(patch.Overrides); err != nil {
				writeStoreError(w, err)
				return
			}
		}
		if patch.Filters != nil {
			s.sessions.SetFilters(*patch.Filters)
		}
		if patch.Selection != nil {
			s.sessions.SetSelection(*patch.Selection)
		}
		httputil.WriteJSONOK(w, sessionResponse{
			State: s.sessions.Get(),
			Query: s.sessions.Encoded(),
		})

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) buildInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
