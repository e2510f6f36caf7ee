package session

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/whistle-data/refzone.report/internal/features"
)

// Query keys for the shareable representation. Override features are
// encoded as "ov.<feature>".
const (
	keySeason    = "season"
	keyGrid      = "grid"
	keyGameState = "game_state"
	keyExposure  = "exposure"
	keyTeam      = "team"
	keyOfficial  = "official"
	keyMatch     = "match"

	overridePrefix = "ov."
)

// Encode renders st as a URL query string. Filter values equal to
// defaults and empty selection fields are omitted, so a pristine session
// encodes to "". Keys are emitted in sorted order, making the encoding
// canonical.
func Encode(st State, defaults Filters) string {
	v := url.Values{}
	if st.Filters.Season != defaults.Season {
		v.Set(keySeason, st.Filters.Season)
	}
	if st.Filters.Grid != defaults.Grid {
		v.Set(keyGrid, st.Filters.Grid)
	}
	if st.Filters.GameState != defaults.GameState {
		v.Set(keyGameState, st.Filters.GameState)
	}
	if st.Filters.Exposure != defaults.Exposure {
		v.Set(keyExposure, st.Filters.Exposure)
	}
	if st.Selection.TeamID != "" {
		v.Set(keyTeam, st.Selection.TeamID)
	}
	if st.Selection.OfficialID != "" {
		v.Set(keyOfficial, st.Selection.OfficialID)
	}
	if st.Selection.MatchID != "" {
		v.Set(keyMatch, st.Selection.MatchID)
	}
	for _, adj := range features.Describe(st.Overrides) {
		v.Set(overridePrefix+adj.Feature, strconv.FormatFloat(adj.Value, 'g', -1, 64))
	}
	return v.Encode()
}

// Decode parses a query string produced by Encode back into a State.
// Absent keys take their default values; unrecognised keys are ignored
// for forward compatibility, except override keys, which must name a
// known feature.
func Decode(query string, defaults Filters) (State, error) {
	v, err := url.ParseQuery(query)
	if err != nil {
		return State{}, fmt.Errorf("malformed session query: %w", err)
	}

	st := State{Filters: defaults}
	if s := v.Get(keySeason); s != "" {
		st.Filters.Season = s
	}
	if g := v.Get(keyGrid); g != "" {
		st.Filters.Grid = g
	}
	if gs := v.Get(keyGameState); gs != "" {
		st.Filters.GameState = gs
	}
	if e := v.Get(keyExposure); e != "" {
		st.Filters.Exposure = e
	}
	st.Selection.TeamID = v.Get(keyTeam)
	st.Selection.OfficialID = v.Get(keyOfficial)
	st.Selection.MatchID = v.Get(keyMatch)

	for key := range v {
		name, ok := strings.CutPrefix(key, overridePrefix)
		if !ok {
			continue
		}
		if !features.Known(name) {
			return State{}, &features.InvalidFeatureError{Key: name}
		}
		val, err := strconv.ParseFloat(v.Get(key), 64)
		if err != nil {
			return State{}, fmt.Errorf("override %s: %w", name, err)
		}
		if val == 0 {
			continue
		}
		if st.Overrides == nil {
			st.Overrides = features.Overrides{}
		}
		st.Overrides[name] = val
	}
	return st, nil
}
