// Package session holds the analysis session state: filters, selection
// and feature overrides. The store is the only owner of that state;
// consumers receive snapshots and mutate only through the patch
// operations, each of which atomically merges, republishes the state to
// subscribers and re-derives the shareable query representation.
package session

import (
	"sync"

	"github.com/whistle-data/refzone.report/internal/features"
)

// Supported filter values.
const (
	DefaultSeason   = "2025-26"
	DefaultGrid     = "5x3"
	GameStateAll    = "all"
	ExposureOppPass = "opp_passes"
	ExposureMinutes = "minutes"
)

// Filters narrow which fitted models a query runs against.
type Filters struct {
	Season    string `json:"season"`
	Grid      string `json:"grid"`
	GameState string `json:"game_state"`
	Exposure  string `json:"exposure"`
}

// DefaultFilters returns the filter defaults for the most recent season.
func DefaultFilters() Filters {
	return Filters{
		Season:    DefaultSeason,
		Grid:      DefaultGrid,
		GameState: GameStateAll,
		Exposure:  ExposureOppPass,
	}
}

// Selection identifies which team, official and match the analyst is
// looking at. Empty fields mean nothing selected.
type Selection struct {
	TeamID     string `json:"team_id,omitempty"`
	OfficialID string `json:"official_id,omitempty"`
	MatchID    string `json:"match_id,omitempty"`
}

// State is one immutable snapshot of the session. Overrides is always a
// private copy; mutating a snapshot never affects the store.
type State struct {
	Filters   Filters            `json:"filters"`
	Selection Selection          `json:"selection"`
	Overrides features.Overrides `json:"overrides,omitempty"`
}

func (st State) clone() State {
	st.Overrides = features.Clone(st.Overrides)
	return st
}

// FiltersPatch is a partial filters update. Nil fields keep their
// current value, same shape as runtime tuning patches elsewhere in the
// system.
type FiltersPatch struct {
	Season    *string `json:"season,omitempty"`
	Grid      *string `json:"grid,omitempty"`
	GameState *string `json:"game_state,omitempty"`
	Exposure  *string `json:"exposure,omitempty"`
}

// SelectionPatch is a partial selection update. Nil keeps, empty string
// clears.
type SelectionPatch struct {
	TeamID     *string `json:"team_id,omitempty"`
	OfficialID *string `json:"official_id,omitempty"`
	MatchID    *string `json:"match_id,omitempty"`
}

// Store owns the session state.
type Store struct {
	mu       sync.Mutex
	defaults Filters
	state    State
	encoded  string

	nextSub int
	subs    map[int]func(State)
}

// NewStore creates a store initialised to defaults. Zero-valued default
// fields fall back to DefaultFilters.
func NewStore(defaults Filters) *Store {
	base := DefaultFilters()
	if defaults.Season != "" {
		base.Season = defaults.Season
	}
	if defaults.Grid != "" {
		base.Grid = defaults.Grid
	}
	if defaults.GameState != "" {
		base.GameState = defaults.GameState
	}
	if defaults.Exposure != "" {
		base.Exposure = defaults.Exposure
	}

	s := &Store{
		defaults: base,
		state:    State{Filters: base},
		subs:     make(map[int]func(State)),
	}
	s.encoded = Encode(s.state, s.defaults)
	return s
}

// FromQuery creates a store whose initial state is decoded from a
// shareable query string.
func FromQuery(query string, defaults Filters) (*Store, error) {
	s := NewStore(defaults)
	st, err := Decode(query, s.defaults)
	if err != nil {
		return nil, err
	}
	s.state = st
	s.encoded = Encode(st, s.defaults)
	return s, nil
}

// Get returns a snapshot of the current state.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Defaults returns the filter defaults this store was built with.
func (s *Store) Defaults() Filters {
	return s.defaults
}

// Encoded returns the current shareable query representation. Values
// equal to the defaults are omitted, so a pristine session encodes to
// the empty string.
func (s *Store) Encoded() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encoded
}

// Subscribe registers fn to receive a snapshot after every mutation.
// The returned function unsubscribes.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// mutate applies fn to a working copy of the state under the lock, then
// publishes the new snapshot to subscribers outside it.
func (s *Store) mutate(fn func(*State)) State {
	s.mu.Lock()
	next := s.state.clone()
	fn(&next)
	s.state = next
	s.encoded = Encode(next, s.defaults)
	snapshot := next.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snapshot)
	}
	return snapshot
}

// SetFilters merges a partial filters update over the current filters.
func (s *Store) SetFilters(p FiltersPatch) State {
	return s.mutate(func(st *State) {
		if p.Season != nil {
			st.Filters.Season = *p.Season
		}
		if p.Grid != nil {
			st.Filters.Grid = *p.Grid
		}
		if p.GameState != nil {
			st.Filters.GameState = *p.GameState
		}
		if p.Exposure != nil {
			st.Filters.Exposure = *p.Exposure
		}
	})
}

// SetSelection merges a partial selection update.
func (s *Store) SetSelection(p SelectionPatch) State {
	return s.mutate(func(st *State) {
		if p.TeamID != nil {
			st.Selection.TeamID = *p.TeamID
		}
		if p.OfficialID != nil {
			st.Selection.OfficialID = *p.OfficialID
		}
		if p.MatchID != nil {
			st.Selection.MatchID = *p.MatchID
		}
	})
}

// SetOverrides replaces the override vector wholesale after validating
// every key.
func (s *Store) SetOverrides(ov features.Overrides) (State, error) {
	if err := features.Validate(ov); err != nil {
		return State{}, err
	}
	return s.mutate(func(st *State) {
		st.Overrides = features.Clone(ov)
	}), nil
}

// SetOverride adjusts a single feature, the slider-move operation.
// Setting a feature to zero removes it from the vector.
func (s *Store) SetOverride(feature string, value float64) (State, error) {
	if !features.Known(feature) {
		return State{}, &features.InvalidFeatureError{Key: feature}
	}
	return s.mutate(func(st *State) {
		if value == 0 {
			delete(st.Overrides, feature)
			return
		}
		if st.Overrides == nil {
			st.Overrides = features.Overrides{}
		}
		st.Overrides[feature] = value
	}), nil
}

// Reset returns the session to its defaults, clearing selection and
// overrides.
func (s *Store) Reset() State {
	return s.mutate(func(st *State) {
		*st = State{Filters: s.defaults}
	})
}
