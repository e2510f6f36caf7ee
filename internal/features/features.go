// Package features owns the closed set of playstyle features and the
// what-if override vector expressed in standard-deviation units.
package features

import (
	"fmt"
	"sort"
	"strings"
)

// The closed feature set. Every override key must be one of these; the
// fitting pipeline upstream standardises each to zero mean and unit
// variance per team, so override values are interpreted as SD shifts
// relative to the team's own baseline.
const (
	PPDA            = "ppda"
	Directness      = "directness"
	PossessionShare = "possession_share"
	BlockHeightX    = "block_height_x"
	WingShare       = "wing_share"
)

// All lists the supported features in canonical display order.
func All() []string {
	return []string{PPDA, Directness, PossessionShare, BlockHeightX, WingShare}
}

var known = map[string]bool{
	PPDA:            true,
	Directness:      true,
	PossessionShare: true,
	BlockHeightX:    true,
	WingShare:       true,
}

// Known reports whether name is part of the fixed feature set.
func Known(name string) bool { return known[name] }

// Overrides maps feature names to signed SD-unit adjustments. Absent or
// zero entries mean no adjustment. Values are unconstrained but only
// roughly [-3, +3] SD is statistically supported by the fitted models.
type Overrides map[string]float64

// InvalidFeatureError reports an override key outside the fixed feature set.
// It is a caller bug and is never retried or swallowed.
type InvalidFeatureError struct {
	Key string
}

func (e *InvalidFeatureError) Error() string {
	return fmt.Sprintf("unknown playstyle feature %q", e.Key)
}

// Validate checks every key in ov against the fixed feature set and
// returns an *InvalidFeatureError for the first unknown key. Keys are
// checked in sorted order so the reported key is deterministic.
func Validate(ov Overrides) error {
	keys := make([]string, 0, len(ov))
	for k := range ov {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !known[k] {
			return &InvalidFeatureError{Key: k}
		}
	}
	return nil
}

// IsModified reports whether any override is non-zero.
func IsModified(ov Overrides) bool {
	for _, v := range ov {
		if v != 0 {
			return true
		}
	}
	return false
}

// Adjustment is a single non-zero override for display purposes.
type Adjustment struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Describe returns the non-zero overrides in canonical feature order.
func Describe(ov Overrides) []Adjustment {
	var out []Adjustment
	for _, f := range All() {
		if v, ok := ov[f]; ok && v != 0 {
			out = append(out, Adjustment{Feature: f, Value: v})
		}
	}
	return out
}

// Fingerprint renders the non-zero overrides as a compact canonical
// string, suitable for use in cache keys. Equivalent override maps
// always produce the same fingerprint; an all-zero map produces "".
func Fingerprint(ov Overrides) string {
	var b strings.Builder
	for _, adj := range Describe(ov) {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%g", adj.Feature, adj.Value)
	}
	return b.String()
}

// Clone returns an independent copy of ov. Components hand out clones so
// shared state is never mutated through an escaped reference.
func Clone(ov Overrides) Overrides {
	if ov == nil {
		return nil
	}
	out := make(Overrides, len(ov))
	for k, v := range ov {
		out[k] = v
	}
	return out
}
