// Package model holds the shared vocabulary between the coefficient
// stores, the prediction engine and the effect aggregator: fitted slopes
// and baseline rates as produced by the upstream fitting pipeline.
//
// Everything here is immutable once retrieved. The fitting step itself
// (solver, dataset partitioning) is an external collaborator; this core
// only consumes its output.
package model

// Slope is one fitted effect: how one playstyle feature shifts one
// official's foul rate in one zone. Coefficients are on the log scale of
// a count-regression model, so exp(coef) is a rate ratio per +1 SD.
type Slope struct {
	OfficialID string   `json:"official_id"`
	Feature    string   `json:"feature"`
	XBin       int      `json:"x_bin"`
	YBin       int      `json:"y_bin"`
	Coef       float64  `json:"coef"`
	SE         float64  `json:"se"`
	PValue     *float64 `json:"p_value,omitempty"`
}

// OfficialBaseline is an official's season-level rate summary with no
// style adjustment applied.
type OfficialBaseline struct {
	OfficialID       string  `json:"official_id"`
	Season           string  `json:"season"`
	Exposure         string  `json:"exposure"`
	FoulsPerExposure float64 `json:"fouls_per_exposure"`
	CardsPerExposure float64 `json:"cards_per_exposure"`
	MatchesObserved  int     `json:"matches_observed"`
}

// TeamBaseline carries a team's season-average playstyle profile and
// discipline rates. The playstyle values are raw (not standardised);
// they exist so a UI can show what a +1 SD override means in real units.
type TeamBaseline struct {
	TeamID          string  `json:"team_id"`
	Season          string  `json:"season"`
	PPDA            float64 `json:"ppda"`
	Directness      float64 `json:"directness"`
	PossessionShare float64 `json:"possession_share"`
	BlockHeightX    float64 `json:"block_height_x"`
	WingShare       float64 `json:"wing_share"`
	FoulsPerMatch   float64 `json:"fouls_per_match"`
	YellowsPerMatch float64 `json:"yellows_per_match"`
	RedsPerMatch    float64 `json:"reds_per_match"`
	MatchesObserved int     `json:"matches_observed"`
}
