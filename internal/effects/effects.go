// Package effects aggregates raw per-zone slopes into ranked,
// significance-annotated per-official effect lists ("forest plot" data).
package effects

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/whistle-data/refzone.report/internal/model"
)

// zCritical is the two-sided 95% normal quantile.
const zCritical = 1.96

// EffectSummary is one official's aggregated effect for a feature.
//
// SEPooled is sqrt(mean(se_i^2)) across the official's zone-level
// slopes. This is a simple pooling approximation, not a formal
// meta-analysis weight; consumers must treat the interval as indicative
// rather than exact.
type EffectSummary struct {
	OfficialID  string  `json:"official_id"`
	Feature     string  `json:"feature"`
	Zones       int     `json:"zones"`
	MeanCoef    float64 `json:"mean_coef"`
	SEPooled    float64 `json:"se_pooled"`
	CILow       float64 `json:"ci_low"`
	CIHigh      float64 `json:"ci_high"`
	Significant bool    `json:"significant"`
	Positive    bool    `json:"positive"`
}

// Summary is the roll-up over a ranked effect list.
type Summary struct {
	Officials   int     `json:"officials"`
	Significant int     `json:"significant"`
	Positive    int     `json:"positive"`
	MeanOfMeans float64 `json:"mean_of_means"`
	Zones       int     `json:"zones"`
}

// Ranked groups slopes by official, computes each official's unweighted
// mean coefficient and pooled standard error, and returns the list
// sorted descending by |mean coefficient|. Ties preserve first-seen
// input order. Officials with zero slopes simply never appear; callers
// must not synthesise zero rows for them.
func Ranked(feature string, slopes []model.Slope) []EffectSummary {
	byOfficial := make(map[string][]model.Slope)
	var order []string
	for _, s := range slopes {
		if s.Feature != feature {
			continue
		}
		if _, seen := byOfficial[s.OfficialID]; !seen {
			order = append(order, s.OfficialID)
		}
		byOfficial[s.OfficialID] = append(byOfficial[s.OfficialID], s)
	}

	out := make([]EffectSummary, 0, len(order))
	for _, id := range order {
		group := byOfficial[id]
		coefs := make([]float64, len(group))
		sqSEs := make([]float64, len(group))
		for i, s := range group {
			coefs[i] = s.Coef
			sqSEs[i] = s.SE * s.SE
		}

		mean := stat.Mean(coefs, nil)
		sePooled := math.Sqrt(stat.Mean(sqSEs, nil))

		out = append(out, EffectSummary{
			OfficialID:  id,
			Feature:     feature,
			Zones:       len(group),
			MeanCoef:    mean,
			SEPooled:    sePooled,
			CILow:       mean - zCritical*sePooled,
			CIHigh:      mean + zCritical*sePooled,
			Significant: math.Abs(mean) > zCritical*sePooled,
			Positive:    mean > 0,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].MeanCoef) > math.Abs(out[j].MeanCoef)
	})
	return out
}

// Summarise computes the roll-up counts over a ranked effect list.
func Summarise(ranked []EffectSummary) Summary {
	var sum Summary
	if len(ranked) == 0 {
		return sum
	}

	means := make([]float64, len(ranked))
	for i, e := range ranked {
		means[i] = e.MeanCoef
		sum.Zones += e.Zones
		if e.Significant {
			sum.Significant++
		}
		if e.Positive {
			sum.Positive++
		}
	}
	sum.Officials = len(ranked)
	sum.MeanOfMeans = stat.Mean(means, nil)
	return sum
}
