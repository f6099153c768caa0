package pricing

import (
	"fmt"
	"math"

	"github.com/matthewbaird/rentpulse/internal/types"
)

const maxActionsPerBucket = 10

// PortfolioSummary rolls recommendations for many units into totals and
// per-urgency action lists.
type PortfolioSummary struct {
	TotalUnits            int                        `json:"total_units"`
	TotalCurrentRevenue   float64                    `json:"total_current_revenue"`
	TotalSuggestedRevenue float64                    `json:"total_suggested_revenue"`
	TotalImpact           float64                    `json:"total_impact"`
	AverageConfidence     float64                    `json:"average_confidence"`
	StrategyDistribution  map[types.Strategy]int     `json:"strategy_distribution"`
	UrgencyDistribution   map[types.UrgencyLevel]int `json:"urgency_distribution"`
	RecommendedActions    RecommendedActions         `json:"recommended_actions"`
}

type RecommendedActions struct {
	Immediate []string `json:"immediate"`
	Soon      []string `json:"soon"`
	Moderate  []string `json:"moderate"`
}

// AnalyzePortfolio summarizes recs. An empty slice yields a zero summary.
func AnalyzePortfolio(recs []types.PricingRecommendation) PortfolioSummary {
	sum := PortfolioSummary{
		TotalUnits:           len(recs),
		StrategyDistribution: make(map[types.Strategy]int),
		UrgencyDistribution:  make(map[types.UrgencyLevel]int),
		RecommendedActions: RecommendedActions{
			Immediate: []string{},
			Soon:      []string{},
			Moderate:  []string{},
		},
	}

	var confidence float64
	for _, r := range recs {
		sum.TotalCurrentRevenue += r.RevenueImpact.CurrentAnnualRevenue
		sum.TotalSuggestedRevenue += r.RevenueImpact.SuggestedAnnualRevenue
		sum.TotalImpact += r.RevenueImpact.TotalImpact
		confidence += r.Confidence
		sum.StrategyDistribution[r.Strategy]++
		sum.UrgencyDistribution[r.UrgencyLevel]++

		sign := ""
		if r.AdjustmentPercent > 0 {
			sign = "+"
		}
		line := fmt.Sprintf("%s: %s (%s%g%%)", r.UnitID, r.Strategy, sign, r.AdjustmentPercent)
		acts := &sum.RecommendedActions
		switch r.UrgencyLevel {
		case types.UrgencyImmediate:
			acts.Immediate = appendCapped(acts.Immediate, line)
		case types.UrgencySoon:
			acts.Soon = appendCapped(acts.Soon, line)
		case types.UrgencyModerate:
			acts.Moderate = appendCapped(acts.Moderate, line)
		}
	}

	sum.TotalCurrentRevenue = math.Round(sum.TotalCurrentRevenue)
	sum.TotalSuggestedRevenue = math.Round(sum.TotalSuggestedRevenue)
	sum.TotalImpact = math.Round(sum.TotalImpact)
	if len(recs) > 0 {
		sum.AverageConfidence = round2(confidence / float64(len(recs)))
	}
	return sum
}

func appendCapped(list []string, s string) []string {
	if len(list) >= maxActionsPerBucket {
		return list
	}
	return append(list, s)
}

// PortfolioInsights renders a summary as operator-facing sentences.
func PortfolioInsights(s PortfolioSummary) []string {
	var out []string
	if s.TotalImpact > 0 {
		out = append(out, fmt.Sprintf("Portfolio could generate $%.0f additional annual revenue", s.TotalImpact))
	} else {
		out = append(out, fmt.Sprintf("Repricing trades $%.0f of annual rent for faster leasing", math.Abs(s.TotalImpact)))
	}

	if n := s.StrategyDistribution[types.StrategyAggressiveReduction]; float64(n) > float64(s.TotalUnits)*0.3 {
		out = append(out, fmt.Sprintf("%d units need aggressive pricing adjustments - market conditions are challenging", n))
	}
	if n := s.StrategyDistribution[types.StrategyIncrease]; n > 0 {
		out = append(out, fmt.Sprintf("%d units have pricing upside potential", n))
	}
	if n := s.UrgencyDistribution[types.UrgencyImmediate]; n > 0 {
		out = append(out, fmt.Sprintf("%d units require immediate action (30+ days on market)", n))
	}

	switch {
	case s.AverageConfidence > 0.8:
		out = append(out, "High confidence in recommendations - strong data quality")
	case s.AverageConfidence < 0.6:
		out = append(out, "Moderate confidence - consider gathering more market data")
	}
	return out
}
