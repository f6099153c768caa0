// Package pricing turns a unit snapshot into a landlord-facing rent
// recommendation. Everything here is pure and safe for concurrent use.
package pricing

import (
	"fmt"
	"math"

	"github.com/matthewbaird/rentpulse/internal/types"
)

var velocityMultipliers = map[types.MarketVelocity]float64{
	types.VelocityHot:    1.05,
	types.VelocityNormal: 1.00,
	types.VelocitySlow:   0.97,
	types.VelocityStale:  0.92,
}

// domBand is an inclusive upper bound on days on market and the discount
// applied up to it.
type domBand struct {
	maxDays  int
	discount float64
}

var domDiscounts = []domBand{
	{maxDays: 7, discount: 0},
	{maxDays: 14, discount: 0.02},
	{maxDays: 21, discount: 0.04},
	{maxDays: 30, discount: 0.07},
	{maxDays: 45, discount: 0.10},
	{maxDays: 60, discount: 0.15},
}

const maxDOMDiscount = 0.20

var positionAdjustments = map[types.MarketPosition]float64{
	types.PositionBelow: 0.02,
	types.PositionAt:    0,
	types.PositionAbove: -0.05,
}

var concessionDiscounts = map[types.ConcessionUrgency]float64{
	types.UrgencyNone:       0,
	types.UrgencyStandard:   0.03,
	types.UrgencyAggressive: 0.06,
	types.UrgencyDesperate:  0.12,
}

// GenerateRecommendation scores a snapshot. mc may be nil. The snapshot is
// expected to have passed Validate; a non-positive rent is not handled.
func GenerateRecommendation(s types.UnitSnapshot, mc *types.MarketContext) types.PricingRecommendation {
	current := s.CurrentRent
	suggested := current
	var reasoning []string

	if m, ok := velocityMultipliers[s.MarketVelocity]; ok && m != 1 {
		suggested *= m
		if m > 1 {
			reasoning = append(reasoning, fmt.Sprintf("Hot market premium (+%.1f%%)", (m-1)*100))
		} else {
			reasoning = append(reasoning, fmt.Sprintf("%s market discount (-%.1f%%)", titleCase(string(s.MarketVelocity)), (1-m)*100))
		}
	}

	if d := DOMDiscount(s.DaysOnMarket); d > 0 {
		suggested *= 1 - d
		reasoning = append(reasoning, fmt.Sprintf("%d days on market penalty (-%.1f%%)", s.DaysOnMarket, d*100))
	}

	switch adj := positionAdjustments[s.MarketPosition]; {
	case adj > 0:
		suggested *= 1 + adj
		reasoning = append(reasoning, fmt.Sprintf("Below market opportunity (+%.1f%%)", adj*100))
	case adj < 0:
		suggested *= 1 + adj
		reasoning = append(reasoning, fmt.Sprintf("Above market position (-%.1f%%)", -adj*100))
	}

	if d := concessionDiscounts[s.ConcessionUrgency]; d > 0 {
		suggested *= 1 - d
		reasoning = append(reasoning, fmt.Sprintf("%s concession pressure (-%.1f%%)", titleCase(string(s.ConcessionUrgency)), d*100))
	}

	// Both trend checks run on their own; neither suppresses the other.
	if s.RentTrend == types.TrendDecreasing && s.RentChangePercent < -5 {
		suggested *= 0.98
		reasoning = append(reasoning, "Strong downward rent trend (-2%)")
	}
	if s.RentTrend == types.TrendIncreasing && s.DaysOnMarket < 10 {
		suggested *= 1.02
		reasoning = append(reasoning, "Upward rent trend with quick movement (+2%)")
	}

	if s.LeaseProbability < 0.3 {
		suggested *= 0.95
		reasoning = append(reasoning, "Low lease probability (-5%)")
	}
	if s.LeaseProbability > 0.8 {
		suggested *= 1.02
		reasoning = append(reasoning, "High lease probability (+2%)")
	}

	suggested = math.Max(0, math.Round(suggested))
	amount := suggested - current
	var percent float64
	if current != 0 {
		percent = round2(amount / current * 100)
	}

	timeline := LeaseTimelineFor(suggested, current, s.MarketVelocity, s.DaysOnMarket)

	return types.PricingRecommendation{
		UnitID:            s.UnitID,
		CurrentRent:       current,
		SuggestedRent:     suggested,
		AdjustmentAmount:  amount,
		AdjustmentPercent: percent,
		Confidence:        Confidence(s, mc),
		UrgencyLevel:      Urgency(s.DaysOnMarket, s.ConcessionUrgency),
		Strategy:          StrategyFor(percent),
		Reasoning:         reasoning,
		ExpectedLeaseDays: timeline.SuggestedTrajectoryDays,
		RevenueImpact:     RevenueImpactFor(current, suggested, timeline.SuggestedTrajectoryDays),
		MarketTiming:      Timing(s),
		LeaseTimeline:     timeline,
	}
}

// DOMDiscount returns the fractional discount for the given days on market.
func DOMDiscount(days int) float64 {
	for _, b := range domDiscounts {
		if days <= b.maxDays {
			return b.discount
		}
	}
	return maxDOMDiscount
}

func StrategyFor(adjustmentPercent float64) types.Strategy {
	switch {
	case adjustmentPercent <= -10:
		return types.StrategyAggressiveReduction
	case adjustmentPercent <= -3:
		return types.StrategyModerateReduction
	case adjustmentPercent >= 3:
		return types.StrategyIncrease
	default:
		return types.StrategyHold
	}
}

func Urgency(daysOnMarket int, cu types.ConcessionUrgency) types.UrgencyLevel {
	switch {
	case daysOnMarket >= 30 || cu == types.UrgencyDesperate:
		return types.UrgencyImmediate
	case daysOnMarket >= 14 || cu == types.UrgencyAggressive:
		return types.UrgencySoon
	case daysOnMarket >= 7 || cu == types.UrgencyStandard:
		return types.UrgencyModerate
	default:
		return types.UrgencyLow
	}
}

// Confidence scores how much weight the recommendation deserves, in [0, 1].
func Confidence(s types.UnitSnapshot, mc *types.MarketContext) float64 {
	c := 0.7
	if mc != nil && mc.MarketStats != nil {
		c += 0.1
	}
	if s.DaysOnMarket > 14 {
		c += 0.1
	}
	if s.MarketPosition == types.PositionAt {
		c -= 0.1
	}
	if s.ConfidenceScore > 0.8 {
		c += 0.1
	}
	return round2(math.Min(1, math.Max(0, c)))
}

// Timing adds up favorable and unfavorable market signals.
func Timing(s types.UnitSnapshot) types.MarketTiming {
	score := 0
	if s.MarketVelocity == types.VelocityHot || s.MarketVelocity == types.VelocityNormal {
		score += 2
	}
	if s.RentTrend == types.TrendIncreasing {
		score++
	}
	if s.DaysOnMarket < 14 {
		score++
	}
	if s.MarketVelocity == types.VelocityStale {
		score -= 2
	}
	if s.RentTrend == types.TrendDecreasing {
		score--
	}
	if s.DaysOnMarket > 30 {
		score -= 2
	}

	switch {
	case score >= 3:
		return types.TimingOptimal
	case score >= 1:
		return types.TimingGood
	case score >= -1:
		return types.TimingFair
	default:
		return types.TimingPoor
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func titleCase(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
