package pricing

import (
	"strings"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// ValidationError lists every snapshot field that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid snapshot: " + strings.Join(e.Fields, ", ")
}

// Validate checks the preconditions GenerateRecommendation relies on.
func Validate(s types.UnitSnapshot) error {
	var bad []string
	if s.UnitID == "" {
		bad = append(bad, "unit_id")
	}
	if s.CurrentRent <= 0 {
		bad = append(bad, "current_rent")
	}
	if s.DaysOnMarket < 0 {
		bad = append(bad, "days_on_market")
	}
	if _, ok := velocityMultipliers[s.MarketVelocity]; !ok {
		bad = append(bad, "market_velocity")
	}
	if _, ok := positionAdjustments[s.MarketPosition]; !ok {
		bad = append(bad, "market_position")
	}
	if _, ok := concessionDiscounts[s.ConcessionUrgency]; !ok {
		bad = append(bad, "concession_urgency")
	}
	switch s.RentTrend {
	case "", types.TrendIncreasing, types.TrendStable, types.TrendDecreasing:
	default:
		bad = append(bad, "rent_trend")
	}
	if s.LeaseProbability < 0 || s.LeaseProbability > 1 {
		bad = append(bad, "lease_probability")
	}
	if s.ConfidenceScore < 0 || s.ConfidenceScore > 1 {
		bad = append(bad, "confidence_score")
	}
	if s.ConcessionValue < 0 {
		bad = append(bad, "concession_value")
	}
	if len(bad) > 0 {
		return &ValidationError{Fields: bad}
	}
	return nil
}
