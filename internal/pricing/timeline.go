package pricing

import (
	"math"

	"github.com/matthewbaird/rentpulse/internal/types"
)

var baseLeaseDays = map[types.MarketVelocity]int{
	types.VelocityHot:    5,
	types.VelocityNormal: 12,
	types.VelocitySlow:   25,
	types.VelocityStale:  40,
}

const defaultLeaseDays = 20

// ExpectedLeaseDays estimates days to lease at the suggested rent.
func ExpectedLeaseDays(suggested, current float64, v types.MarketVelocity) int {
	days, ok := baseLeaseDays[v]
	if !ok {
		days = defaultLeaseDays
	}
	if current > 0 {
		ratio := suggested / current
		switch {
		case ratio < 0.95:
			days = int(math.Floor(float64(days) * 0.6))
		case ratio < 0.98:
			days = int(math.Floor(float64(days) * 0.8))
		case ratio > 1.02:
			days = int(math.Floor(float64(days) * 1.3))
		}
	}
	if days < 1 {
		days = 1
	}
	return days
}

// LeaseTimelineFor compares the lease trajectory at the current rent with the
// one at the suggested rent.
func LeaseTimelineFor(suggested, current float64, v types.MarketVelocity, daysOnMarket int) types.LeaseTimeline {
	base, ok := baseLeaseDays[v]
	if !ok {
		base = defaultLeaseDays
	}
	currentDays := int(math.Floor(float64(base) * 1.5))
	if daysOnMarket > 30 {
		currentDays += 10
	}
	suggestedDays := ExpectedLeaseDays(suggested, current, v)
	d := float64(suggestedDays)

	return types.LeaseTimeline{
		CurrentTrajectoryDays:   currentDays,
		SuggestedTrajectoryDays: suggestedDays,
		AccelerationFactor:      round2(float64(currentDays) / d),
		ProbabilityByWeek: types.WeeklyProbability{
			Week1: round2(math.Min(0.9, 0.3+14/d)),
			Week2: round2(math.Min(0.9, 0.5+21/d)),
			Week4: round2(math.Min(0.95, 0.7+28/d)),
			Week8: round2(math.Min(0.98, 0.85+28/d)),
		},
	}
}

// RevenueImpactFor projects twelve months of revenue at both rents. The
// current-price scenario is assumed to take half again as long to lease.
func RevenueImpactFor(current, suggested float64, expectedDays int) types.RevenueImpact {
	currentDays := math.Floor(float64(expectedDays) * 1.5)
	vacantCurrent := math.Min(currentDays/30, 2)
	vacantSuggested := math.Min(float64(expectedDays)/30, 2)

	currentRevenue := current * (12 - vacantCurrent)
	suggestedRevenue := suggested * (12 - vacantSuggested)

	breakEven := 0
	if suggested > 0 {
		breakEven = int(math.Max(0, math.Floor((current-suggested)/suggested*30)))
	}

	return types.RevenueImpact{
		CurrentAnnualRevenue:   math.Round(currentRevenue),
		SuggestedAnnualRevenue: math.Round(suggestedRevenue),
		TotalImpact:            math.Round(suggestedRevenue - currentRevenue),
		MonthsVacantCurrent:    round1(vacantCurrent),
		MonthsVacantSuggested:  round1(vacantSuggested),
		BreakEvenDays:          breakEven,
	}
}
