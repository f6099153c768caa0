// Package renter reads the same unit snapshot the landlord side scores and
// turns it into negotiation leverage for a prospective tenant.
package renter

import (
	"fmt"
	"math"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// Transform derives renter-facing deal intelligence. rec may be nil.
func Transform(s types.UnitSnapshot, rec *types.PricingRecommendation) types.RenterDealIntelligence {
	score := DealScore(s, rec)
	level := Level(score, s.DaysOnMarket)
	desperation := landlordDesperation(s)

	return types.RenterDealIntelligence{
		UnitID:               s.UnitID,
		DealScore:            score,
		DealLevel:            level,
		NegotiationPotential: negotiationPotential(s),
		LandlordDesperation:  desperation,
		PotentialSavings:     potentialSavings(s),
		TimingAdvice:         timingAdvice(s, level),
		NegotiationTips:      negotiationTips(s, desperation),
		MarketPosition:       renterPosition(s),
		CompetitionLevel:     competition(s.MarketVelocity),
		VacancyWeakness:      vacancyWeakness(s),
	}
}

// DealScore rates a unit for the renter on a 0-100 scale.
func DealScore(s types.UnitSnapshot, rec *types.PricingRecommendation) int {
	score := 50

	switch dom := s.DaysOnMarket; {
	case dom >= 45:
		score += 25
	case dom >= 30:
		score += 20
	case dom >= 14:
		score += 15
	case dom >= 7:
		score += 10
	}

	if s.CurrentRent > 0 {
		switch pct := s.ConcessionValue / s.CurrentRent * 100; {
		case pct >= 10:
			score += 20
		case pct >= 5:
			score += 15
		case pct > 0:
			score += 10
		}
	}

	switch s.MarketVelocity {
	case types.VelocityStale:
		score += 20
	case types.VelocitySlow:
		score += 15
	case types.VelocityNormal:
		score += 5
	case types.VelocityHot:
		score -= 15
	}

	if rec != nil && rec.AdjustmentPercent < -5 {
		score += 15
	}

	switch s.MarketPosition {
	case types.PositionAbove:
		score += 15
	case types.PositionAt:
		score += 5
	}

	return max(0, min(100, score))
}

func Level(score, daysOnMarket int) types.DealLevel {
	switch {
	case score >= 80 || daysOnMarket >= 45:
		return types.DealGreat
	case score >= 65 || daysOnMarket >= 21:
		return types.DealGood
	case score >= 45:
		return types.DealFair
	default:
		return types.DealHotMarket
	}
}

func negotiationPotential(s types.UnitSnapshot) types.Potential {
	switch {
	case s.DaysOnMarket >= 30 || s.ConcessionUrgency == types.UrgencyDesperate:
		return types.PotentialHigh
	case s.DaysOnMarket >= 14 || s.ConcessionUrgency == types.UrgencyAggressive:
		return types.PotentialMedium
	default:
		return types.PotentialLow
	}
}

func landlordDesperation(s types.UnitSnapshot) types.Desperation {
	switch {
	case s.DaysOnMarket >= 45 || s.ConcessionUrgency == types.UrgencyDesperate:
		return types.DesperationDesperate
	case s.DaysOnMarket >= 21 || s.ConcessionUrgency == types.UrgencyAggressive:
		return types.DesperationMotivated
	case s.DaysOnMarket >= 7 || s.ConcessionUrgency == types.UrgencyStandard:
		return types.DesperationStandard
	default:
		return types.DesperationStubborn
	}
}

func potentialSavings(s types.UnitSnapshot) types.PotentialSavings {
	var lo, hi float64
	switch dom := s.DaysOnMarket; {
	case dom >= 45:
		lo, hi = 0.05, 0.15
	case dom >= 21:
		lo, hi = 0.03, 0.10
	case dom >= 7:
		lo, hi = 0.01, 0.05
	}
	monthly := types.SavingsRange{Min: s.CurrentRent * lo, Max: s.CurrentRent * hi}
	return types.PotentialSavings{
		Monthly:            monthly,
		AnnualSavings:      (monthly.Min + monthly.Max) / 2 * 12,
		OneTimeConcessions: s.ConcessionValue,
	}
}

func timingAdvice(s types.UnitSnapshot, level types.DealLevel) types.TimingAdvice {
	switch {
	case s.MarketVelocity == types.VelocityHot || s.DaysOnMarket < 3:
		return types.TimingAdvice{
			Action:       types.TimingApplyImmediately,
			Reasoning:    "High demand market - units lease quickly",
			ActionWindow: "Within 24 hours",
		}
	case level == types.DealGreat && s.DaysOnMarket >= 30:
		return types.TimingAdvice{
			Action:       types.TimingNegotiateNow,
			Reasoning:    "Landlord is motivated after long vacancy",
			ActionWindow: "This week",
		}
	case s.DaysOnMarket < 14 && s.MarketVelocity == types.VelocityNormal:
		return types.TimingAdvice{
			Action:       types.TimingWait,
			Reasoning:    "Unit may get more desperate in 1-2 weeks",
			ActionWindow: "7-14 days",
		}
	default:
		return types.TimingAdvice{
			Action:       types.TimingNegotiateNow,
			Reasoning:    "Good balance of leverage and risk",
			ActionWindow: "Within 3-5 days",
		}
	}
}

func negotiationTips(s types.UnitSnapshot, d types.Desperation) []string {
	var tips []string
	if s.DaysOnMarket >= 30 {
		tips = append(tips, fmt.Sprintf("Mention the %d-day vacancy to justify lower rent", s.DaysOnMarket))
	}
	if s.ConcessionValue > 0 {
		tips = append(tips, "Ask to convert concessions to permanent rent reduction")
	}
	if d == types.DesperationDesperate {
		tips = append(tips,
			"Be bold - desperate landlords need to fill units",
			"Request multiple concessions (lower rent + waived fees)",
		)
	}
	if s.MarketVelocity == types.VelocitySlow || s.MarketVelocity == types.VelocityStale {
		tips = append(tips, "Reference slow market conditions in your negotiation")
	}
	if s.MarketPosition == types.PositionAbove {
		tips = append(tips, "Point out that rent is above market average")
	}
	if len(tips) == 0 {
		tips = append(tips, "Professional approach - landlord has less pressure")
	}
	return tips
}

func renterPosition(s types.UnitSnapshot) types.RenterPosition {
	switch {
	case s.DaysOnMarket >= 30 || s.MarketVelocity == types.VelocityStale:
		return types.RenterAdvantage
	case s.MarketVelocity == types.VelocityHot || s.DaysOnMarket < 5:
		return types.LandlordAdvantage
	default:
		return types.RenterBalanced
	}
}

func competition(v types.MarketVelocity) types.Potential {
	switch v {
	case types.VelocityHot:
		return types.PotentialHigh
	case types.VelocitySlow, types.VelocityStale:
		return types.PotentialLow
	default:
		return types.PotentialMedium
	}
}

// vacancyWeakness is the renter's leverage on a 1-10 scale.
func vacancyWeakness(s types.UnitSnapshot) int {
	w := 1 + math.Min(float64(s.DaysOnMarket)/7, 5)

	switch s.ConcessionUrgency {
	case types.UrgencyDesperate:
		w += 3
	case types.UrgencyAggressive:
		w += 2
	case types.UrgencyStandard:
		w++
	}

	switch s.MarketVelocity {
	case types.VelocityStale:
		w += 2
	case types.VelocitySlow:
		w++
	case types.VelocityHot:
		w--
	}

	return max(1, min(10, int(math.Round(w))))
}
