package renter

import (
	"errors"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// ErrNoDeals is returned when a market summary is requested for no units.
var ErrNoDeals = errors.New("renter: market summary needs at least one deal")

// GenerateMarketSummary reduces deals in a single pass. The first deal with
// the highest score is reported as the best.
func GenerateMarketSummary(deals []types.RenterDealIntelligence) (types.RenterMarketSummary, error) {
	if len(deals) == 0 {
		return types.RenterMarketSummary{}, ErrNoDeals
	}

	dist := map[types.DealLevel]int{
		types.DealGreat:     0,
		types.DealGood:      0,
		types.DealFair:      0,
		types.DealHotMarket: 0,
	}
	var savings float64
	best := deals[0]
	for _, d := range deals {
		dist[d.DealLevel]++
		savings += (d.PotentialSavings.Monthly.Min + d.PotentialSavings.Monthly.Max) / 2
		if d.DealScore > best.DealScore {
			best = d
		}
	}

	total := float64(len(deals))
	trend := types.TrendBalanced
	switch {
	case float64(dist[types.DealGreat])/total > 0.3:
		trend = types.TrendRenterFriendly
	case float64(dist[types.DealHotMarket])/total > 0.4:
		trend = types.TrendCompetitive
	}

	return types.RenterMarketSummary{
		TotalUnits:       len(deals),
		GreatDeals:       dist[types.DealGreat],
		NegotiableUnits:  dist[types.DealGreat] + dist[types.DealGood],
		AverageSavings:   savings / total,
		BestDealUnit:     best.UnitID,
		MarketTrend:      trend,
		DealDistribution: dist,
	}, nil
}
