package automation

import (
	"math"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// evalInput is everything a condition may look at.
type evalInput struct {
	snapshot   types.UnitSnapshot
	rec        types.PricingRecommendation
	competitor *types.CompetitorContext
	seasonal   *types.SeasonalContext
}

// operand is the observed value a condition compares against its threshold.
type operand struct {
	num   float64
	str   string
	isStr bool
}

func (in evalInput) observe(t types.ConditionType) (operand, bool) {
	switch t {
	case types.ConditionDaysOnMarket:
		return operand{num: float64(in.snapshot.DaysOnMarket)}, true
	case types.ConditionConfidenceScore:
		return operand{num: in.rec.Confidence}, true
	case types.ConditionMarketPosition:
		return operand{str: string(in.snapshot.MarketPosition), isStr: true}, true
	case types.ConditionPriceChange:
		return operand{num: in.rec.AdjustmentPercent}, true
	case types.ConditionCompetitorAction:
		if in.competitor == nil {
			return operand{}, true
		}
		return operand{num: in.competitor.MaxPriceChange}, true
	case types.ConditionSeasonalFactor:
		if in.seasonal == nil {
			return operand{}, true
		}
		return operand{num: in.seasonal.AdjustmentPercent}, true
	default:
		return operand{}, false
	}
}

// matchesAll ANDs the conditions, stopping at the first miss.
func matchesAll(conds []types.AutomationCondition, in evalInput) bool {
	for _, c := range conds {
		if !matches(c, in) {
			return false
		}
	}
	return true
}

// matches never errors: unknown types, unknown operators and numeric
// operators applied to strings are all plain non-matches. A between with no
// second bound uses zero.
func matches(c types.AutomationCondition, in evalInput) bool {
	actual, ok := in.observe(c.Type)
	if !ok {
		return false
	}

	if actual.isStr {
		return c.Operator == types.OpEquals && c.Value.IsText && c.Value.Text == actual.str
	}

	v, ok := c.Value.Float()
	if !ok {
		return false
	}
	switch c.Operator {
	case types.OpGreaterThan:
		return actual.num > v
	case types.OpLessThan:
		return actual.num < v
	case types.OpEquals:
		return actual.num == v
	case types.OpBetween:
		var v2 float64
		if c.Value2 != nil {
			if v2, ok = c.Value2.Float(); !ok {
				return false
			}
		}
		lo, hi := math.Min(v, v2), math.Max(v, v2)
		return actual.num >= lo && actual.num <= hi
	default:
		return false
	}
}
