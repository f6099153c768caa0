package automation

import (
	"testing"
	"time"

	"github.com/matthewbaird/rentpulse/internal/types"
)

func TestMatches(t *testing.T) {
	in := evalInput{
		snapshot: types.UnitSnapshot{DaysOnMarket: 30, MarketPosition: types.PositionAbove},
		rec:      types.PricingRecommendation{Confidence: 0.82, AdjustmentPercent: -6},
	}
	num := types.Num
	text := types.Text
	cond := func(ct types.ConditionType, op types.Operator, v types.Threshold, v2 ...types.Threshold) types.AutomationCondition {
		c := types.AutomationCondition{Type: ct, Operator: op, Value: v}
		if len(v2) > 0 {
			c.Value2 = &v2[0]
		}
		return c
	}

	tests := []struct {
		name string
		c    types.AutomationCondition
		want bool
	}{
		{"dom greater", cond(types.ConditionDaysOnMarket, types.OpGreaterThan, num(29)), true},
		{"dom not greater at equal", cond(types.ConditionDaysOnMarket, types.OpGreaterThan, num(30)), false},
		{"dom equals numeric text", cond(types.ConditionDaysOnMarket, types.OpEquals, text("30")), true},
		{"dom against word", cond(types.ConditionDaysOnMarket, types.OpLessThan, text("soon")), false},
		{"confidence less", cond(types.ConditionConfidenceScore, types.OpLessThan, num(0.9)), true},
		{"price between", cond(types.ConditionPriceChange, types.OpBetween, num(-10), num(-3)), true},
		{"price between reversed", cond(types.ConditionPriceChange, types.OpBetween, num(-3), num(-10)), true},
		{"price between inclusive", cond(types.ConditionPriceChange, types.OpBetween, num(-6), num(0)), true},
		{"price between missing upper uses zero", cond(types.ConditionPriceChange, types.OpBetween, num(-8)), true},
		{"position equals", cond(types.ConditionMarketPosition, types.OpEquals, text("above_market")), true},
		{"position differs", cond(types.ConditionMarketPosition, types.OpEquals, text("below_market")), false},
		{"position numeric operator", cond(types.ConditionMarketPosition, types.OpGreaterThan, text("at_market")), false},
		{"position against number", cond(types.ConditionMarketPosition, types.OpEquals, num(1)), false},
		{"absent competitor reads zero", cond(types.ConditionCompetitorAction, types.OpEquals, num(0)), true},
		{"absent seasonal reads zero", cond(types.ConditionSeasonalFactor, types.OpGreaterThan, num(5)), false},
		{"unknown type", cond("weather", types.OpEquals, num(0)), false},
		{"unknown operator", cond(types.ConditionDaysOnMarket, "about", num(30)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matches(tt.c, in); got != tt.want {
				t.Errorf("matches(%+v) = %v, want %v", tt.c, got, tt.want)
			}
		})
	}
}

func TestMatchesAll_ShortCircuitsOnFirstMiss(t *testing.T) {
	in := evalInput{
		snapshot:   types.UnitSnapshot{DaysOnMarket: 10},
		competitor: &types.CompetitorContext{MaxPriceChange: 7},
		seasonal:   &types.SeasonalContext{AdjustmentPercent: 6},
	}
	conds := []types.AutomationCondition{
		{Type: types.ConditionCompetitorAction, Operator: types.OpGreaterThan, Value: types.Num(5)},
		{Type: types.ConditionSeasonalFactor, Operator: types.OpGreaterThan, Value: types.Num(5)},
	}
	if !matchesAll(conds, in) {
		t.Error("expected all conditions to match")
	}
	conds = append(conds, types.AutomationCondition{Type: types.ConditionDaysOnMarket, Operator: types.OpGreaterThan, Value: types.Num(30)})
	if matchesAll(conds, in) {
		t.Error("expected the days-on-market condition to fail the rule")
	}
	if !matchesAll(nil, in) {
		t.Error("a rule with no conditions always matches")
	}
}

func TestClockMinutes(t *testing.T) {
	tests := map[string]int{"00:00": 0, "09:00": 540, "17:30": 1050, "23:59": 1439}
	for in, want := range tests {
		got, err := clockMinutes(in)
		if err != nil || got != want {
			t.Errorf("clockMinutes(%q) = %d, %v, want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "9am", "25:00"} {
		if _, err := clockMinutes(bad); err == nil {
			t.Errorf("clockMinutes(%q) should fail", bad)
		}
	}
}

func TestStartOfDayUTC(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatal(err)
	}
	// 21:30 Chicago on the 10th is already the 11th in UTC.
	got := startOfDayUTC(time.Date(2025, 3, 10, 21, 30, 0, 0, chicago))
	if want := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("startOfDayUTC = %s, want %s", got, want)
	}
}
