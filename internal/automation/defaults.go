package automation

import (
	"time"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// DefaultSettings is the policy installed on first start.
func DefaultSettings() types.AutomationSettings {
	return types.AutomationSettings{
		IsEnabled:            true,
		MaxDailyActions:      10,
		MaxAdjustmentPercent: 15,
		RequireApprovalAbove: 5,
		AutoApprovalRules:    []string{"low-risk-reduction", "seasonal-adjustment"},
		BusinessHours: types.BusinessHours{
			Enabled:  true,
			Start:    "09:00",
			End:      "17:00",
			Timezone: "America/Chicago",
		},
		BlackoutDates: []string{},
	}
}

// DefaultRules is the rule set installed when the store has none.
func DefaultRules(createdAt time.Time) []types.AutomationRule {
	rule := func(r types.AutomationRule) types.AutomationRule {
		r.IsActive = true
		r.CreatedBy = "system"
		r.CreatedAt = createdAt
		return r
	}
	return []types.AutomationRule{
		rule(types.AutomationRule{
			ID:          "low-risk-reduction",
			Name:        "Low-Risk Price Reduction",
			Description: "Automatically reduce prices for units on market 30+ days with high confidence",
			Conditions: []types.AutomationCondition{
				{Type: types.ConditionDaysOnMarket, Operator: types.OpGreaterThan, Value: types.Num(30)},
				{Type: types.ConditionConfidenceScore, Operator: types.OpGreaterThan, Value: types.Num(0.8)},
				{Type: types.ConditionPriceChange, Operator: types.OpBetween, Value: types.Num(-10), Value2: ptr(types.Num(-3))},
			},
			Actions: []types.AutomationAction{
				{Type: types.ActionAdjustPrice, Parameters: map[string]any{"use_recommendation": true}},
				{Type: types.ActionSendNotification, Parameters: map[string]any{"type": "automated_update"}},
			},
			RiskLevel:            types.RiskLow,
			MaxAdjustmentPercent: 8,
		}),
		rule(types.AutomationRule{
			ID:          "seasonal-adjustment",
			Name:        "Seasonal Price Adjustment",
			Description: "Apply seasonal pricing adjustments during peak/low seasons",
			Conditions: []types.AutomationCondition{
				{Type: types.ConditionSeasonalFactor, Operator: types.OpGreaterThan, Value: types.Num(5)},
				{Type: types.ConditionConfidenceScore, Operator: types.OpGreaterThan, Value: types.Num(0.7)},
			},
			Actions: []types.AutomationAction{
				{Type: types.ActionAdjustPrice, Parameters: map[string]any{"use_seasonal_factor": true}},
				{Type: types.ActionSendNotification, Parameters: map[string]any{"type": "seasonal_adjustment"}},
			},
			RiskLevel:            types.RiskLow,
			MaxAdjustmentPercent: 5,
		}),
		rule(types.AutomationRule{
			ID:          "competitor-response",
			Name:        "Competitive Price Response",
			Description: "Respond to significant competitor price changes",
			Conditions: []types.AutomationCondition{
				{Type: types.ConditionCompetitorAction, Operator: types.OpGreaterThan, Value: types.Num(5)},
				{Type: types.ConditionMarketPosition, Operator: types.OpEquals, Value: types.Text(string(types.PositionAbove))},
			},
			Actions: []types.AutomationAction{
				{Type: types.ActionScheduleReview, Parameters: map[string]any{"priority": "high", "days": 1}},
				{Type: types.ActionSendNotification, Parameters: map[string]any{"type": "competitor_alert"}},
			},
			RiskLevel:            types.RiskMedium,
			MaxAdjustmentPercent: 12,
			RequiresApproval:     true,
		}),
		rule(types.AutomationRule{
			ID:          "high-confidence-opportunity",
			Name:        "High-Confidence Price Increase",
			Description: "Automatically increase prices for high-opportunity units",
			Conditions: []types.AutomationCondition{
				{Type: types.ConditionConfidenceScore, Operator: types.OpGreaterThan, Value: types.Num(0.9)},
				{Type: types.ConditionMarketPosition, Operator: types.OpEquals, Value: types.Text(string(types.PositionBelow))},
				{Type: types.ConditionDaysOnMarket, Operator: types.OpLessThan, Value: types.Num(14)},
			},
			Actions: []types.AutomationAction{
				{Type: types.ActionAdjustPrice, Parameters: map[string]any{"use_recommendation": true}},
				{Type: types.ActionSendNotification, Parameters: map[string]any{"type": "price_opportunity"}},
			},
			RiskLevel:            types.RiskLow,
			MaxAdjustmentPercent: 5,
		}),
	}
}

func ptr[T any](v T) *T { return &v }
