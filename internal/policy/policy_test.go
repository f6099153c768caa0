package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matthewbaird/rentpulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

const samplePolicy = `
settings: {
	max_daily_actions: 25
	auto_approval_rules: ["stale-cut"]
	business_hours: timezone: "America/Denver"
	blackout_dates: ["2025-12-25"]
}

rules: [{
	id:   "stale-cut"
	name: "Stale listing cut"
	conditions: [
		{type: "days_on_market", operator: "greater_than", value: 45},
		{type: "price_change", operator: "between", value: -6, value2: -2},
		{type: "market_position", operator: "equals", value: "above_market"},
	]
	actions: [{type: "adjust_price", parameters: use_recommendation: true}]
	max_adjustment_percent: 6
}]
`

func TestParse_FillsDefaults(t *testing.T) {
	p, err := Parse([]byte(samplePolicy), "policy.cue", now)
	require.NoError(t, err)

	s := p.Settings
	assert.True(t, s.IsEnabled)
	assert.Equal(t, 25, s.MaxDailyActions)
	assert.Equal(t, 15.0, s.MaxAdjustmentPercent)
	assert.Equal(t, 5.0, s.RequireApprovalAbove)
	assert.Equal(t, []string{"stale-cut"}, s.AutoApprovalRules)
	assert.Equal(t, types.BusinessHours{Enabled: true, Start: "09:00", End: "17:00", Timezone: "America/Denver"}, s.BusinessHours)
	assert.Equal(t, []string{"2025-12-25"}, s.BlackoutDates)

	require.Len(t, p.Rules, 1)
	r := p.Rules[0]
	assert.Equal(t, "stale-cut", r.ID)
	assert.True(t, r.IsActive)
	assert.Equal(t, types.RiskLow, r.RiskLevel)
	assert.Equal(t, "policy", r.CreatedBy)
	assert.Equal(t, now, r.CreatedAt)
	assert.False(t, r.RequiresApproval)
	require.Len(t, r.Conditions, 3)
	assert.Equal(t, types.Num(45), r.Conditions[0].Value)
	require.NotNil(t, r.Conditions[1].Value2)
	assert.Equal(t, types.Num(-2), *r.Conditions[1].Value2)
	assert.Equal(t, types.Text("above_market"), r.Conditions[2].Value)
	assert.Equal(t, true, r.Actions[0].Parameters["use_recommendation"])
}

func TestParse_EmptyFileGivesDefaults(t *testing.T) {
	p, err := Parse([]byte(""), "empty.cue", now)
	require.NoError(t, err)
	assert.True(t, p.Settings.IsEnabled)
	assert.Equal(t, 10, p.Settings.MaxDailyActions)
	assert.Empty(t, p.Rules)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `rules: [`},
		{"unknown condition", `rules: [{id: "x", name: "x", max_adjustment_percent: 1, actions: [], conditions: [{type: "weather", operator: "equals", value: 1}]}]`},
		{"between without upper bound", `rules: [{id: "x", name: "x", max_adjustment_percent: 1, actions: [], conditions: [{type: "price_change", operator: "between", value: 1}]}]`},
		{"negative ceiling", `rules: [{id: "x", name: "x", max_adjustment_percent: -1, actions: [], conditions: []}]`},
		{"missing ceiling", `rules: [{id: "x", name: "x", actions: [], conditions: []}]`},
		{"bad hours", `settings: business_hours: start: "9am"`},
		{"bad blackout", `settings: blackout_dates: ["Dec 25"]`},
		{"unknown field", `settings: max_actions: 3`},
		{"duplicate ids", `rules: [{id: "x", name: "a", max_adjustment_percent: 1, actions: [], conditions: []}, {id: "x", name: "b", max_adjustment_percent: 1, actions: [], conditions: []}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.cue", now)
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.cue")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o644))

	p, err := Load(path, now)
	require.NoError(t, err)
	assert.Len(t, p.Rules, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"), now)
	assert.Error(t, err)
}
