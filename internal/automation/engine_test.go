package automation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matthewbaird/rentpulse/internal/event"
	"github.com/matthewbaird/rentpulse/internal/store"
	"github.com/matthewbaird/rentpulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 10:00 in Chicago.
var t0 = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt event.DomainEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

type fixture struct {
	store   *store.MemoryStore
	clock   *ManualClock
	bus     *recordingPublisher
	manager *Manager
	engine  *Engine
}

func newFixture(t *testing.T, rules []types.AutomationRule) *fixture {
	t.Helper()
	f := &fixture{
		store: store.NewMemoryStore(),
		clock: NewManualClock(t0),
		bus:   &recordingPublisher{},
	}
	f.manager = NewManager(f.store, f.clock, nil)
	f.manager.SetPublisher(f.bus)
	f.engine = NewEngine(f.store, f.manager, f.clock, nil)
	f.engine.SetPublisher(f.bus)
	if rules == nil {
		rules = DefaultRules(t0)
	}
	require.NoError(t, f.engine.Bootstrap(context.Background(), rules, DefaultSettings(), false))
	return f
}

// staleUnit matches low-risk-reduction and nothing else in the default set.
func staleUnit(unitID string, pct float64) Evaluation {
	return Evaluation{
		Snapshot: types.UnitSnapshot{
			UnitID:         unitID,
			CurrentRent:    1000,
			DaysOnMarket:   40,
			MarketPosition: types.PositionAt,
		},
		Recommendation: types.PricingRecommendation{
			UnitID:            unitID,
			CurrentRent:       1000,
			SuggestedRent:     1000 + 10*pct,
			AdjustmentPercent: pct,
			Confidence:        0.85,
			Reasoning:         []string{"40 days on market penalty (-4.0%)"},
		},
	}
}

func TestEvaluateUnit_AutoApprovalExecutesInSameCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	actions, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-1", -4))
	require.NoError(t, err)
	require.Len(t, actions, 1)

	a := actions[0]
	assert.Equal(t, "low-risk-reduction", a.RuleID)
	assert.Equal(t, types.StatusExecuted, a.Status)
	assert.Equal(t, SystemActor, a.ApprovedBy)
	require.NotNil(t, a.ExecutedAt)
	assert.Equal(t, 960.0, a.RecommendedValue)
	assert.Equal(t, 1000.0, a.CurrentValue)
	assert.Equal(t, t0.Add(24*time.Hour), a.ExpiresAt)
	assert.Equal(t, "Automatically reduce prices for units on market 30+ days with high confidence. 40 days on market penalty (-4.0%)", a.Reasoning)
	require.Len(t, a.FollowUps, 1)
	assert.Equal(t, types.ActionSendNotification, a.FollowUps[0].Type)

	logs, err := f.manager.ActionHistory(ctx, "unit-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, types.TriggeredBySystem, logs[0].TriggeredBy)
	assert.Equal(t, 1000.0, logs[0].OldValue)
	assert.Equal(t, 960.0, logs[0].NewValue)

	rule, err := f.engine.Rule(ctx, "low-risk-reduction")
	require.NoError(t, err)
	assert.Equal(t, 1, rule.TriggerCount)

	assert.Equal(t, []string{
		event.TypeActionCreated,
		event.TypeActionApproved,
		event.TypeActionExecuted,
	}, f.bus.eventTypes())
}

func TestEvaluateUnit_RuleCeilingBlocksAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.AutomationRule{{
		ID:       "tight",
		Name:     "Tight ceiling",
		IsActive: true,
		Conditions: []types.AutomationCondition{
			{Type: types.ConditionDaysOnMarket, Operator: types.OpGreaterThan, Value: types.Num(0)},
		},
		Actions:              []types.AutomationAction{{Type: types.ActionAdjustPrice}},
		RiskLevel:            types.RiskLow,
		MaxAdjustmentPercent: 5,
	}})

	actions, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-1", -12))
	require.NoError(t, err)
	assert.Empty(t, actions)

	pending, err := f.manager.PendingActions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEvaluateUnit_GlobalCeiling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.AutomationRule{{
		ID:                   "wide",
		Name:                 "Wide ceiling",
		IsActive:             true,
		Actions:              []types.AutomationAction{{Type: types.ActionAdjustPrice}},
		RiskLevel:            types.RiskHigh,
		MaxAdjustmentPercent: 30,
	}})

	actions, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-1", -20))
	require.NoError(t, err)
	assert.Empty(t, actions, "default settings cap changes at 15 percent")
}

func TestEvaluateUnit_DisabledEngineReturnsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.engine.UpdateSettings(ctx, SettingsPatch{IsEnabled: ptr(false)})
	require.NoError(t, err)

	actions, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-1", -4))
	require.NoError(t, err)
	assert.NotNil(t, actions)
	assert.Empty(t, actions)
}

func TestEvaluateUnit_LargeChangeWaitsForApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	actions, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-1", -7))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.StatusPending, actions[0].Status)
}

func TestEvaluateUnit_NotAllowListedWaitsForApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.engine.UpdateSettings(ctx, SettingsPatch{AutoApprovalRules: ptr([]string{})})
	require.NoError(t, err)

	actions, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-1", -4))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.StatusPending, actions[0].Status)
}

func TestEvaluateUnit_AutoApprovalIgnoresScheduleSettings(t *testing.T) {
	tests := []struct {
		name  string
		at    time.Time
		patch SettingsPatch
	}{
		{"before business hours", time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), SettingsPatch{}},
		{"at closing time", time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC), SettingsPatch{}},
		{"blackout date", t0, SettingsPatch{BlackoutDates: ptr([]string{"2025-03-10"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, nil)
			_, err := f.engine.UpdateSettings(ctx, tt.patch)
			require.NoError(t, err)
			f.clock.Set(tt.at)

			actions, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-1", -4))
			require.NoError(t, err)
			require.Len(t, actions, 1)
			if actions[0].Status != types.StatusExecuted {
				t.Errorf("status = %s, want %s", actions[0].Status, types.StatusExecuted)
			}
		})
	}
}

func TestEvaluateUnit_DailyCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.engine.UpdateSettings(ctx, SettingsPatch{MaxDailyActions: ptr(1)})
	require.NoError(t, err)

	first, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-1", -4))
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, types.StatusExecuted, first[0].Status)

	second, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-2", -4))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, types.StatusPending, second[0].Status)

	// A new UTC day resets the cap.
	f.clock.Set(t0.Add(24 * time.Hour))
	third, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-3", -4))
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, types.StatusExecuted, third[0].Status)
}

func TestEvaluateUnit_DailyCapHoldsUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.engine.UpdateSettings(ctx, SettingsPatch{MaxDailyActions: ptr(1)})
	require.NoError(t, err)
	f.manager.SetApplier(PriceApplierFunc(func(context.Context, string, float64) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}))

	const units = 8
	var wg sync.WaitGroup
	statuses := make([]types.ActionStatus, units)
	errs := make([]error, units)
	for i := 0; i < units; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actions, err := f.engine.EvaluateUnit(ctx, staleUnit(fmt.Sprintf("u%d", i), -4))
			errs[i] = err
			if len(actions) == 1 {
				statuses[i] = actions[0].Status
			}
		}()
	}
	wg.Wait()

	counts := map[types.ActionStatus]int{}
	for i := range statuses {
		require.NoError(t, errs[i])
		counts[statuses[i]]++
	}
	assert.Equal(t, map[types.ActionStatus]int{
		types.StatusExecuted: 1,
		types.StatusPending:  units - 1,
	}, counts)

	logs, err := f.manager.ActionHistory(ctx, "", 0)
	require.NoError(t, err)
	if len(logs) != 1 {
		t.Errorf("log entries = %d, want 1", len(logs))
	}
}

func TestEvaluateUnit_DailyCapCountsHumanApprovals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.engine.UpdateSettings(ctx, SettingsPatch{MaxDailyActions: ptr(2)})
	require.NoError(t, err)

	first, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-1", -4))
	require.NoError(t, err)
	require.Equal(t, types.StatusExecuted, first[0].Status)

	large, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-2", -7))
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, large[0].Status)
	ok, err := f.manager.Approve(ctx, large[0].ID, "pm@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	third, err := f.engine.EvaluateUnit(ctx, staleUnit("unit-3", -4))
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, types.StatusPending, third[0].Status, "cap of two already used")
}

func TestEvaluateUnit_HighConfidenceOpportunityMatchesBelowMarket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	actions, err := f.engine.EvaluateUnit(ctx, Evaluation{
		Snapshot: types.UnitSnapshot{
			UnitID:         "unit-hot",
			CurrentRent:    1000,
			DaysOnMarket:   5,
			MarketPosition: types.PositionBelow,
		},
		Recommendation: types.PricingRecommendation{
			UnitID:            "unit-hot",
			CurrentRent:       1000,
			SuggestedRent:     1030,
			AdjustmentPercent: 3,
			Confidence:        0.95,
		},
	})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "high-confidence-opportunity", actions[0].RuleID)
	// Not allow-listed, so it waits for a human.
	assert.Equal(t, types.StatusPending, actions[0].Status)
}

func TestEvaluateUnit_RuleWithoutPriceActionProducesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	in := staleUnit("unit-1", -12)
	in.Snapshot.MarketPosition = types.PositionAbove
	in.Competitor = &types.CompetitorContext{MaxPriceChange: 8}

	actions, err := f.engine.EvaluateUnit(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, actions, "competitor-response only schedules a review")
}

func TestEvaluateUnit_NeverExceedsRuleCeiling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	rules, err := f.engine.Rules(ctx)
	require.NoError(t, err)
	ceilings := map[string]float64{}
	for _, r := range rules {
		ceilings[r.ID] = r.MaxAdjustmentPercent
	}

	for i, pct := range []float64{-3, -4.5, -8, -8.01, -9, -10, -14} {
		in := staleUnit("unit-"+string(rune('a'+i)), pct)
		actions, err := f.engine.EvaluateUnit(ctx, in)
		require.NoError(t, err)
		for _, a := range actions {
			assert.LessOrEqual(t, -pct, ceilings[a.RuleID], "rule %s fired at %v%%", a.RuleID, pct)
		}
	}
}

func TestEngine_RuleCRUD(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []types.AutomationRule{})

	created, err := f.engine.AddRule(ctx, types.AutomationRule{
		Name:                 "Weekend bump",
		RiskLevel:            types.RiskMedium,
		MaxAdjustmentPercent: 3,
		TriggerCount:         99,
	}, "ops@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ops@example.com", created.CreatedBy)
	assert.Equal(t, t0, created.CreatedAt)
	assert.Zero(t, created.TriggerCount)

	updated, err := f.engine.UpdateRule(ctx, created.ID, RulePatch{
		IsActive:             ptr(true),
		MaxAdjustmentPercent: ptr(4.0),
	})
	require.NoError(t, err)
	assert.True(t, updated.IsActive)
	assert.Equal(t, 4.0, updated.MaxAdjustmentPercent)
	assert.Equal(t, "Weekend bump", updated.Name)

	_, err = f.engine.UpdateRule(ctx, created.ID, RulePatch{Name: ptr(" ")})
	assert.ErrorIs(t, err, ErrInvalidRule)

	require.NoError(t, f.engine.DeleteRule(ctx, created.ID))
	assert.ErrorIs(t, f.engine.DeleteRule(ctx, created.ID), store.ErrNotFound)
	_, err = f.engine.UpdateRule(ctx, created.ID, RulePatch{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, []string{
		event.TypeRuleChanged,
		event.TypeRuleChanged,
		event.TypeRuleChanged,
	}, f.bus.eventTypes())
}

func TestEngine_AddRuleRejectsBadConditions(t *testing.T) {
	f := newFixture(t, []types.AutomationRule{})
	_, err := f.engine.AddRule(context.Background(), types.AutomationRule{
		Name:      "Broken",
		RiskLevel: types.RiskLow,
		Conditions: []types.AutomationCondition{
			{Type: types.ConditionPriceChange, Operator: types.OpBetween, Value: types.Num(-10)},
			{Type: types.ConditionPriceChange, Operator: "around", Value: types.Num(1)},
		},
		Actions: []types.AutomationAction{{Type: "call_landlord"}},
	}, "")
	require.ErrorIs(t, err, ErrInvalidRule)
	assert.Contains(t, err.Error(), "between needs value2")
	assert.Contains(t, err.Error(), `unknown operator "around"`)
	assert.Contains(t, err.Error(), `unknown type "call_landlord"`)
}

func TestEngine_SettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	s, err := f.engine.UpdateSettings(ctx, SettingsPatch{
		RequireApprovalAbove: ptr(3.0),
		BusinessHours:        &types.BusinessHours{Enabled: true, Start: "08:00", End: "18:00", Timezone: "America/New_York"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, s.RequireApprovalAbove)
	assert.Equal(t, 10, s.MaxDailyActions, "unpatched fields keep their value")

	_, err = f.engine.UpdateSettings(ctx, SettingsPatch{
		BusinessHours: &types.BusinessHours{Enabled: true, Start: "8am", End: "18:00", Timezone: "Mars/Olympus"},
	})
	require.ErrorIs(t, err, ErrInvalidSettings)
	assert.Equal(t, "America/New_York", f.engine.Settings().BusinessHours.Timezone)

	// A fresh engine over the same store picks up the saved settings.
	other := NewEngine(f.store, f.manager, f.clock, nil)
	require.NoError(t, other.Bootstrap(ctx, nil, DefaultSettings(), false))
	assert.Equal(t, 3.0, other.Settings().RequireApprovalAbove)
}

func TestEngine_BootstrapKeepsExistingRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.engine.DeleteRule(ctx, "seasonal-adjustment"))

	require.NoError(t, f.engine.Bootstrap(ctx, DefaultRules(t0), DefaultSettings(), false))
	rules, err := f.engine.Rules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 3)

	require.NoError(t, f.engine.Bootstrap(ctx, DefaultRules(t0), DefaultSettings(), true))
	rules, err = f.engine.Rules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 4)
}
