package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/rentpulse/internal/automation"
	"github.com/matthewbaird/rentpulse/internal/handler"
	"github.com/matthewbaird/rentpulse/internal/snapshot"
	"github.com/matthewbaird/rentpulse/internal/store"
	"github.com/matthewbaird/rentpulse/internal/types"
	"github.com/matthewbaird/rentpulse/internal/worker"
)

// 10:00 in Chicago.
var t0 = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

// reviewRule fires on anything listed for two weeks and always waits for a
// human.
func reviewRule() types.AutomationRule {
	return types.AutomationRule{
		ID:       "two-week-review",
		Name:     "Two week review",
		IsActive: true,
		Conditions: []types.AutomationCondition{
			{Type: types.ConditionDaysOnMarket, Operator: types.OpGreaterThan, Value: types.Num(14)},
		},
		Actions:              []types.AutomationAction{{Type: types.ActionAdjustPrice, Parameters: map[string]any{"use_recommendation": true}}},
		RiskLevel:            types.RiskMedium,
		MaxAdjustmentPercent: 10,
		RequiresApproval:     true,
		CreatedBy:            "system",
		CreatedAt:            t0,
	}
}

// listedUnit scores to 960 (-4%): 20 days on market, nothing else.
func listedUnit(id string) types.UnitSnapshot {
	return types.UnitSnapshot{
		UnitID:            id,
		Zip:               "78701",
		CurrentRent:       1000,
		DaysOnMarket:      20,
		MarketVelocity:    types.VelocityNormal,
		MarketPosition:    types.PositionAt,
		ConcessionUrgency: types.UrgencyNone,
		RentTrend:         types.TrendStable,
		LeaseProbability:  0.5,
		ConfidenceScore:   0.8,
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	st := store.NewMemoryStore()
	clock := automation.NewManualClock(t0)
	mgr := automation.NewManager(st, clock, nil)
	eng := automation.NewEngine(st, mgr, clock, nil)
	require.NoError(t, eng.Bootstrap(context.Background(), []types.AutomationRule{reviewRule()}, automation.DefaultSettings(), false))

	snaps := snapshot.NewMemorySource(listedUnit("unit-7"), listedUnit("unit-8"))
	return NewRouter(Config{
		Pricing:    handler.NewPricingHandler(),
		Automation: handler.NewAutomationHandler(eng, mgr, worker.NewBatchEvaluator(eng, 2), snaps, nil),
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any, actor string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecommendations(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/v1/recommendations", handler.UnitInput{Snapshot: listedUnit("u1")}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[types.PricingRecommendation](t, rec)
	assert.Equal(t, 960.0, got.SuggestedRent)
	assert.Equal(t, -4.0, got.AdjustmentPercent)

	bad := listedUnit("u2")
	bad.CurrentRent = 0
	rec = do(t, h, http.MethodPost, "/v1/recommendations", handler.UnitInput{Snapshot: bad}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "current_rent")

	rec = do(t, h, http.MethodPost, "/v1/recommendations", map[string]any{"snapshot": map[string]any{}, "surprise": 1}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenterEndpoints(t *testing.T) {
	h := newTestRouter(t)
	req := handler.UnitsRequest{Units: []handler.UnitInput{{Snapshot: listedUnit("a")}, {Snapshot: listedUnit("b")}}}

	rec := do(t, h, http.MethodPost, "/v1/renter/deals", req, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	deals := decode[map[string][]types.RenterDealIntelligence](t, rec)
	assert.Len(t, deals["deals"], 2)

	rec = do(t, h, http.MethodPost, "/v1/renter/summary", req, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[handler.RenterSummaryResponse](t, rec)
	assert.Equal(t, 2, summary.Summary.TotalUnits)

	rec = do(t, h, http.MethodPost, "/v1/renter/summary", handler.UnitsRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "NO_UNITS")
}

func TestPortfolioAnalysis(t *testing.T) {
	h := newTestRouter(t)
	req := handler.UnitsRequest{Units: []handler.UnitInput{{Snapshot: listedUnit("a")}, {Snapshot: listedUnit("b")}}}

	rec := do(t, h, http.MethodPost, "/v1/portfolio/analysis", req, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[handler.PortfolioResponse](t, rec)
	assert.Equal(t, 2, got.Summary.TotalUnits)
	assert.NotEmpty(t, got.Insights)
}

func TestEvaluateThenApprove(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/v1/evaluations", handler.EvaluateRequest{UnitID: "unit-7"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	eval := decode[handler.EvaluateResponse](t, rec)
	require.Len(t, eval.Actions, 1)
	a := eval.Actions[0]
	assert.Equal(t, types.StatusPending, a.Status)
	assert.Equal(t, 960.0, a.RecommendedValue)

	rec = do(t, h, http.MethodGet, "/v1/actions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]types.PendingAction](t, rec)["actions"], 1)

	rec = do(t, h, http.MethodPost, "/v1/actions/"+a.ID+"/approve", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "actor header required")

	rec = do(t, h, http.MethodPost, "/v1/actions/"+a.ID+"/approve", nil, "maria")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[types.PendingAction](t, rec)
	assert.Equal(t, types.StatusExecuted, done.Status)
	assert.Equal(t, "maria", done.ApprovedBy)

	rec = do(t, h, http.MethodPost, "/v1/actions/"+a.ID+"/reject", nil, "maria")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/actions/nope/approve", nil, "maria")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/history?unit_id=unit-7", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[map[string][]types.AutomationLog](t, rec)["history"]
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)

	rec = do(t, h, http.MethodGet, "/v1/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[types.AutomationStats](t, rec)
	assert.Equal(t, 1, stats.ExecutedToday)
	assert.Equal(t, 0, stats.PendingActions)
}

func TestEvaluate_UnknownUnit(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodPost, "/v1/evaluations", handler.EvaluateRequest{UnitID: "ghost"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, newTestRouter(t), http.MethodPost, "/v1/evaluations", handler.EvaluateRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateBatchByZip(t *testing.T) {
	h := newTestRouter(t)
	rec := do(t, h, http.MethodPost, "/v1/evaluations/batch", handler.BatchRequest{Zip: "78701"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode[map[string][]worker.BatchResult](t, rec)["results"]
	require.Len(t, results, 2)
	assert.Equal(t, "unit-7", results[0].UnitID)
	assert.Len(t, results[1].Actions, 1)

	rec = do(t, h, http.MethodPost, "/v1/evaluations/batch", handler.BatchRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRulesCRUD(t *testing.T) {
	h := newTestRouter(t)

	rule := map[string]any{
		"name": "Above market trim",
		"conditions": []map[string]any{
			{"type": "market_position", "operator": "equals", "value": "above_market"},
		},
		"actions":                []map[string]any{{"type": "adjust_price"}},
		"risk_level":             "low",
		"max_adjustment_percent": 6,
		"is_active":              true,
	}
	rec := do(t, h, http.MethodPost, "/v1/rules", rule, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/rules", rule, "ops")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[types.AutomationRule](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ops", created.CreatedBy)

	rec = do(t, h, http.MethodPatch, "/v1/rules/"+created.ID, map[string]any{"is_active": false}, "ops")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[types.AutomationRule](t, rec).IsActive)

	rec = do(t, h, http.MethodPatch, "/v1/rules/"+created.ID, map[string]any{"max_adjustment_percent": -1}, "ops")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/rules", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]types.AutomationRule](t, rec)["rules"], 2)

	rec = do(t, h, http.MethodDelete, "/v1/rules/"+created.ID, nil, "ops")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/v1/rules/"+created.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettings(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/v1/settings", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, decode[types.AutomationSettings](t, rec).MaxDailyActions)

	rec = do(t, h, http.MethodPatch, "/v1/settings", map[string]any{"max_daily_actions": 3}, "ops")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decode[types.AutomationSettings](t, rec).MaxDailyActions)

	rec = do(t, h, http.MethodPatch, "/v1/settings", map[string]any{"blackout_dates": []string{"tomorrow"}}, "ops")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListActions_RejectsUnknownStatus(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodGet, "/v1/actions?status=maybe", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpireActions(t *testing.T) {
	rec := do(t, newTestRouter(t), http.MethodPost, "/v1/actions/expire", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[map[string]int](t, rec)["expired"])
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	h := handler.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
