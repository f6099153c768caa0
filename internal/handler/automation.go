package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/rentpulse/internal/automation"
	"github.com/matthewbaird/rentpulse/internal/pricing"
	"github.com/matthewbaird/rentpulse/internal/snapshot"
	"github.com/matthewbaird/rentpulse/internal/types"
	"github.com/matthewbaird/rentpulse/internal/worker"
)

// AutomationHandler exposes the rule engine and the action lifecycle.
type AutomationHandler struct {
	engine    *automation.Engine
	actions   *automation.Manager
	batch     *worker.BatchEvaluator
	snapshots snapshot.Source
	logger    *slog.Logger
}

func NewAutomationHandler(engine *automation.Engine, actions *automation.Manager, batch *worker.BatchEvaluator, snapshots snapshot.Source, logger *slog.Logger) *AutomationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutomationHandler{
		engine:    engine,
		actions:   actions,
		batch:     batch,
		snapshots: snapshots,
		logger:    logger.With("component", "automation_api"),
	}
}

// EvaluateRequest asks for one unit to be scored and run through the rules.
// Either Snapshot or UnitID must be set; UnitID is looked up in the snapshot
// source.
type EvaluateRequest struct {
	UnitID     string                   `json:"unit_id,omitempty"`
	Snapshot   *types.UnitSnapshot      `json:"snapshot,omitempty"`
	Market     *types.MarketContext     `json:"market,omitempty"`
	Competitor *types.CompetitorContext `json:"competitor,omitempty"`
	Seasonal   *types.SeasonalContext   `json:"seasonal,omitempty"`
}

// EvaluateResponse is the recommendation plus whatever actions fired.
type EvaluateResponse struct {
	Recommendation types.PricingRecommendation `json:"recommendation"`
	Actions        []types.PendingAction       `json:"actions"`
}

// BatchRequest evaluates Items, or every snapshot matching Zip when Items is
// empty.
type BatchRequest struct {
	Items []worker.BatchItem `json:"items,omitempty"`
	Zip   string             `json:"zip,omitempty"`
	Limit int                `json:"limit,omitempty"`
}

// Evaluate handles POST /v1/evaluations.
func (h *AutomationHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var snap types.UnitSnapshot
	switch {
	case req.Snapshot != nil:
		snap = *req.Snapshot
	case req.UnitID != "" && h.snapshots != nil:
		s, err := h.snapshots.Get(r.Context(), req.UnitID)
		if err != nil {
			errorToHTTP(w, err)
			return
		}
		snap = s
	default:
		writeError(w, http.StatusBadRequest, "MISSING_SNAPSHOT", "snapshot or unit_id is required")
		return
	}
	if err := pricing.Validate(snap); err != nil {
		errorToHTTP(w, err)
		return
	}

	rec := pricing.GenerateRecommendation(snap, req.Market)
	actions, err := h.engine.EvaluateUnit(r.Context(), automation.Evaluation{
		Snapshot:       snap,
		Recommendation: rec,
		Competitor:     req.Competitor,
		Seasonal:       req.Seasonal,
	})
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{Recommendation: rec, Actions: actions})
}

// EvaluateBatch handles POST /v1/evaluations/batch.
func (h *AutomationHandler) EvaluateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	items := req.Items
	if len(items) == 0 {
		if req.Zip == "" || h.snapshots == nil {
			writeError(w, http.StatusBadRequest, "MISSING_ITEMS", "items or zip is required")
			return
		}
		snaps, err := h.snapshots.List(r.Context(), snapshot.Query{Zip: req.Zip, Limit: req.Limit})
		if err != nil {
			errorToHTTP(w, err)
			return
		}
		for _, s := range snaps {
			items = append(items, worker.BatchItem{Snapshot: s})
		}
	}

	results, err := h.batch.Run(r.Context(), items)
	if err != nil {
		// Units before the failure may already have executed, so report them.
		h.logger.Error("batch aborted", "units", len(items), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "batch aborted",
			"code":    "BATCH_ABORTED",
			"results": results,
		})
		return
	}
	h.logger.Info("batch evaluated", "units", len(items))
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ── Rules ───────────────────────────────────────────────────────────────────

// ListRules handles GET /v1/rules.
func (h *AutomationHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.engine.Rules(r.Context())
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// GetRule handles GET /v1/rules/{id}.
func (h *AutomationHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.engine.Rule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /v1/rules.
func (h *AutomationHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var rule types.AutomationRule
	if !decodeJSON(w, r, &rule) {
		return
	}
	created, err := h.engine.AddRule(r.Context(), rule, audit.Actor)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UpdateRule handles PATCH /v1/rules/{id}.
func (h *AutomationHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	if _, ok := parseAuditContext(w, r); !ok {
		return
	}
	var patch automation.RulePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	updated, err := h.engine.UpdateRule(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRule handles DELETE /v1/rules/{id}.
func (h *AutomationHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if _, ok := parseAuditContext(w, r); !ok {
		return
	}
	if err := h.engine.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		errorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Settings ────────────────────────────────────────────────────────────────

// GetSettings handles GET /v1/settings.
func (h *AutomationHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Settings())
}

// UpdateSettings handles PATCH /v1/settings.
func (h *AutomationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := parseAuditContext(w, r); !ok {
		return
	}
	var patch automation.SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	s, err := h.engine.UpdateSettings(r.Context(), patch)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ── Actions ─────────────────────────────────────────────────────────────────

// ListActions handles GET /v1/actions. The status query parameter defaults to
// pending; "all" lists every action.
func (h *AutomationHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	status := types.ActionStatus(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = types.StatusPending
	case "all":
		status = ""
	case types.StatusPending, types.StatusApproved, types.StatusRejected, types.StatusExecuted, types.StatusExpired:
	default:
		writeError(w, http.StatusBadRequest, "INVALID_STATUS", "unknown status: "+string(status))
		return
	}
	actions, err := h.actions.PendingActions(r.Context(), status)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// ApproveAction handles POST /v1/actions/{id}/approve.
func (h *AutomationHandler) ApproveAction(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.actions.Approve, types.StatusApproved)
}

// RejectAction handles POST /v1/actions/{id}/reject.
func (h *AutomationHandler) RejectAction(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.actions.Reject, types.StatusRejected)
}

// decide runs a human decision and reports the resulting action. A decision
// on an action that is no longer pending is a conflict.
func (h *AutomationHandler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, by string) (bool, error), target types.ActionStatus) {
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	applied, err := fn(r.Context(), id, audit.Actor)
	if err != nil && !applied {
		errorToHTTP(w, err)
		return
	}
	if err != nil {
		h.logger.Error("action decided but follow-up failed", "action_id", id, "error", err)
	}
	a, getErr := h.actions.Action(r.Context(), id)
	if getErr != nil {
		errorToHTTP(w, getErr)
		return
	}
	if !applied {
		if cause := automation.ValidateTransition(a.Status, target); cause != nil {
			writeError(w, http.StatusConflict, "INVALID_TRANSITION", cause.Error())
			return
		}
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", "action is no longer pending")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ExpireActions handles POST /v1/actions/expire.
func (h *AutomationHandler) ExpireActions(w http.ResponseWriter, r *http.Request) {
	n, err := h.actions.ExpireStale(r.Context())
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}

// History handles GET /v1/history.
func (h *AutomationHandler) History(w http.ResponseWriter, r *http.Request) {
	logs, err := h.actions.ActionHistory(r.Context(), r.URL.Query().Get("unit_id"), parseLimit(r))
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": logs})
}

// Stats handles GET /v1/stats.
func (h *AutomationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.actions.Stats(r.Context())
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
