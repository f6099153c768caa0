package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matthewbaird/rentpulse/internal/event"
	"github.com/matthewbaird/rentpulse/internal/store"
	"github.com/matthewbaird/rentpulse/internal/types"
)

// PriceApplier pushes an approved rent to whatever system lists the unit.
type PriceApplier interface {
	ApplyPrice(ctx context.Context, unitID string, newRent float64) error
}

// PriceApplierFunc adapts a plain function to the PriceApplier interface.
type PriceApplierFunc func(ctx context.Context, unitID string, newRent float64) error

func (f PriceApplierFunc) ApplyPrice(ctx context.Context, unitID string, newRent float64) error {
	return f(ctx, unitID, newRent)
}

type nopApplier struct{}

func (nopApplier) ApplyPrice(context.Context, string, float64) error { return nil }

// logActionPriceAdjustment is the AutomationLog action label for executions.
const logActionPriceAdjustment = "price_adjustment"

// Manager drives pending actions through their lifecycle. Every status change
// is a compare-and-set in the store, so concurrent approve, reject and expire
// calls on one action have exactly one winner.
type Manager struct {
	store    store.Store
	clock    Clock
	recorder *event.ExecutionRecorder
	applier  PriceApplier
	logger   *slog.Logger

	// Executions counted against the daily cap. used is seeded from the log
	// on the first use of each UTC day and only changes under capMu.
	capMu   sync.Mutex
	capDay  time.Time
	capUsed int
}

// NewManager creates a Manager. A nil clock uses the system clock and a nil
// logger uses slog.Default().
func NewManager(st store.Store, clock Clock, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    st,
		clock:    clock,
		recorder: event.NewExecutionRecorder(st),
		applier:  nopApplier{},
		logger:   logger.With("component", "actions"),
	}
}

// SetApplier sets the collaborator that applies approved prices.
func (m *Manager) SetApplier(a PriceApplier) {
	if a == nil {
		a = nopApplier{}
	}
	m.applier = a
}

// SetPublisher attaches the event bus.
func (m *Manager) SetPublisher(p event.Publisher) {
	m.recorder.SetPublisher(p)
}

// Submit persists a new pending action and announces it.
func (m *Manager) Submit(ctx context.Context, a types.PendingAction, adjustmentPercent float64) error {
	if err := m.store.CreateAction(ctx, a); err != nil {
		return fmt.Errorf("creating action for unit %s: %w", a.UnitID, err)
	}
	m.recorder.Publish(ctx, event.NewActionCreated(a.CreatedAt, event.ActionCreatedPayload{
		ActionID:          a.ID,
		UnitID:            a.UnitID,
		RuleID:            a.RuleID,
		RuleName:          a.RuleName,
		CurrentValue:      a.CurrentValue,
		RecommendedValue:  a.RecommendedValue,
		AdjustmentPercent: adjustmentPercent,
		RiskLevel:         a.RiskLevel,
		ExpiresAt:         a.ExpiresAt,
	}))
	return nil
}

// Approve moves a pending action to approved and executes it. It reports
// false when the action is not pending. Unknown ids return store.ErrNotFound.
func (m *Manager) Approve(ctx context.Context, id, approvedBy string) (bool, error) {
	return m.approve(ctx, id, approvedBy, types.TriggeredByUser)
}

func (m *Manager) approve(ctx context.Context, id, approvedBy string, by types.TriggeredBy) (bool, error) {
	now := m.clock.Now()
	a, ok, err := m.store.TransitionAction(ctx, id, types.StatusPending, func(a *types.PendingAction) {
		a.Status = types.StatusApproved
		a.ApprovedBy = approvedBy
		a.ApprovedAt = &now
	})
	if err != nil {
		return false, fmt.Errorf("approving action %s: %w", id, err)
	}
	if !ok {
		m.logger.Debug("approve ignored", "action_id", id,
			"reason", ValidateTransition(a.Status, types.StatusApproved).Error())
		return false, nil
	}
	if by == types.TriggeredByUser {
		if err := m.countExecution(ctx, now); err != nil {
			m.logger.Warn("daily cap not updated", "action_id", id, "error", err)
		}
	}
	m.recorder.Publish(ctx, event.NewActionApproved(now, event.ActionDecidedPayload{
		ActionID:  a.ID,
		UnitID:    a.UnitID,
		RuleID:    a.RuleID,
		DecidedBy: approvedBy,
	}))

	if err := m.execute(ctx, a, by); err != nil {
		return true, err
	}
	return true, nil
}

// execute applies the approved price and records the outcome. A failed apply
// still ends in executed; the log entry carries the failure.
func (m *Manager) execute(ctx context.Context, a types.PendingAction, by types.TriggeredBy) error {
	applyErr := m.apply(ctx, a)
	at := m.clock.Now()

	_, ok, err := m.store.TransitionAction(ctx, a.ID, types.StatusApproved, func(x *types.PendingAction) {
		x.Status = types.StatusExecuted
		x.ExecutedAt = &at
	})
	if err != nil {
		return fmt.Errorf("marking action %s executed: %w", a.ID, err)
	}
	if !ok {
		m.logger.Warn("action left approved state before execution finished", "action_id", a.ID)
		return nil
	}

	entry := types.AutomationLog{
		ID:          uuid.New().String(),
		Timestamp:   at,
		UnitID:      a.UnitID,
		RuleID:      a.RuleID,
		ActionID:    a.ID,
		Action:      logActionPriceAdjustment,
		OldValue:    a.CurrentValue,
		NewValue:    a.RecommendedValue,
		Success:     applyErr == nil,
		TriggeredBy: by,
	}
	if applyErr != nil {
		entry.Error = applyErr.Error()
		m.logger.Error("price update failed", "action_id", a.ID, "unit_id", a.UnitID, "error", applyErr)
	}
	evt := event.NewActionExecuted(at, event.ActionExecutedPayload{
		ActionID:    a.ID,
		UnitID:      a.UnitID,
		RuleID:      a.RuleID,
		RuleName:    a.RuleName,
		OldValue:    a.CurrentValue,
		NewValue:    a.RecommendedValue,
		Reason:      a.Reasoning,
		Success:     entry.Success,
		Error:       entry.Error,
		TriggeredBy: by,
	})
	if err := m.recorder.Record(ctx, entry, evt); err != nil {
		return fmt.Errorf("logging execution of action %s: %w", a.ID, err)
	}
	if applyErr != nil {
		return nil
	}

	if err := m.store.RecordTrigger(ctx, a.RuleID, at); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.logger.Info("rule deleted before its action executed", "rule_id", a.RuleID, "action_id", a.ID)
			return nil
		}
		return fmt.Errorf("recording trigger for rule %s: %w", a.RuleID, err)
	}
	m.logger.Info("price updated", "unit_id", a.UnitID, "old", a.CurrentValue, "new", a.RecommendedValue, "rule_id", a.RuleID)
	return nil
}

func (m *Manager) apply(ctx context.Context, a types.PendingAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("price applier panicked: %v", r)
		}
	}()
	return m.applier.ApplyPrice(ctx, a.UnitID, a.RecommendedValue)
}

// Reject moves a pending action to rejected. It reports false when the action
// is not pending.
func (m *Manager) Reject(ctx context.Context, id, rejectedBy string) (bool, error) {
	now := m.clock.Now()
	a, ok, err := m.store.TransitionAction(ctx, id, types.StatusPending, func(a *types.PendingAction) {
		a.Status = types.StatusRejected
		a.RejectedBy = rejectedBy
		a.RejectedAt = &now
	})
	if err != nil {
		return false, fmt.Errorf("rejecting action %s: %w", id, err)
	}
	if !ok {
		m.logger.Debug("reject ignored", "action_id", id,
			"reason", ValidateTransition(a.Status, types.StatusRejected).Error())
		return false, nil
	}
	m.recorder.Publish(ctx, event.NewActionRejected(now, event.ActionDecidedPayload{
		ActionID:  a.ID,
		UnitID:    a.UnitID,
		RuleID:    a.RuleID,
		DecidedBy: rejectedBy,
	}))
	return true, nil
}

// ExpireStale marks every pending action whose expiry has passed as expired
// and returns how many it changed. Repeated calls are harmless.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	now := m.clock.Now()
	pending, err := m.store.ListActions(ctx, types.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("listing pending actions: %w", err)
	}

	expired := 0
	for _, a := range pending {
		if !now.After(a.ExpiresAt) {
			continue
		}
		_, ok, err := m.store.TransitionAction(ctx, a.ID, types.StatusPending, func(x *types.PendingAction) {
			x.Status = types.StatusExpired
		})
		if err != nil {
			return expired, fmt.Errorf("expiring action %s: %w", a.ID, err)
		}
		if !ok {
			continue
		}
		expired++
		m.recorder.Publish(ctx, event.NewActionExpired(now, event.ActionExpiredPayload{
			ActionID:  a.ID,
			UnitID:    a.UnitID,
			RuleID:    a.RuleID,
			ExpiresAt: a.ExpiresAt,
		}))
	}
	if expired > 0 {
		m.logger.Info("expired stale actions", "count", expired)
	}
	return expired, nil
}

// PendingActions lists actions newest-first. An empty status lists all.
func (m *Manager) PendingActions(ctx context.Context, status types.ActionStatus) ([]types.PendingAction, error) {
	return m.store.ListActions(ctx, status)
}

// Action returns one action by id.
func (m *Manager) Action(ctx context.Context, id string) (types.PendingAction, error) {
	return m.store.GetAction(ctx, id)
}

// ActionHistory lists execution log entries newest-first, optionally for one
// unit. A non-positive limit means store.DefaultLogLimit.
func (m *Manager) ActionHistory(ctx context.Context, unitID string, limit int) ([]types.AutomationLog, error) {
	return m.store.ListLogs(ctx, store.LogQuery{UnitID: unitID, Limit: limit})
}

// executedSince counts log entries at or after since.
func (m *Manager) executedSince(ctx context.Context, since time.Time) (total, succeeded int, err error) {
	logs, err := m.store.ListLogs(ctx, store.LogQuery{Since: &since, Limit: math.MaxInt32})
	if err != nil {
		return 0, 0, fmt.Errorf("listing logs: %w", err)
	}
	for _, l := range logs {
		if l.Success {
			succeeded++
		}
	}
	return len(logs), succeeded, nil
}

// reserveDailySlot claims one of today's limit executions. Reservations are
// serialized so concurrent evaluations cannot overshoot the cap.
func (m *Manager) reserveDailySlot(ctx context.Context, limit int, now time.Time) (bool, error) {
	m.capMu.Lock()
	defer m.capMu.Unlock()
	if err := m.syncCapDay(ctx, now); err != nil {
		return false, err
	}
	if m.capUsed >= limit {
		return false, nil
	}
	m.capUsed++
	return true, nil
}

// releaseDailySlot returns a slot whose approval did not go through.
func (m *Manager) releaseDailySlot(now time.Time) {
	m.capMu.Lock()
	defer m.capMu.Unlock()
	if m.capDay.Equal(startOfDayUTC(now)) && m.capUsed > 0 {
		m.capUsed--
	}
}

// countExecution charges a human approval to today's cap.
func (m *Manager) countExecution(ctx context.Context, now time.Time) error {
	m.capMu.Lock()
	defer m.capMu.Unlock()
	if err := m.syncCapDay(ctx, now); err != nil {
		return err
	}
	m.capUsed++
	return nil
}

// syncCapDay reseeds the counter from the log when the UTC day changes.
// Callers hold capMu.
func (m *Manager) syncCapDay(ctx context.Context, now time.Time) error {
	day := startOfDayUTC(now)
	if m.capDay.Equal(day) {
		return nil
	}
	total, _, err := m.executedSince(ctx, day)
	if err != nil {
		return err
	}
	m.capDay, m.capUsed = day, total
	return nil
}

// Stats rolls up rules, pending actions and today's executions. The success
// rate is a percentage and is 100 when nothing ran today.
func (m *Manager) Stats(ctx context.Context) (types.AutomationStats, error) {
	rules, err := m.store.ListRules(ctx)
	if err != nil {
		return types.AutomationStats{}, fmt.Errorf("listing rules: %w", err)
	}
	pending, err := m.store.ListActions(ctx, types.StatusPending)
	if err != nil {
		return types.AutomationStats{}, fmt.Errorf("listing pending actions: %w", err)
	}
	total, succeeded, err := m.executedSince(ctx, startOfDayUTC(m.clock.Now()))
	if err != nil {
		return types.AutomationStats{}, err
	}

	stats := types.AutomationStats{
		TotalRules:     len(rules),
		PendingActions: len(pending),
		ExecutedToday:  total,
		SuccessRate:    100,
	}
	for _, r := range rules {
		if r.IsActive {
			stats.ActiveRules++
		}
	}
	if total > 0 {
		stats.SuccessRate = math.Round(float64(succeeded)/float64(total)*100*100) / 100
	}
	return stats, nil
}
