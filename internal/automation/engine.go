// Package automation evaluates pricing recommendations against operator rules
// and manages the pending actions those rules produce.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matthewbaird/rentpulse/internal/event"
	"github.com/matthewbaird/rentpulse/internal/store"
	"github.com/matthewbaird/rentpulse/internal/types"
)

// ActionTTL is how long a pending action waits for a decision.
const ActionTTL = 24 * time.Hour

// SystemActor approves actions on the engine's own authority.
const SystemActor = "system"

// Evaluation is one unit's input to the rule engine. Competitor and Seasonal
// are optional; absent context reads as zero.
type Evaluation struct {
	Snapshot       types.UnitSnapshot          `json:"snapshot"`
	Recommendation types.PricingRecommendation `json:"recommendation"`
	Competitor     *types.CompetitorContext    `json:"competitor,omitempty"`
	Seasonal       *types.SeasonalContext      `json:"seasonal,omitempty"`
}

// Engine evaluates units against the rule set. Settings are cached in memory;
// rules live in the store. Rule and settings writes are serialized against
// evaluation by mu.
type Engine struct {
	mu       sync.RWMutex
	settings types.AutomationSettings

	store   store.Store
	actions *Manager
	clock   Clock
	bus     event.Publisher
	logger  *slog.Logger
}

// NewEngine creates an Engine starting from DefaultSettings. Call Bootstrap to
// load persisted settings.
func NewEngine(st store.Store, actions *Manager, clock Clock, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		settings: DefaultSettings(),
		store:    st,
		actions:  actions,
		clock:    clock,
		bus:      event.NopPublisher{},
		logger:   logger.With("component", "rules"),
	}
}

// SetPublisher attaches the event bus for rule and settings changes.
func (e *Engine) SetPublisher(p event.Publisher) {
	if p == nil {
		p = event.NopPublisher{}
	}
	e.bus = p
}

// Bootstrap loads persisted settings and seeds the store. Rules and settings
// are written when the store has none, or always when overwrite is set.
func (e *Engine) Bootstrap(ctx context.Context, rules []types.AutomationRule, settings types.AutomationSettings, overwrite bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("listing rules: %w", err)
	}
	if overwrite || len(existing) == 0 {
		for _, r := range rules {
			if err := validateRule(r); err != nil {
				return fmt.Errorf("rule %s: %w", r.ID, err)
			}
			if err := e.store.PutRule(ctx, r); err != nil {
				return fmt.Errorf("seeding rule %s: %w", r.ID, err)
			}
		}
		e.logger.Info("rules installed", "count", len(rules))
	}

	saved, ok, err := e.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if ok && !overwrite {
		e.settings = saved
		return nil
	}
	if err := validateSettings(settings); err != nil {
		return err
	}
	if err := e.store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	e.settings = settings
	return nil
}

// EvaluateUnit runs every active rule against one unit and returns the
// actions created, each in its final state for this call (auto-approved
// actions come back executed). A disabled engine returns no actions.
func (e *Engine) EvaluateUnit(ctx context.Context, in Evaluation) ([]types.PendingAction, error) {
	e.mu.RLock()
	settings := cloneSettings(e.settings)
	if !settings.IsEnabled {
		e.mu.RUnlock()
		return []types.PendingAction{}, nil
	}
	rules, err := e.store.ListRules(ctx)
	e.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}

	input := evalInput{
		snapshot:   in.Snapshot,
		rec:        in.Recommendation,
		competitor: in.Competitor,
		seasonal:   in.Seasonal,
	}
	magnitude := math.Abs(in.Recommendation.AdjustmentPercent)

	out := []types.PendingAction{}
	for _, r := range rules {
		if !r.IsActive || !matchesAll(r.Conditions, input) {
			continue
		}
		priceAction, followUps, ok := splitActions(r.Actions)
		if !ok {
			continue
		}
		if magnitude > r.MaxAdjustmentPercent {
			e.logger.Debug("rule over its adjustment ceiling", "rule_id", r.ID, "unit_id", in.Snapshot.UnitID,
				"adjustment_percent", in.Recommendation.AdjustmentPercent)
			continue
		}
		if settings.MaxAdjustmentPercent > 0 && magnitude > settings.MaxAdjustmentPercent {
			continue
		}

		now := e.clock.Now()
		a := types.PendingAction{
			ID:               uuid.New().String(),
			UnitID:           in.Snapshot.UnitID,
			RuleID:           r.ID,
			RuleName:         r.Name,
			Action:           priceAction,
			FollowUps:        followUps,
			RecommendedValue: in.Recommendation.SuggestedRent,
			CurrentValue:     in.Recommendation.CurrentRent,
			Confidence:       in.Recommendation.Confidence,
			RiskLevel:        r.RiskLevel,
			Reasoning:        r.Description + ". " + strings.Join(in.Recommendation.Reasoning, ". "),
			CreatedAt:        now,
			ExpiresAt:        now.Add(ActionTTL),
			Status:           types.StatusPending,
		}
		if err := e.actions.Submit(ctx, a, in.Recommendation.AdjustmentPercent); err != nil {
			return out, err
		}

		auto, err := e.autoApprovable(ctx, r, settings, magnitude, now)
		if err != nil {
			return out, err
		}
		if auto {
			ok, err := e.actions.approve(ctx, a.ID, SystemActor, types.TriggeredBySystem)
			if !ok && settings.MaxDailyActions > 0 {
				e.actions.releaseDailySlot(now)
			}
			if err != nil {
				return out, err
			}
		}

		final, err := e.actions.Action(ctx, a.ID)
		if err != nil {
			return out, fmt.Errorf("reloading action %s: %w", a.ID, err)
		}
		out = append(out, final)
	}
	return out, nil
}

// splitActions returns the rule's price action and everything else it carries.
func splitActions(actions []types.AutomationAction) (types.AutomationAction, []types.AutomationAction, bool) {
	idx := slices.IndexFunc(actions, func(a types.AutomationAction) bool {
		return a.Type == types.ActionAdjustPrice
	})
	if idx < 0 {
		return types.AutomationAction{}, nil, false
	}
	var rest []types.AutomationAction
	for i, a := range actions {
		if i != idx {
			rest = append(rest, a)
		}
	}
	return actions[idx], rest, true
}

// autoApprovable applies the approval policy: the rule must opt out of review
// and be allow-listed, and the change must be small enough. A configured
// daily cap must also have a free slot, which is reserved on success.
func (e *Engine) autoApprovable(ctx context.Context, r types.AutomationRule, s types.AutomationSettings, magnitude float64, now time.Time) (bool, error) {
	if r.RequiresApproval || !s.AllowsAutoApproval(r.ID) || magnitude > s.RequireApprovalAbove {
		return false, nil
	}
	if s.MaxDailyActions > 0 {
		ok, err := e.actions.reserveDailySlot(ctx, s.MaxDailyActions, now)
		if err != nil {
			return false, err
		}
		if !ok {
			e.logger.Info("daily action cap reached, leaving action pending", "rule_id", r.ID, "cap", s.MaxDailyActions)
			return false, nil
		}
	}
	return true, nil
}

// ── Rules ───────────────────────────────────────────────────────────────────

// ErrInvalidRule wraps every rule validation failure.
var ErrInvalidRule = errors.New("invalid automation rule")

// RulePatch carries the fields UpdateRule may change. Nil fields are left as
// they are.
type RulePatch struct {
	Name                 *string                      `json:"name,omitempty"`
	Description          *string                      `json:"description,omitempty"`
	IsActive             *bool                        `json:"is_active,omitempty"`
	Conditions           *[]types.AutomationCondition `json:"conditions,omitempty"`
	Actions              *[]types.AutomationAction    `json:"actions,omitempty"`
	RiskLevel            *types.RiskLevel             `json:"risk_level,omitempty"`
	MaxAdjustmentPercent *float64                     `json:"max_adjustment_percent,omitempty"`
	RequiresApproval     *bool                        `json:"requires_approval,omitempty"`
}

func (p RulePatch) apply(r *types.AutomationRule) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	if p.Conditions != nil {
		r.Conditions = *p.Conditions
	}
	if p.Actions != nil {
		r.Actions = *p.Actions
	}
	if p.RiskLevel != nil {
		r.RiskLevel = *p.RiskLevel
	}
	if p.MaxAdjustmentPercent != nil {
		r.MaxAdjustmentPercent = *p.MaxAdjustmentPercent
	}
	if p.RequiresApproval != nil {
		r.RequiresApproval = *p.RequiresApproval
	}
}

// Rules returns every rule in insertion order.
func (e *Engine) Rules(ctx context.Context) ([]types.AutomationRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.ListRules(ctx)
}

// Rule returns one rule by id.
func (e *Engine) Rule(ctx context.Context, id string) (types.AutomationRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.GetRule(ctx, id)
}

// AddRule stores a new rule. A missing id is generated; trigger stats start at
// zero.
func (e *Engine) AddRule(ctx context.Context, r types.AutomationRule, createdBy string) (types.AutomationRule, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if createdBy != "" {
		r.CreatedBy = createdBy
	}
	r.CreatedAt = e.clock.Now()
	r.TriggerCount = 0
	r.LastTriggered = nil
	if err := validateRule(r); err != nil {
		return types.AutomationRule{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.PutRule(ctx, r); err != nil {
		return types.AutomationRule{}, fmt.Errorf("adding rule %s: %w", r.ID, err)
	}
	e.publishRule(ctx, r, "created")
	return r, nil
}

// UpdateRule applies patch to an existing rule.
func (e *Engine) UpdateRule(ctx context.Context, id string, patch RulePatch) (types.AutomationRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.store.GetRule(ctx, id)
	if err != nil {
		return types.AutomationRule{}, err
	}
	patch.apply(&r)
	if err := validateRule(r); err != nil {
		return types.AutomationRule{}, err
	}
	if err := e.store.PutRule(ctx, r); err != nil {
		return types.AutomationRule{}, fmt.Errorf("updating rule %s: %w", id, err)
	}
	e.publishRule(ctx, r, "updated")
	return r, nil
}

// DeleteRule removes a rule. Actions it already produced are unaffected.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.store.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	r.IsActive = false
	e.publishRule(ctx, r, "deleted")
	return nil
}

func (e *Engine) publishRule(ctx context.Context, r types.AutomationRule, change string) {
	e.bus.Publish(ctx, event.NewRuleChanged(e.clock.Now(), event.RuleChangedPayload{
		RuleID:   r.ID,
		RuleName: r.Name,
		Change:   change,
		IsActive: r.IsActive,
	}))
}

func validateRule(r types.AutomationRule) error {
	var problems []string
	if strings.TrimSpace(r.Name) == "" {
		problems = append(problems, "name is required")
	}
	if r.MaxAdjustmentPercent < 0 {
		problems = append(problems, "max_adjustment_percent must not be negative")
	}
	switch r.RiskLevel {
	case types.RiskLow, types.RiskMedium, types.RiskHigh:
	default:
		problems = append(problems, fmt.Sprintf("unknown risk_level %q", r.RiskLevel))
	}
	for i, c := range r.Conditions {
		switch c.Operator {
		case types.OpGreaterThan, types.OpLessThan, types.OpEquals:
		case types.OpBetween:
			if c.Value2 == nil {
				problems = append(problems, fmt.Sprintf("conditions[%d]: between needs value2", i))
			}
		default:
			problems = append(problems, fmt.Sprintf("conditions[%d]: unknown operator %q", i, c.Operator))
		}
	}
	for i, a := range r.Actions {
		switch a.Type {
		case types.ActionAdjustPrice, types.ActionSendNotification, types.ActionScheduleReview:
		default:
			problems = append(problems, fmt.Sprintf("actions[%d]: unknown type %q", i, a.Type))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(problems, "; "))
	}
	return nil
}

// ── Settings ────────────────────────────────────────────────────────────────

// SettingsPatch carries the fields UpdateSettings may change.
type SettingsPatch struct {
	IsEnabled            *bool                `json:"is_enabled,omitempty"`
	MaxDailyActions      *int                 `json:"max_daily_actions,omitempty"`
	MaxAdjustmentPercent *float64             `json:"max_adjustment_percent,omitempty"`
	RequireApprovalAbove *float64             `json:"require_approval_above,omitempty"`
	AutoApprovalRules    *[]string            `json:"auto_approval_rules,omitempty"`
	BusinessHours        *types.BusinessHours `json:"business_hours,omitempty"`
	BlackoutDates        *[]string            `json:"blackout_dates,omitempty"`
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() types.AutomationSettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneSettings(e.settings)
}

// UpdateSettings merges patch into the current settings and persists them.
func (e *Engine) UpdateSettings(ctx context.Context, patch SettingsPatch) (types.AutomationSettings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := cloneSettings(e.settings)
	if patch.IsEnabled != nil {
		s.IsEnabled = *patch.IsEnabled
	}
	if patch.MaxDailyActions != nil {
		s.MaxDailyActions = *patch.MaxDailyActions
	}
	if patch.MaxAdjustmentPercent != nil {
		s.MaxAdjustmentPercent = *patch.MaxAdjustmentPercent
	}
	if patch.RequireApprovalAbove != nil {
		s.RequireApprovalAbove = *patch.RequireApprovalAbove
	}
	if patch.AutoApprovalRules != nil {
		s.AutoApprovalRules = slices.Clone(*patch.AutoApprovalRules)
	}
	if patch.BusinessHours != nil {
		s.BusinessHours = *patch.BusinessHours
	}
	if patch.BlackoutDates != nil {
		s.BlackoutDates = slices.Clone(*patch.BlackoutDates)
	}
	if err := validateSettings(s); err != nil {
		return types.AutomationSettings{}, err
	}
	if err := e.store.SaveSettings(ctx, s); err != nil {
		return types.AutomationSettings{}, fmt.Errorf("saving settings: %w", err)
	}
	e.settings = s
	e.bus.Publish(ctx, event.NewSettingsChanged(e.clock.Now(), s))
	return cloneSettings(s), nil
}

func validateSettings(s types.AutomationSettings) error {
	var problems []string
	if s.MaxDailyActions < 0 {
		problems = append(problems, "max_daily_actions must not be negative")
	}
	if s.MaxAdjustmentPercent < 0 {
		problems = append(problems, "max_adjustment_percent must not be negative")
	}
	if s.RequireApprovalAbove < 0 {
		problems = append(problems, "require_approval_above must not be negative")
	}
	if bh := s.BusinessHours; bh.Enabled {
		if _, err := clockMinutes(bh.Start); err != nil {
			problems = append(problems, "business_hours.start: "+err.Error())
		}
		if _, err := clockMinutes(bh.End); err != nil {
			problems = append(problems, "business_hours.end: "+err.Error())
		}
		if bh.Timezone != "" {
			if _, err := time.LoadLocation(bh.Timezone); err != nil {
				problems = append(problems, fmt.Sprintf("business_hours.timezone %q is unknown", bh.Timezone))
			}
		}
	}
	for _, d := range s.BlackoutDates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			problems = append(problems, fmt.Sprintf("blackout date %q is not YYYY-MM-DD", d))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

// ErrInvalidSettings wraps every settings validation failure.
var ErrInvalidSettings = errors.New("invalid automation settings")

func cloneSettings(s types.AutomationSettings) types.AutomationSettings {
	s.AutoApprovalRules = slices.Clone(s.AutoApprovalRules)
	s.BlackoutDates = slices.Clone(s.BlackoutDates)
	return s
}
