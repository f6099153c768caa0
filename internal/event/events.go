package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matthewbaird/rentpulse/internal/types"
)

// SourceRef points at an entity an event concerns.
type SourceRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"`
}

// DomainEvent carries the canonical shape of every automation event.
type DomainEvent struct {
	ID               string          `json:"id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	AffectedEntities []SourceRef     `json:"affected_entities"`
	Summary          string          `json:"summary"`
	Category         string          `json:"category"` // "action", "rule", "settings"
	Weight           string          `json:"weight"`   // "critical", "major", "minor", "info"
	Polarity         string          `json:"polarity"` // "positive", "negative", "neutral"
	Payload          json.RawMessage `json:"payload"`
}

const (
	TypeActionCreated   = "action_created"
	TypeActionApproved  = "action_approved"
	TypeActionRejected  = "action_rejected"
	TypeActionExpired   = "action_expired"
	TypeActionExecuted  = "action_executed"
	TypeRuleChanged     = "rule_changed"
	TypeSettingsChanged = "settings_changed"
)

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func actionRefs(actionID, unitID, ruleID string) []SourceRef {
	return []SourceRef{
		{EntityType: "action", EntityID: actionID, Role: "subject"},
		{EntityType: "unit", EntityID: unitID, Role: "target"},
		{EntityType: "rule", EntityID: ruleID, Role: "context"},
	}
}

// ── Action events ────────────────────────────────────────────────────────────

// ActionCreatedPayload carries event-specific data for ActionCreated.
type ActionCreatedPayload struct {
	ActionID          string          `json:"action_id"`
	UnitID            string          `json:"unit_id"`
	RuleID            string          `json:"rule_id"`
	RuleName          string          `json:"rule_name"`
	CurrentValue      float64         `json:"current_value"`
	RecommendedValue  float64         `json:"recommended_value"`
	AdjustmentPercent float64         `json:"adjustment_percent"`
	RiskLevel         types.RiskLevel `json:"risk_level"`
	ExpiresAt         time.Time       `json:"expires_at"`
}

func NewActionCreated(at time.Time, p ActionCreatedPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeActionCreated,
		OccurredAt:       at,
		AffectedEntities: actionRefs(p.ActionID, p.UnitID, p.RuleID),
		Summary: fmt.Sprintf("Rule %q proposed %.0f -> %.0f on unit %s",
			p.RuleName, p.CurrentValue, p.RecommendedValue, p.UnitID),
		Category: "action",
		Weight:   "minor",
		Polarity: "neutral",
		Payload:  mustJSON(p),
	}
}

// ActionDecidedPayload carries event-specific data for approvals and rejections.
type ActionDecidedPayload struct {
	ActionID  string `json:"action_id"`
	UnitID    string `json:"unit_id"`
	RuleID    string `json:"rule_id"`
	Decision  string `json:"decision"` // "approved" or "rejected"
	DecidedBy string `json:"decided_by"`
}

func NewActionApproved(at time.Time, p ActionDecidedPayload) DomainEvent {
	p.Decision = "approved"
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeActionApproved,
		OccurredAt:       at,
		AffectedEntities: actionRefs(p.ActionID, p.UnitID, p.RuleID),
		Summary:          fmt.Sprintf("Action %s approved by %s", short(p.ActionID), p.DecidedBy),
		Category:         "action",
		Weight:           "minor",
		Polarity:         "positive",
		Payload:          mustJSON(p),
	}
}

func NewActionRejected(at time.Time, p ActionDecidedPayload) DomainEvent {
	p.Decision = "rejected"
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeActionRejected,
		OccurredAt:       at,
		AffectedEntities: actionRefs(p.ActionID, p.UnitID, p.RuleID),
		Summary:          fmt.Sprintf("Action %s rejected by %s", short(p.ActionID), p.DecidedBy),
		Category:         "action",
		Weight:           "minor",
		Polarity:         "negative",
		Payload:          mustJSON(p),
	}
}

// ActionExpiredPayload carries event-specific data for ActionExpired.
type ActionExpiredPayload struct {
	ActionID  string    `json:"action_id"`
	UnitID    string    `json:"unit_id"`
	RuleID    string    `json:"rule_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewActionExpired(at time.Time, p ActionExpiredPayload) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeActionExpired,
		OccurredAt:       at,
		AffectedEntities: actionRefs(p.ActionID, p.UnitID, p.RuleID),
		Summary:          fmt.Sprintf("Action %s expired without a decision", short(p.ActionID)),
		Category:         "action",
		Weight:           "info",
		Polarity:         "neutral",
		Payload:          mustJSON(p),
	}
}

// ActionExecutedPayload carries the outcome of applying a price change. It is
// also the body handed to the notification sink.
type ActionExecutedPayload struct {
	ActionID    string            `json:"action_id"`
	UnitID      string            `json:"unit_id"`
	RuleID      string            `json:"rule_id"`
	RuleName    string            `json:"rule_name"`
	OldValue    float64           `json:"old_value"`
	NewValue    float64           `json:"new_value"`
	Reason      string            `json:"reason"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	TriggeredBy types.TriggeredBy `json:"triggered_by"`
}

func NewActionExecuted(at time.Time, p ActionExecutedPayload) DomainEvent {
	weight, polarity := "major", "positive"
	summary := fmt.Sprintf("Unit %s repriced %.0f -> %.0f", p.UnitID, p.OldValue, p.NewValue)
	if !p.Success {
		weight, polarity = "critical", "negative"
		summary = fmt.Sprintf("Repricing unit %s failed: %s", p.UnitID, p.Error)
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        TypeActionExecuted,
		OccurredAt:       at,
		AffectedEntities: actionRefs(p.ActionID, p.UnitID, p.RuleID),
		Summary:          summary,
		Category:         "action",
		Weight:           weight,
		Polarity:         polarity,
		Payload:          mustJSON(p),
	}
}

// ── Configuration events ─────────────────────────────────────────────────────

// RuleChangedPayload carries event-specific data for RuleChanged.
type RuleChangedPayload struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Change   string `json:"change"` // "created", "updated", "deleted"
	IsActive bool   `json:"is_active"`
}

func NewRuleChanged(at time.Time, p RuleChangedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeRuleChanged,
		OccurredAt: at,
		AffectedEntities: []SourceRef{
			{EntityType: "rule", EntityID: p.RuleID, Role: "subject"},
		},
		Summary:  fmt.Sprintf("Rule %q %s", p.RuleName, p.Change),
		Category: "rule",
		Weight:   "minor",
		Polarity: "neutral",
		Payload:  mustJSON(p),
	}
}

func NewSettingsChanged(at time.Time, s types.AutomationSettings) DomainEvent {
	state := "disabled"
	if s.IsEnabled {
		state = "enabled"
	}
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeSettingsChanged,
		OccurredAt: at,
		AffectedEntities: []SourceRef{
			{EntityType: "settings", EntityID: "automation", Role: "subject"},
		},
		Summary:  fmt.Sprintf("Automation settings updated (%s, %d actions/day)", state, s.MaxDailyActions),
		Category: "settings",
		Weight:   "major",
		Polarity: "neutral",
		Payload:  mustJSON(s),
	}
}

// Decode unmarshals the event payload into v.
func (e DomainEvent) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.EventType, err)
	}
	return nil
}
