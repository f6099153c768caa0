// Package store persists automation rules, settings, pending actions and the
// automation log. The engine only sees the interfaces here, so the memory and
// SQLite implementations are interchangeable.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// ErrNotFound is returned when a rule or action id does not exist.
var ErrNotFound = errors.New("store: not found")

// DefaultLogLimit caps ListLogs when the query sets no limit.
const DefaultLogLimit = 50

type RuleStore interface {
	ListRules(ctx context.Context) ([]types.AutomationRule, error)
	GetRule(ctx context.Context, id string) (types.AutomationRule, error)
	// PutRule inserts or replaces a rule by id.
	PutRule(ctx context.Context, rule types.AutomationRule) error
	DeleteRule(ctx context.Context, id string) error
	// RecordTrigger increments the trigger count and stamps last-triggered.
	RecordTrigger(ctx context.Context, id string, at time.Time) error
}

type SettingsStore interface {
	// LoadSettings reports false when nothing has been saved yet.
	LoadSettings(ctx context.Context) (types.AutomationSettings, bool, error)
	SaveSettings(ctx context.Context, s types.AutomationSettings) error
}

type ActionStore interface {
	CreateAction(ctx context.Context, a types.PendingAction) error
	GetAction(ctx context.Context, id string) (types.PendingAction, error)
	// ListActions returns actions newest-first by creation time. An empty
	// status returns every action.
	ListActions(ctx context.Context, status types.ActionStatus) ([]types.PendingAction, error)
	// TransitionAction applies fn to the action only if its status is still
	// from, and persists the result atomically. It reports false when the
	// action was not in the expected state.
	TransitionAction(ctx context.Context, id string, from types.ActionStatus, fn func(*types.PendingAction)) (types.PendingAction, bool, error)
}

// LogQuery filters ListLogs.
type LogQuery struct {
	UnitID string
	Since  *time.Time
	Limit  int
}

type LogStore interface {
	AppendLog(ctx context.Context, entry types.AutomationLog) error
	// ListLogs returns entries newest-first.
	ListLogs(ctx context.Context, q LogQuery) ([]types.AutomationLog, error)
}

// Store is everything the automation layer persists.
type Store interface {
	RuleStore
	SettingsStore
	ActionStore
	LogStore
}

func (q LogQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultLogLimit
	}
	return q.Limit
}
