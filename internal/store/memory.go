package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// MemoryStore implements Store with in-memory maps.
// Intended for demos and testing, no database required.
type MemoryStore struct {
	mu       sync.RWMutex
	rules    map[string]types.AutomationRule
	ruleSeq  map[string]int
	settings *types.AutomationSettings
	actions  map[string]seqAction
	logs     []types.AutomationLog
	seq      int
}

type seqAction struct {
	types.PendingAction
	seq int
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:   make(map[string]types.AutomationRule),
		ruleSeq: make(map[string]int),
		actions: make(map[string]seqAction),
	}
}

func (s *MemoryStore) ListRules(_ context.Context) ([]types.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.AutomationRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, cloneRule(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return s.ruleSeq[out[i].ID] < s.ruleSeq[out[j].ID]
	})
	return out, nil
}

func (s *MemoryStore) GetRule(_ context.Context, id string) (types.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return types.AutomationRule{}, ErrNotFound
	}
	return cloneRule(r), nil
}

func (s *MemoryStore) PutRule(_ context.Context, rule types.AutomationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ruleSeq[rule.ID]; !ok {
		s.seq++
		s.ruleSeq[rule.ID] = s.seq
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (s *MemoryStore) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	delete(s.ruleSeq, id)
	return nil
}

func (s *MemoryStore) RecordTrigger(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return ErrNotFound
	}
	r.TriggerCount++
	r.LastTriggered = &at
	s.rules[id] = r
	return nil
}

func (s *MemoryStore) LoadSettings(_ context.Context) (types.AutomationSettings, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return types.AutomationSettings{}, false, nil
	}
	return cloneSettings(*s.settings), true, nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, settings types.AutomationSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneSettings(settings)
	s.settings = &c
	return nil
}

func (s *MemoryStore) CreateAction(_ context.Context, a types.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.actions[a.ID] = seqAction{PendingAction: a, seq: s.seq}
	return nil
}

func (s *MemoryStore) GetAction(_ context.Context, id string) (types.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return types.PendingAction{}, ErrNotFound
	}
	return a.PendingAction, nil
}

func (s *MemoryStore) ListActions(_ context.Context, status types.ActionStatus) ([]types.PendingAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []seqAction
	for _, a := range s.actions {
		if status != "" && a.Status != status {
			continue
		}
		matched = append(matched, a)
	}

	// Sort by created_at DESC, later inserts first on ties.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})

	out := make([]types.PendingAction, len(matched))
	for i, a := range matched {
		out[i] = a.PendingAction
	}
	return out, nil
}

func (s *MemoryStore) TransitionAction(_ context.Context, id string, from types.ActionStatus, fn func(*types.PendingAction)) (types.PendingAction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return types.PendingAction{}, false, ErrNotFound
	}
	if a.Status != from {
		return a.PendingAction, false, nil
	}
	fn(&a.PendingAction)
	s.actions[id] = a
	return a.PendingAction, true, nil
}

func (s *MemoryStore) AppendLog(_ context.Context, entry types.AutomationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *MemoryStore) ListLogs(_ context.Context, q LogQuery) ([]types.AutomationLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []types.AutomationLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if q.UnitID != "" && e.UnitID != q.UnitID {
			continue
		}
		if q.Since != nil && e.Timestamp.Before(*q.Since) {
			continue
		}
		matched = append(matched, e)
	}

	// Walking backwards already puts later appends first on ties.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if limit := q.limit(); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func cloneRule(r types.AutomationRule) types.AutomationRule {
	r.Conditions = append([]types.AutomationCondition(nil), r.Conditions...)
	r.Actions = append([]types.AutomationAction(nil), r.Actions...)
	if r.LastTriggered != nil {
		t := *r.LastTriggered
		r.LastTriggered = &t
	}
	return r
}

func cloneSettings(s types.AutomationSettings) types.AutomationSettings {
	s.AutoApprovalRules = append([]string(nil), s.AutoApprovalRules...)
	s.BlackoutDates = append([]string(nil), s.BlackoutDates...)
	return s
}
