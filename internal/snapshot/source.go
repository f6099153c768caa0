// Package snapshot reads unit snapshots from the ingestion side. Sources are
// read-only; the pricing pipeline never writes snapshots back.
package snapshot

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/matthewbaird/rentpulse/internal/types"
)

// ErrNotFound is returned when no snapshot exists for a unit id.
var ErrNotFound = errors.New("snapshot: unit not found")

// Query filters List. Zero values match everything.
type Query struct {
	Zip   string
	Limit int
}

// Source supplies the latest snapshot per unit.
type Source interface {
	Get(ctx context.Context, unitID string) (types.UnitSnapshot, error)
	List(ctx context.Context, q Query) ([]types.UnitSnapshot, error)
}

// MemorySource is a Source backed by a map. Load replaces snapshots by id.
type MemorySource struct {
	mu    sync.RWMutex
	units map[string]types.UnitSnapshot
}

func NewMemorySource(snaps ...types.UnitSnapshot) *MemorySource {
	m := &MemorySource{units: make(map[string]types.UnitSnapshot)}
	m.Load(snaps...)
	return m
}

func (m *MemorySource) Load(snaps ...types.UnitSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range snaps {
		m.units[s.UnitID] = s
	}
}

func (m *MemorySource) Get(_ context.Context, unitID string) (types.UnitSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.units[unitID]
	if !ok {
		return types.UnitSnapshot{}, ErrNotFound
	}
	return s, nil
}

// List returns snapshots ordered by unit id.
func (m *MemorySource) List(_ context.Context, q Query) ([]types.UnitSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.UnitSnapshot, 0, len(m.units))
	for _, s := range m.units {
		if q.Zip != "" && s.Zip != q.Zip {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
