// Package memory keeps battles and disputes in process memory. Everything
// handed in or out is a copy, so callers can never alias stored state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/skate-battle-backend/internal/engine"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
)

type Sessions struct {
	mu       sync.Mutex
	sessions map[string]engine.Session
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]engine.Session)}
}

func (m *Sessions) Create(_ context.Context, s engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return store.ErrAlreadyExists
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *Sessions) Get(_ context.Context, id string) (engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return engine.Session{}, store.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *Sessions) PutIfVersion(_ context.Context, s engine.Session, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.sessions[s.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != expected {
		return store.ErrVersionConflict
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *Sessions) ListExpired(_ context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, s := range m.sessions {
		if s.Status.Terminal() {
			continue
		}
		voteDue := s.VoteDeadline != nil && !s.VoteDeadline.After(before)
		turnDue := !s.TurnDeadline.IsZero() && !s.TurnDeadline.After(before)
		if voteDue || turnDue {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
