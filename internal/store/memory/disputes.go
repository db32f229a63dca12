package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/skate-battle-backend/internal/dispute"
	"github.com/DoyleJ11/skate-battle-backend/internal/store"
)

type Disputes struct {
	mu       sync.Mutex
	disputes map[string]dispute.Dispute
	actions  map[string][]dispute.Action // by dispute id, oldest first
}

func NewDisputes() *Disputes {
	return &Disputes{
		disputes: make(map[string]dispute.Dispute),
		actions:  make(map[string][]dispute.Action),
	}
}

func (m *Disputes) File(_ context.Context, d dispute.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.disputes[d.ID]; ok {
		return store.ErrAlreadyExists
	}
	d.MoveIDs = slices.Clone(d.MoveIDs)
	m.disputes[d.ID] = d
	return nil
}

func (m *Disputes) Get(_ context.Context, id string) (dispute.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.disputes[id]
	if !ok {
		return dispute.Dispute{}, store.ErrNotFound
	}
	d.MoveIDs = slices.Clone(d.MoveIDs)
	return d, nil
}

func (m *Disputes) ListPending(_ context.Context) ([]dispute.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []dispute.Dispute{}
	for id, d := range m.disputes {
		if _, active := m.active(id); active {
			continue
		}
		d.MoveIDs = slices.Clone(d.MoveIDs)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiledAt.Before(out[j].FiledAt) })
	return out, nil
}

func (m *Disputes) PutAction(_ context.Context, a dispute.Action) (dispute.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.disputes[a.DisputeID]; !ok {
		return dispute.Action{}, store.ErrNotFound
	}
	if i, ok := m.active(a.DisputeID); ok {
		return m.actions[a.DisputeID][i], nil
	}
	m.actions[a.DisputeID] = append(m.actions[a.DisputeID], a)
	return a, nil
}

func (m *Disputes) ActionFor(_ context.Context, disputeID string) (dispute.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.actions[disputeID]
	if len(history) == 0 {
		return dispute.Action{}, store.ErrNotFound
	}
	return history[len(history)-1], nil
}

func (m *Disputes) MarkReverted(_ context.Context, disputeID string, at time.Time) (dispute.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.actions[disputeID]
	if len(history) == 0 {
		return dispute.Action{}, store.ErrNotFound
	}
	i, ok := m.active(disputeID)
	if !ok {
		return history[len(history)-1], nil
	}
	history[i].RevertedAt = &at
	return history[i], nil
}

// active finds the dispute's unreverted action. Callers hold mu.
func (m *Disputes) active(disputeID string) (int, bool) {
	for i, a := range m.actions[disputeID] {
		if a.Active() {
			return i, true
		}
	}
	return 0, false
}

func (m *Disputes) Actions(_ context.Context, sessionID string) ([]dispute.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []dispute.Action{}
	for _, history := range m.actions {
		for _, a := range history {
			if a.SessionID == sessionID {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.Before(out[j].AppliedAt) })
	return out, nil
}
