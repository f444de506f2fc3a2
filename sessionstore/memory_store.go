package sessionstore

import (
	"context"
	"sync"
	"time"

	"fleetcore/models/session"
)

// MemoryStore is a keyed map plus a by-user index, the in-memory backend
// from spec §4.7.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*session.Session
	byUser    map[string]map[string]struct{}
	now       func() time.Time
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*session.Session),
		byUser: make(map[string]map[string]struct{}),
		now:    time.Now,
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *session.Session) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := s.Clone()
	m.byID[clone.ID] = clone
	if m.byUser[clone.Principal.UserID] == nil {
		m.byUser[clone.Principal.UserID] = make(map[string]struct{})
	}
	m.byUser[clone.Principal.UserID][clone.ID] = struct{}{}
	return clone.Clone(), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*session.Session, error) {
	m.mu.RLock()
	s, ok := m.byID[id]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	if s.Expired(m.now()) {
		return nil, notFound(id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, patch session.Patch) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || s.Expired(m.now()) {
		return nil, notFound(id)
	}
	s.Apply(patch)
	return s.Clone(), nil
}

func (m *MemoryStore) Touch(ctx context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || s.Expired(now) {
		return notFound(id)
	}
	s.Touch(now)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	delete(m.byID, id)
	if users, ok := m.byUser[s.Principal.UserID]; ok {
		delete(users, id)
	}
	return true, nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.byUser[userID]))
	for id := range m.byUser[userID] {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]*session.Session, 0, len(ids))
	now := m.now()
	m.mu.RLock()
	for _, id := range ids {
		if s, ok := m.byID[id]; ok && !s.Expired(now) {
			out = append(out, s.Clone())
		}
	}
	m.mu.RUnlock()
	return out, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = make(map[string]*session.Session)
	m.byUser = make(map[string]map[string]struct{})
	return nil
}

func (m *MemoryStore) ids(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byID))
	for id := range m.byID {
		out = append(out, id)
	}
	return out, nil
}

func (m *MemoryStore) peek(ctx context.Context, id string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *MemoryStore) hardDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil
	}
	delete(m.byID, id)
	if users, ok := m.byUser[s.Principal.UserID]; ok {
		delete(users, id)
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
