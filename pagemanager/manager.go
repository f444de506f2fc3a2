// Package pagemanager resolves (sessionId, contextId) pairs to a live page,
// lazily acquiring a browser instance and opening the page on first use, and
// serializes concurrent actions against the same page (spec §4.6, §5).
package pagemanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fleetcore/models/browsercontext"
	"fleetcore/pool"
)

// EventKind names a page lifecycle transition, consumed by the executor's
// history (spec §4.6 — "emits lifecycle events consumed by the executor's
// history").
type EventKind string

const (
	EventPageOpened      EventKind = "page_opened"
	EventPageClosed      EventKind = "page_closed"
	EventSessionReleased EventKind = "session_released"
)

// Event is one lifecycle notification.
type Event struct {
	Kind      EventKind
	SessionID string
	ContextID string
	PageID    string
	At        time.Time
}

func pageKey(sessionID, contextID string) string { return sessionID + "/" + contextID }

// managedPage serializes every action dispatched against one page: the pool
// itself does not hold a lock across a Dispatch call, so without this a
// second concurrent handler on the same page could interleave driver calls.
type managedPage struct {
	mu     sync.Mutex
	pageID string
}

// Manager owns the (session,context)→page index and the one browser lease
// per session backing it.
type Manager struct {
	mu      sync.Mutex
	pool    *pool.Pool
	leases  map[string]*pool.Lease             // sessionID -> lease
	pages   map[string]*managedPage            // "sessionID/contextID" -> page
	byOwner map[string]map[string]struct{}      // sessionID -> set of contextIDs
	now     func() time.Time
	onEvent func(Event)
}

// New builds a Manager backed by pool p. onEvent may be nil.
func New(p *pool.Pool, onEvent func(Event)) *Manager {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &Manager{
		pool:    p,
		leases:  make(map[string]*pool.Lease),
		pages:   make(map[string]*managedPage),
		byOwner: make(map[string]map[string]struct{}),
		now:     time.Now,
		onEvent: onEvent,
	}
}

// Resolve returns the page id for (sessionID, contextID), acquiring a
// browser instance and opening the page on first use.
func (m *Manager) Resolve(ctx context.Context, sessionID, contextID string, req pool.AcquireRequest, caps browsercontext.Capabilities) (string, error) {
	lease, err := m.leaseFor(ctx, sessionID, req)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	key := pageKey(sessionID, contextID)
	mp, ok := m.pages[key]
	m.mu.Unlock()
	if ok {
		mp.mu.Lock()
		defer mp.mu.Unlock()
		return mp.pageID, nil
	}

	_, pageID, err := lease.NewPage(ctx, caps)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.pages[key] = &managedPage{pageID: pageID}
	if m.byOwner[sessionID] == nil {
		m.byOwner[sessionID] = make(map[string]struct{})
	}
	m.byOwner[sessionID][contextID] = struct{}{}
	m.mu.Unlock()

	m.onEvent(Event{Kind: EventPageOpened, SessionID: sessionID, ContextID: contextID, PageID: pageID, At: m.now()})
	return pageID, nil
}

func (m *Manager) leaseFor(ctx context.Context, sessionID string, req pool.AcquireRequest) (*pool.Lease, error) {
	m.mu.Lock()
	lease, ok := m.leases[sessionID]
	m.mu.Unlock()
	if ok {
		return lease, nil
	}

	req.SessionID = sessionID
	lease, err := m.pool.Acquire(ctx, req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.leases[sessionID]; ok {
		// Lost a race with a concurrent Resolve; drop the extra lease.
		m.mu.Unlock()
		lease.Release()
		return existing, nil
	}
	m.leases[sessionID] = lease
	m.mu.Unlock()
	return lease, nil
}

// WithPage runs fn holding the target page's serialization lock, guaranteeing
// fn's driver calls execute in program order relative to any other caller on
// the same page (spec §5's same-page ordering guarantee).
func (m *Manager) WithPage(ctx context.Context, sessionID, contextID string, fn func(lease *pool.Lease, pageID string) error) error {
	m.mu.Lock()
	lease, lok := m.leases[sessionID]
	mp, pok := m.pages[pageKey(sessionID, contextID)]
	m.mu.Unlock()
	if !lok || !pok {
		return fmt.Errorf("pagemanager: no page for session=%s context=%s", sessionID, contextID)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()
	return fn(lease, mp.pageID)
}

// CloseContext closes only the pages belonging to one context within a
// session, leaving the session's lease and other contexts intact.
func (m *Manager) CloseContext(ctx context.Context, sessionID, contextID string) error {
	key := pageKey(sessionID, contextID)

	m.mu.Lock()
	lease, lok := m.leases[sessionID]
	mp, pok := m.pages[key]
	m.mu.Unlock()
	if !lok || !pok {
		return nil
	}

	mp.mu.Lock()
	err := lease.ClosePage(ctx, mp.pageID)
	pageID := mp.pageID
	mp.mu.Unlock()

	m.mu.Lock()
	delete(m.pages, key)
	if ctxs, ok := m.byOwner[sessionID]; ok {
		delete(ctxs, contextID)
	}
	m.mu.Unlock()

	m.onEvent(Event{Kind: EventPageClosed, SessionID: sessionID, ContextID: contextID, PageID: pageID, At: m.now()})
	return err
}

// ReleaseSession closes every page belonging to sessionID and releases its
// browser lease back to the pool (spec §4.6 — "on session termination,
// closes every page belonging to that session").
func (m *Manager) ReleaseSession(ctx context.Context, sessionID string) {
	m.mu.Lock()
	ctxs := m.byOwner[sessionID]
	contextIDs := make([]string, 0, len(ctxs))
	for c := range ctxs {
		contextIDs = append(contextIDs, c)
	}
	m.mu.Unlock()

	for _, contextID := range contextIDs {
		_ = m.CloseContext(ctx, sessionID, contextID)
	}

	m.mu.Lock()
	lease, ok := m.leases[sessionID]
	delete(m.leases, sessionID)
	delete(m.byOwner, sessionID)
	m.mu.Unlock()
	if !ok {
		return
	}
	lease.Release()
	m.onEvent(Event{Kind: EventSessionReleased, SessionID: sessionID, At: m.now()})
}
