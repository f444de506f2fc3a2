package executor

import (
	"sync"

	"fleetcore/models/action"
)

const maxHistoryPerContext = 1000

// entry pairs a dispatched action with its result for later inspection by
// the optimizer and by callers debugging a session.
type entry struct {
	Action action.Action
	Result action.Result
}

// History is a bounded, per-(session,context) FIFO of recent actions. Older
// entries are dropped once a context's history exceeds maxHistoryPerContext
// (spec §4.4 — history informs the optimizer, it is not an audit trail).
type History struct {
	mu   sync.Mutex
	byCtx map[string][]entry
}

// NewHistory builds an empty history tracker.
func NewHistory() *History {
	return &History{byCtx: make(map[string][]entry)}
}

func key(act action.Action) string { return act.SessionID + "/" + act.ContextID }

// Record appends an action/result pair, trimming from the front if the
// per-context history exceeds its cap.
func (h *History) Record(act action.Action, res action.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := key(act)
	list := append(h.byCtx[k], entry{Action: act, Result: res})
	if len(list) > maxHistoryPerContext {
		list = list[len(list)-maxHistoryPerContext:]
	}
	h.byCtx[k] = list
}

// Recent returns up to n most recent entries for a session/context pair,
// newest last.
func (h *History) Recent(sessionID, contextID string, n int) []entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.byCtx[sessionID+"/"+contextID]
	if n <= 0 || n >= len(list) {
		out := make([]entry, len(list))
		copy(out, list)
		return out
	}
	out := make([]entry, n)
	copy(out, list[len(list)-n:])
	return out
}

// Clear drops all history for a session/context pair, e.g. on termination.
func (h *History) Clear(sessionID, contextID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byCtx, sessionID+"/"+contextID)
}
