package executor

import (
	"context"
	"time"

	"fleetcore/apxerrors"
	"fleetcore/models/action"
	"fleetcore/pool"
)

// Dispatcher is the subset of *pool.Lease the executor needs, narrowed so
// tests can substitute a fake without depending on the whole pool package.
type Dispatcher interface {
	Dispatch(ctx context.Context, act action.Action) action.Result
}

// Executor validates, dispatches, and records every action run against a
// leased browser instance (spec §4.5).
type Executor struct {
	history *History
}

// New builds an Executor with its own bounded history tracker.
func New() *Executor {
	return &Executor{history: NewHistory()}
}

// Run validates act, dispatches it via lease, post-processes the result
// (content sanitization), records it in history, and returns both the
// result and any advisory optimizer hints for the caller to log.
func (e *Executor) Run(ctx context.Context, lease Dispatcher, act action.Action) (action.Result, []Hint, error) {
	if err := Validate(act); err != nil {
		return action.Result{ActionID: act.ID}, nil, err
	}

	act, sanitizedSelector, err := sanitizeAction(act)
	if err != nil {
		return action.Result{ActionID: act.ID}, nil, apxerrors.Validation("selector", err.Error())
	}

	hints := Advise(e.history, act)

	timeout := act.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := lease.Dispatch(dispatchCtx, act)
	res.SanitizedSelector = sanitizedSelector
	if res.Success && act.Type == action.TypeContent {
		if html, ok := res.Data.(string); ok {
			res.Data = extractContent(html, contentModeOf(act))
		}
	}
	if !res.Success && dispatchCtx.Err() == context.DeadlineExceeded {
		res.Error = apxerrors.Timeout(string(act.Type)).Error()
	}

	e.history.Record(act, res)
	return res, hints, nil
}

// Score reports the rolling health of a session/context pair over its last
// n recorded actions (0 = all retained history).
func (e *Executor) Score(sessionID, contextID string, n int) Score {
	return Compute(e.history, sessionID, contextID, n)
}

// Forget drops history for a terminated context.
func (e *Executor) Forget(sessionID, contextID string) {
	e.history.Clear(sessionID, contextID)
}

var _ Dispatcher = (*pool.Lease)(nil)
