package executor

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"fleetcore/models/action"
)

// Hint is an advisory suggestion the optimizer attaches before dispatch; it
// never blocks or mutates the action, it only informs the caller (spec
// §4.4 — optimization is advisory, not authoritative).
type Hint struct {
	Code    string
	Message string
}

// Score summarizes how a context has been behaving, computed from recent
// history after each dispatch.
type Score struct {
	SuccessRate   float64
	AvgDuration   time.Duration
	RepeatFailures int
}

// Advise inspects recent history for a context and returns hints relevant
// to the action about to run. A click or type on a selector that failed on
// its last attempt gets a "consider waiting first" hint; a burst of
// navigate actions to the same URL gets a "possible redirect loop" hint.
func Advise(h *History, act action.Action) []Hint {
	recent := h.Recent(act.SessionID, act.ContextID, 10)
	var hints []Hint

	if (act.Type == action.TypeClick || act.Type == action.TypeType) && act.Selector != "" {
		sameSelector := lo.Filter(recent, func(e entry, _ int) bool {
			return e.Action.Selector == act.Selector
		})
		sameSelectorFails := lo.CountBy(sameSelector, func(e entry) bool { return !e.Result.Success })
		if n := len(sameSelector); n > 0 && !sameSelector[n-1].Result.Success {
			hints = append(hints, Hint{
				Code:    "selector_flaky",
				Message: fmt.Sprintf("selector %q failed %d of last %d attempts; consider a wait_for before retrying", act.Selector, sameSelectorFails, len(recent)),
			})
		}
	}

	if act.Type == action.TypeNavigate && act.Navigate != nil {
		sameURL := lo.CountBy(recent, func(e entry) bool {
			return e.Action.Type == action.TypeNavigate && e.Action.Navigate != nil && e.Action.Navigate.URL == act.Navigate.URL
		})
		if sameURL >= 3 {
			hints = append(hints, Hint{
				Code:    "possible_redirect_loop",
				Message: fmt.Sprintf("navigated to %q %d times recently", act.Navigate.URL, sameURL),
			})
		}
	}

	return hints
}

// Compute derives a Score from up to the last n entries of a context's
// history, for the monitoring surface and for operators diagnosing a
// misbehaving automation script.
func Compute(h *History, sessionID, contextID string, n int) Score {
	recent := h.Recent(sessionID, contextID, n)
	if len(recent) == 0 {
		return Score{}
	}

	successes := lo.CountBy(recent, func(e entry) bool { return e.Result.Success })
	var total time.Duration
	for _, e := range recent {
		total += e.Result.Duration
	}

	bySelector := lo.GroupBy(recent, func(e entry) string { return e.Action.Selector })
	repeatFailures := 0
	for sel, group := range bySelector {
		if sel == "" {
			continue
		}
		if fails := lo.CountBy(group, func(e entry) bool { return !e.Result.Success }); fails >= 2 {
			repeatFailures++
		}
	}

	return Score{
		SuccessRate:    float64(successes) / float64(len(recent)),
		AvgDuration:    total / time.Duration(len(recent)),
		RepeatFailures: repeatFailures,
	}
}
