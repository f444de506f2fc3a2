package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/executor"
	"fleetcore/models/action"
	"fleetcore/models/browser"
	"fleetcore/models/browsercontext"
	"fleetcore/pool"
	"fleetcore/testharness"
)

func newLease(t *testing.T) (*pool.Pool, *pool.Lease, string) {
	t.Helper()
	driver := testharness.NewFakeDriver()
	p, err := pool.New(pool.Config{
		MaxSize:       1,
		Drivers:       map[browser.Driver]pool.Driver{browser.DriverPlaywright: driver},
		DefaultDriver: browser.DriverPlaywright,
	})
	require.NoError(t, err)

	lease, err := p.Acquire(context.Background(), pool.AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)

	_, pageID, err := lease.NewPage(context.Background(), browsercontext.Capabilities{})
	require.NoError(t, err)

	return p, lease, pageID
}

func TestRunRejectsInvalidAction(t *testing.T) {
	_, lease, pageID := newLease(t)
	e := executor.New()

	act := action.Action{ID: "a1", SessionID: "s1", ContextID: "c1", PageID: pageID, Type: action.TypeNavigate}
	res, hints, err := e.Run(context.Background(), lease, act)

	require.Error(t, err)
	assert.Empty(t, hints)
	assert.False(t, res.Success)
}

func TestRunDispatchesValidNavigate(t *testing.T) {
	_, lease, pageID := newLease(t)
	e := executor.New()

	act := action.Action{
		ID: "a1", SessionID: "s1", ContextID: "c1", PageID: pageID,
		Type: action.TypeNavigate, Navigate: &action.NavigateParams{URL: "https://example.com"},
	}
	res, _, err := e.Run(context.Background(), lease, act)

	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestRunSanitizesContent(t *testing.T) {
	_, lease, pageID := newLease(t)
	e := executor.New()

	act := action.Action{ID: "a1", SessionID: "s1", ContextID: "c1", PageID: pageID, Type: action.TypeContent}
	res, _, err := e.Run(context.Background(), lease, act)

	require.NoError(t, err)
	require.True(t, res.Success)
	html, ok := res.Data.(string)
	require.True(t, ok)
	assert.NotContains(t, html, "<script")
}

func TestScoreReflectsRepeatedFailures(t *testing.T) {
	driver := testharness.NewFakeDriver()
	p, err := pool.New(pool.Config{
		MaxSize:       1,
		Drivers:       map[browser.Driver]pool.Driver{browser.DriverPlaywright: driver},
		DefaultDriver: browser.DriverPlaywright,
	})
	require.NoError(t, err)
	lease, err := p.Acquire(context.Background(), pool.AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)
	_, pageID, err := lease.NewPage(context.Background(), browsercontext.Capabilities{})
	require.NoError(t, err)

	e := executor.New()
	driver.FailNext["click"] = assertErr{}
	act := action.Action{
		ID: "a1", SessionID: "s1", ContextID: "c1", PageID: pageID,
		Type: action.TypeClick, Selector: "#submit", Click: &action.ClickParams{Selector: "#submit"},
	}
	_, _, err = e.Run(context.Background(), lease, act)
	require.NoError(t, err)

	driver.FailNext["click"] = assertErr{}
	_, hints, err := e.Run(context.Background(), lease, act)
	require.NoError(t, err)

	found := false
	for _, h := range hints {
		if h.Code == "selector_flaky" {
			found = true
		}
	}
	assert.True(t, found, "expected a selector_flaky hint after two failures on the same selector")

	score := e.Score("s1", "c1", 0)
	assert.Less(t, score.SuccessRate, 1.0)
}

type assertErr struct{}

func (assertErr) Error() string { return "forced failure" }

func TestRunRespectsTimeout(t *testing.T) {
	_, lease, pageID := newLease(t)
	e := executor.New()

	act := action.Action{
		ID: "a1", SessionID: "s1", ContextID: "c1", PageID: pageID,
		Type: action.TypeWait, Timeout: 200 * time.Millisecond,
		Wait: &action.WaitParams{Duration: time.Millisecond},
	}
	_, _, err := e.Run(context.Background(), lease, act)
	require.NoError(t, err)
}
