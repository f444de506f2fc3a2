package pagemanager_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/models/browser"
	"fleetcore/models/browsercontext"
	"fleetcore/pagemanager"
	"fleetcore/pool"
	"fleetcore/testharness"
)

func newManager(t *testing.T) (*pool.Pool, *pagemanager.Manager, []pagemanager.Event) {
	t.Helper()
	driver := testharness.NewFakeDriver()
	p, err := pool.New(pool.Config{
		MaxSize:       2,
		Drivers:       map[browser.Driver]pool.Driver{browser.DriverPlaywright: driver},
		DefaultDriver: browser.DriverPlaywright,
	})
	require.NoError(t, err)

	var events []pagemanager.Event
	mgr := pagemanager.New(p, func(e pagemanager.Event) { events = append(events, e) })
	return p, mgr, events
}

func TestResolveReusesPageForSameContext(t *testing.T) {
	_, mgr, _ := newManager(t)
	ctx := context.Background()

	id1, err := mgr.Resolve(ctx, "s1", "c1", pool.AcquireRequest{}, browsercontext.Capabilities{})
	require.NoError(t, err)
	id2, err := mgr.Resolve(ctx, "s1", "c1", pool.AcquireRequest{}, browsercontext.Capabilities{})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestResolveSeparatePagesPerContext(t *testing.T) {
	_, mgr, _ := newManager(t)
	ctx := context.Background()

	id1, err := mgr.Resolve(ctx, "s1", "c1", pool.AcquireRequest{}, browsercontext.Capabilities{})
	require.NoError(t, err)
	id2, err := mgr.Resolve(ctx, "s1", "c2", pool.AcquireRequest{}, browsercontext.Capabilities{})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestCloseContextLeavesOtherContextsIntact(t *testing.T) {
	_, mgr, _ := newManager(t)
	ctx := context.Background()

	_, err := mgr.Resolve(ctx, "s1", "c1", pool.AcquireRequest{}, browsercontext.Capabilities{})
	require.NoError(t, err)
	_, err = mgr.Resolve(ctx, "s1", "c2", pool.AcquireRequest{}, browsercontext.Capabilities{})
	require.NoError(t, err)

	require.NoError(t, mgr.CloseContext(ctx, "s1", "c1"))

	err = mgr.WithPage(ctx, "s1", "c1", func(l *pool.Lease, pageID string) error { return nil })
	assert.Error(t, err)

	err = mgr.WithPage(ctx, "s1", "c2", func(l *pool.Lease, pageID string) error { return nil })
	assert.NoError(t, err)
}

func TestReleaseSessionClosesAllContextsAndReleasesLease(t *testing.T) {
	p, mgr, _ := newManager(t)
	ctx := context.Background()

	_, err := mgr.Resolve(ctx, "s1", "c1", pool.AcquireRequest{}, browsercontext.Capabilities{})
	require.NoError(t, err)
	_, err = mgr.Resolve(ctx, "s1", "c2", pool.AcquireRequest{}, browsercontext.Capabilities{})
	require.NoError(t, err)

	m := p.Metrics()
	assert.Equal(t, 1, m.Active)

	mgr.ReleaseSession(ctx, "s1")

	m = p.Metrics()
	assert.Equal(t, 1, m.Idle)
	assert.Equal(t, 0, m.Active)

	err = mgr.WithPage(ctx, "s1", "c1", func(l *pool.Lease, pageID string) error { return nil })
	assert.Error(t, err)
}
