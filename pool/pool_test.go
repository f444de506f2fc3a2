package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/models/action"
	"fleetcore/models/browser"
	"fleetcore/models/browsercontext"
)

type fakeDriver struct {
	name        string
	launchCount int32
	failLaunches int32
}

func (f *fakeDriver) Name() string { return f.name }

func (f *fakeDriver) Launch(ctx context.Context, opts LaunchOptions) (DriverHandle, error) {
	n := atomic.AddInt32(&f.launchCount, 1)
	if n <= atomic.LoadInt32(&f.failLaunches) {
		return nil, errors.New("launch failed")
	}
	return &struct{ id int32 }{id: n}, nil
}

func (f *fakeDriver) Version(ctx context.Context, h DriverHandle) (string, error) { return "1.0", nil }

func (f *fakeDriver) NewPage(ctx context.Context, h DriverHandle, caps browsercontext.Capabilities) (DriverPage, error) {
	return &struct{}{}, nil
}

func (f *fakeDriver) ClosePage(ctx context.Context, p DriverPage) error { return nil }

func (f *fakeDriver) HealthCheck(ctx context.Context, h DriverHandle) error { return nil }

func (f *fakeDriver) Close(ctx context.Context, h DriverHandle) error { return nil }

func (f *fakeDriver) Navigate(ctx context.Context, p DriverPage, params action.NavigateParams) error {
	return nil
}
func (f *fakeDriver) Click(ctx context.Context, p DriverPage, params action.ClickParams) error {
	return nil
}
func (f *fakeDriver) Type(ctx context.Context, p DriverPage, params action.TypeParams) error {
	return nil
}
func (f *fakeDriver) Select(ctx context.Context, p DriverPage, params action.SelectParams) error {
	return nil
}
func (f *fakeDriver) Keyboard(ctx context.Context, p DriverPage, params action.KeyboardParams) error {
	return nil
}
func (f *fakeDriver) Mouse(ctx context.Context, p DriverPage, params action.MouseParams) error {
	return nil
}
func (f *fakeDriver) Hover(ctx context.Context, p DriverPage, selector string) error { return nil }
func (f *fakeDriver) Focus(ctx context.Context, p DriverPage, selector string) error { return nil }
func (f *fakeDriver) Blur(ctx context.Context, p DriverPage, selector string) error  { return nil }
func (f *fakeDriver) Screenshot(ctx context.Context, p DriverPage, params action.ScreenshotParams) ([]byte, error) {
	return []byte("fake-png"), nil
}
func (f *fakeDriver) PDF(ctx context.Context, p DriverPage, params action.PDFParams) ([]byte, error) {
	return []byte("fake-pdf"), nil
}
func (f *fakeDriver) Content(ctx context.Context, p DriverPage, selector string) (string, error) {
	return "<html></html>", nil
}
func (f *fakeDriver) Evaluate(ctx context.Context, p DriverPage, script string) (interface{}, error) {
	return nil, nil
}
func (f *fakeDriver) Upload(ctx context.Context, p DriverPage, params action.UploadParams) error {
	return nil
}
func (f *fakeDriver) Download(ctx context.Context, p DriverPage, params action.DownloadParams) (string, error) {
	return "/tmp/fake", nil
}
func (f *fakeDriver) Cookie(ctx context.Context, p DriverPage, params action.CookieParams) (interface{}, error) {
	return nil, nil
}
func (f *fakeDriver) WaitFor(ctx context.Context, p DriverPage, params action.WaitParams) error {
	return nil
}
func (f *fakeDriver) Scroll(ctx context.Context, p DriverPage, params action.ScrollParams) error {
	return nil
}

func newTestPool(t *testing.T, maxSize int) *Pool {
	t.Helper()
	d := &fakeDriver{name: "fake"}
	p, err := New(Config{
		MaxSize:       maxSize,
		Drivers:       map[browser.Driver]Driver{browser.DriverPlaywright: d},
		DefaultDriver: browser.DriverPlaywright,
	})
	require.NoError(t, err)
	return p
}

func newTestPoolWithConfig(t *testing.T, cfg Config) *Pool {
	t.Helper()
	d := &fakeDriver{name: "fake"}
	if cfg.Drivers == nil {
		cfg.Drivers = map[browser.Driver]Driver{browser.DriverPlaywright: d}
	}
	if cfg.DefaultDriver == "" {
		cfg.DefaultDriver = browser.DriverPlaywright
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func TestAcquireLaunchesAndReuses(t *testing.T) {
	p := newTestPool(t, 2)
	ctx := context.Background()

	lease, err := p.Acquire(ctx, AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)
	require.NotEmpty(t, lease.InstanceID)

	m := p.Metrics()
	assert.Equal(t, 1, m.Active)

	lease.Release()
	m = p.Metrics()
	assert.Equal(t, 1, m.Idle)

	lease2, err := p.Acquire(ctx, AcquireRequest{SessionID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, lease.InstanceID, lease2.InstanceID, "expected idle instance reuse")
}

func TestAcquireBlocksAtCapacityAndTimesOut(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	lease, err := p.Acquire(ctx, AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(shortCtx, AcquireRequest{SessionID: "s2"})
	require.Error(t, err)

	lease.Release()
}

func TestAcquirePriorityOrdering(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	lease, err := p.Acquire(ctx, AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)

	order := make(chan int, 2)
	go func() {
		p.waitTurn(ctx, 10)
		order <- 10
		p.sem.Release(1)
		p.wakeNextWaiter()
	}()
	time.Sleep(20 * time.Millisecond) // ensure low-priority waiter enqueues first
	go func() {
		p.waitTurn(ctx, 1)
		order <- 1
		p.sem.Release(1)
		p.wakeNextWaiter()
	}()
	time.Sleep(20 * time.Millisecond)

	lease.Release()

	first := <-order
	second := <-order
	assert.Equal(t, 1, first, "higher priority (lower number) waiter should be served first")
	assert.Equal(t, 10, second)
}

func TestHealthCheckMarksUnhealthyAfterThreeFailures(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	lease, err := p.Acquire(ctx, AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)

	// Swap in a driver that always fails health checks by disposing and
	// relaunching isn't needed; instead exercise RecordHealthCheck directly
	// through the instance record since the fake driver's HealthCheck never
	// errors — this test targets the counting logic, not the driver call.
	lease.inst.mu.Lock()
	lease.inst.record.RecordHealthCheck(false)
	lease.inst.record.RecordHealthCheck(false)
	lease.inst.record.RecordHealthCheck(false)
	unhealthy := lease.inst.record.Unhealthy()
	lease.inst.mu.Unlock()

	assert.True(t, unhealthy)
}

func TestReleaseOfUnhealthyInstanceSkipsIdleRotation(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	lease, err := p.Acquire(ctx, AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)

	p.MarkUnhealthy(lease.InstanceID)
	lease.Release()

	m := p.Metrics()
	assert.Equal(t, 0, m.Idle)
	assert.Equal(t, 1, m.Unhealthy)
}

func TestShutdownDisposesAllInstances(t *testing.T) {
	p := newTestPool(t, 2)
	ctx := context.Background()

	l1, err := p.Acquire(ctx, AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)
	l1.Release()

	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, 0, p.Metrics().Total)
}

func TestShutdownRefusesNewAcquisitions(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	require.NoError(t, p.Shutdown(ctx))

	_, err := p.Acquire(ctx, AcquireRequest{SessionID: "late"})
	require.Error(t, err)
}

func TestShutdownFailsQueuedWaiters(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	lease, err := p.Acquire(ctx, AcquireRequest{SessionID: "holder"})
	require.NoError(t, err)

	waiterErr := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), AcquireRequest{SessionID: "waiter"})
		waiterErr <- err
	}()
	time.Sleep(20 * time.Millisecond) // let the waiter enqueue

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- p.Shutdown(context.Background()) }()

	select {
	case err := <-waiterErr:
		require.Error(t, err, "queued waiter must fail once shutdown starts")
	case <-time.After(time.Second):
		t.Fatal("queued waiter was never woken by shutdown")
	}

	lease.Release()
	require.NoError(t, <-shutdownDone)
}

func TestLeaseReleaseIsIdempotent(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	lease, err := p.Acquire(ctx, AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)

	lease.Release()
	assert.NotPanics(t, func() { lease.Release() })

	m := p.Metrics()
	assert.Equal(t, 1, m.Idle, "second release must not double-count idle rotation")
}

func TestMaxPagesPerBrowserCapEnforced(t *testing.T) {
	p := newTestPoolWithConfig(t, Config{MaxSize: 1, MaxPagesPerBrowser: 1})
	ctx := context.Background()

	lease, err := p.Acquire(ctx, AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)
	defer lease.Release()

	_, _, err = lease.NewPage(ctx, browsercontext.Capabilities{})
	require.NoError(t, err)

	_, _, err = lease.NewPage(ctx, browsercontext.Capabilities{})
	require.Error(t, err, "second page must be refused once at MaxPagesPerBrowser")
}

func TestReleaseTimeRecyclingDisposesCriticalInstance(t *testing.T) {
	policy := DefaultRecyclingPolicy()
	policy.HealthThreshold = 101 // force every instance's Health axis critical
	p := newTestPoolWithConfig(t, Config{MaxSize: 1, RecyclingPolicy: policy})
	ctx := context.Background()

	lease, err := p.Acquire(ctx, AcquireRequest{SessionID: "s1"})
	require.NoError(t, err)
	lease.Release()

	require.Eventually(t, func() bool {
		return p.Metrics().Total == 0
	}, time.Second, 10*time.Millisecond, "critical instance must be disposed, not returned to idle")
}
