package pool

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"fleetcore/apxerrors"
	"fleetcore/circuitbreaker"
	"fleetcore/logger"
	"fleetcore/models/browser"
	"fleetcore/models/browsercontext"
	"fleetcore/retry"
)

// AcquireRequest is the single parameter shape for pool acquisition,
// replacing the two overlapping request shapes spec.md left as an open
// question (resolved in SPEC_FULL §9): every caller, priority or not,
// submits one of these.
type AcquireRequest struct {
	SessionID string
	Priority  int // lower value = served first among queued waiters
	Deadline  time.Time
	BrowserKind string
	Capabilities browsercontext.Capabilities
}

// Lease is a held browser instance; callers must Release it exactly once.
// Release is idempotent: a second call is logged and ignored rather than
// double-releasing pool capacity.
type Lease struct {
	InstanceID string
	pool       *Pool
	inst       *pooledInstance
	released   int32
}

// NewPage opens a page on the leased instance with the given capabilities,
// refusing once the instance already holds MaxPagesPerBrowser pages (spec
// §4.1) so a single runaway session can't exhaust one browser process.
func (l *Lease) NewPage(ctx context.Context, caps browsercontext.Capabilities) (DriverPage, string, error) {
	l.inst.mu.Lock()
	defer l.inst.mu.Unlock()
	if maxPages := l.pool.maxPagesPerBrowser; maxPages > 0 && l.inst.record.PageCount >= maxPages {
		return nil, "", apxerrors.Unavailable(fmt.Sprintf("instance %s at max pages (%d)", l.InstanceID, maxPages))
	}
	page, err := l.inst.driver.NewPage(ctx, l.inst.handle, caps)
	if err != nil {
		l.inst.record.ErrorCount++
		return nil, "", apxerrors.BrowserError(err, "new_page")
	}
	pageID := uuid.NewString()
	l.inst.pages[pageID] = page
	l.inst.record.PageCount++
	return page, pageID, nil
}

// ClosePage closes a page previously opened on this lease.
func (l *Lease) ClosePage(ctx context.Context, pageID string) error {
	l.inst.mu.Lock()
	defer l.inst.mu.Unlock()
	page, ok := l.inst.pages[pageID]
	if !ok {
		return fmt.Errorf("unknown page %s", pageID)
	}
	delete(l.inst.pages, pageID)
	l.inst.record.PageCount--
	return l.inst.driver.ClosePage(ctx, page)
}

// Release returns the leased instance to the pool. Safe to call more than
// once; only the first call has any effect.
func (l *Lease) Release() {
	if !atomic.CompareAndSwapInt32(&l.released, 0, 1) {
		logger.Warn("lease released more than once", zap.String("instance_id", l.InstanceID))
		return
	}
	l.pool.release(l)
}

// Metrics summarizes pool state for the monitoring surface (spec §4.1).
type Metrics struct {
	Total       int
	Idle        int
	Active      int
	Unhealthy   int
	Recycling   int
	WaitersQueued int
}

type waiter struct {
	priority int
	seq      uint64
	ready    chan struct{}
	index    int
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *waiterHeap) Push(x interface{}) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() interface{} {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}

// Pool manages a fleet of browser instances across one or more driver
// backends, gating concurrency with a weighted semaphore and dispatching
// queued acquisitions by priority then arrival order (spec §5, expansion).
type Pool struct {
	mu        sync.Mutex
	instances map[string]*pooledInstance
	idleOrder []string // LRU order of idle instance ids, oldest first

	drivers       map[browser.Driver]Driver
	defaultDriver browser.Driver

	sem      *semaphore.Weighted
	maxSize  int64
	waiters  waiterHeap
	waiterSeq uint64

	breakers *circuitbreaker.Registry
	launchRetry retry.Config

	recyclingPolicy    RecyclingPolicy
	errorCap           uint64
	maxPagesPerBrowser int
	shutdownGrace      time.Duration

	// shuttingDown, once set, makes Acquire/waitTurn refuse immediately
	// instead of queueing (spec §5 shutdown algorithm). shutdownCh is
	// closed at the same time so waiters already parked in waitTurn wake
	// up and fail instead of waiting out their full context deadline.
	shuttingDown int32
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	now func() time.Time
}

// Config configures a new Pool.
type Config struct {
	MaxSize       int
	Drivers       map[browser.Driver]Driver
	DefaultDriver browser.Driver
	Breakers      *circuitbreaker.Registry
	LaunchRetry   retry.Config
	Now           func() time.Time

	// RecyclingPolicy scores instances at release time and during the
	// periodic scan; zero value falls back to DefaultRecyclingPolicy.
	RecyclingPolicy RecyclingPolicy
	// ErrorCap is the ErrorCount above which an instance is recycled on
	// release regardless of its combined score. Zero disables the check.
	ErrorCap uint64
	// MaxPagesPerBrowser caps concurrent pages per instance (spec §6
	// BROWSER_POOL_MAX_PAGES_PER_BROWSER); zero means unlimited.
	MaxPagesPerBrowser int
	// ShutdownGrace bounds how long Shutdown waits for active instances to
	// finish when ctx carries no deadline of its own.
	ShutdownGrace time.Duration
}

// New constructs a Pool. At least one driver must be registered.
func New(cfg Config) (*Pool, error) {
	if len(cfg.Drivers) == 0 {
		return nil, fmt.Errorf("pool: at least one driver required")
	}
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("pool: max size must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	breakers := cfg.Breakers
	if breakers == nil {
		breakers = circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	}
	launchRetry := cfg.LaunchRetry
	if launchRetry.MaxAttempts == 0 {
		launchRetry = retry.DefaultConfig()
	}
	recyclingPolicy := cfg.RecyclingPolicy
	if recyclingPolicy == (RecyclingPolicy{}) {
		recyclingPolicy = DefaultRecyclingPolicy()
	}
	shutdownGrace := cfg.ShutdownGrace
	if shutdownGrace <= 0 {
		shutdownGrace = 30 * time.Second
	}
	return &Pool{
		instances:          make(map[string]*pooledInstance),
		shutdownCh:         make(chan struct{}),
		drivers:            cfg.Drivers,
		defaultDriver:      cfg.DefaultDriver,
		sem:                semaphore.NewWeighted(int64(cfg.MaxSize)),
		maxSize:            int64(cfg.MaxSize),
		breakers:           breakers,
		launchRetry:        launchRetry,
		recyclingPolicy:    recyclingPolicy,
		errorCap:           cfg.ErrorCap,
		maxPagesPerBrowser: cfg.MaxPagesPerBrowser,
		shutdownGrace:      shutdownGrace,
		now:                now,
	}, nil
}

// Acquire obtains a browser instance, reusing an idle one when available or
// launching a new one up to MaxSize, queueing by priority/deadline beyond
// that (spec §4.1, §5).
func (p *Pool) Acquire(ctx context.Context, req AcquireRequest) (*Lease, error) {
	if atomic.LoadInt32(&p.shuttingDown) == 1 {
		return nil, apxerrors.Unavailable("pool is shutting down")
	}
	if !req.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.Deadline)
		defer cancel()
	}

	if err := p.waitTurn(ctx, req.Priority); err != nil {
		return nil, err
	}
	// Turn granted: the semaphore slot is already held by waitTurn's caller.

	inst := p.takeIdle(req.BrowserKind)
	if inst == nil {
		launched, err := p.launch(ctx, req)
		if err != nil {
			p.sem.Release(1)
			p.wakeNextWaiter()
			return nil, err
		}
		inst = launched
	}

	inst.mu.Lock()
	inst.record.Transition(browser.StateActive)
	inst.record.RecordUse(p.now())
	inst.record.OwningSession = req.SessionID
	inst.mu.Unlock()

	return &Lease{InstanceID: inst.record.ID, pool: p, inst: inst}, nil
}

// waitTurn blocks until this caller may attempt to acquire the semaphore,
// honoring priority ordering among queued callers, then acquires it.
func (p *Pool) waitTurn(ctx context.Context, priority int) error {
	if p.sem.TryAcquire(1) {
		return nil
	}

	p.mu.Lock()
	p.waiterSeq++
	w := &waiter{priority: priority, seq: p.waiterSeq, ready: make(chan struct{}, 1)}
	heap.Push(&p.waiters, w)
	p.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if w.index >= 0 && w.index < len(p.waiters) && p.waiters[w.index] == w {
				heap.Remove(&p.waiters, w.index)
			}
			p.mu.Unlock()
			return apxerrors.Timeout("pool_acquire")
		case <-p.shutdownCh:
			p.mu.Lock()
			if w.index >= 0 && w.index < len(p.waiters) && p.waiters[w.index] == w {
				heap.Remove(&p.waiters, w.index)
			}
			p.mu.Unlock()
			return apxerrors.Unavailable("pool is shutting down")
		case <-w.ready:
			if p.sem.TryAcquire(1) {
				return nil
			}
			// Lost the race to another releaser; re-queue and keep waiting.
			p.mu.Lock()
			p.waiterSeq++
			w.seq = p.waiterSeq
			heap.Push(&p.waiters, w)
			p.mu.Unlock()
		}
	}
}

// wakeNextWaiter signals the highest-priority queued waiter, if any.
func (p *Pool) wakeNextWaiter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiters.Len() == 0 {
		return
	}
	w := heap.Pop(&p.waiters).(*waiter)
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

func (p *Pool) takeIdle(preferredKind string) *pooledInstance {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, id := range p.idleOrder {
		inst, ok := p.instances[id]
		if !ok {
			continue
		}
		inst.mu.Lock()
		state := inst.record.State
		inst.mu.Unlock()
		if state != browser.StateIdle {
			continue
		}
		p.idleOrder = append(p.idleOrder[:i], p.idleOrder[i+1:]...)
		return inst
	}
	return nil
}

func (p *Pool) launch(ctx context.Context, req AcquireRequest) (*pooledInstance, error) {
	driverKind := p.defaultDriver
	if req.Capabilities.BypassCSP && p.drivers[browser.DriverRod] != nil {
		driverKind = browser.DriverRod
	}
	d, ok := p.drivers[driverKind]
	if !ok {
		return nil, apxerrors.Unavailable(fmt.Sprintf("no driver registered for %s", driverKind))
	}

	id := uuid.NewString()
	var handle DriverHandle
	result, err := p.breakers.Execute(ctx, "launch:"+d.Name(), func(ctx context.Context) (interface{}, error) {
		var h DriverHandle
		launchErr := retry.Do(ctx, p.launchRetry, func(ctx context.Context, attempt int) error {
			var e error
			h, e = d.Launch(ctx, LaunchOptions{BrowserKind: req.BrowserKind, Headless: true, Capabilities: req.Capabilities})
			return e
		})
		return h, launchErr
	})
	if err != nil {
		return nil, apxerrors.BrowserError(err, "launch")
	}
	handle = result.(DriverHandle)

	inst := newPooledInstance(id, d, handle, p.now())
	p.mu.Lock()
	p.instances[id] = inst
	p.mu.Unlock()
	return inst, nil
}

// release returns an instance to idle and wakes the next queued waiter.
// An unhealthy instance stays out of rotation in its unhealthy state (the
// RecyclingEngine scan disposes it). An instance this release's recycling
// check finds degraded/critical (spec §4.3 "recycle on next release") or
// over the configured error cap is pulled from rotation and disposed
// asynchronously instead of going back to idle. Either way the
// semaphore slot is released immediately; disposal of a pulled instance
// does not hold up the waiter it just freed.
func (p *Pool) release(l *Lease) {
	l.inst.mu.Lock()
	wasUnhealthy := l.inst.record.State == browser.StateUnhealthy
	recycle := false
	var reasons []CriticalReason
	if !wasUnhealthy {
		score, rs := p.recyclingPolicy.Score(l.inst.record, p.now())
		level := p.recyclingPolicy.Classify(score, rs)
		overErrorCap := p.errorCap > 0 && l.inst.record.ErrorCount > p.errorCap
		if level != LevelHealthy || overErrorCap {
			recycle = true
			reasons = rs
			l.inst.record.Transition(browser.StateRecycling)
		} else {
			l.inst.record.Transition(browser.StateIdle)
		}
	}
	l.inst.mu.Unlock()

	if !wasUnhealthy && !recycle {
		p.mu.Lock()
		p.idleOrder = append(p.idleOrder, l.InstanceID)
		p.mu.Unlock()
	}

	p.sem.Release(1)
	p.wakeNextWaiter()

	if recycle {
		logger.Info("recycling instance at release",
			zap.String("instance_id", l.InstanceID),
			zap.Any("reasons", reasons))
		go func() {
			if err := p.Dispose(context.Background(), l.InstanceID, false); err != nil {
				logger.Warn("dispose after release-time recycling failed",
					zap.String("instance_id", l.InstanceID), zap.Error(err))
			}
		}()
	}
}

// MarkUnhealthy transitions an instance out of rotation; called by the
// health monitor after the consecutive-failure threshold is crossed.
func (p *Pool) MarkUnhealthy(id string) {
	p.mu.Lock()
	inst, ok := p.instances[id]
	p.mu.Unlock()
	if !ok {
		return
	}
	inst.mu.Lock()
	inst.record.Transition(browser.StateUnhealthy)
	inst.mu.Unlock()
}

// Dispose transitions an instance to recycling, closes its driver handle,
// removes it from the pool, and releases one semaphore slot when
// occupiedSlot is true. Slots are held by leases, not by idle or unhealthy
// instances: a lease's Release has already returned its slot, so the
// callers in this package pass false.
func (p *Pool) Dispose(ctx context.Context, id string, occupiedSlot bool) error {
	p.mu.Lock()
	inst, ok := p.instances[id]
	if ok {
		delete(p.instances, id)
		for i, iid := range p.idleOrder {
			if iid == id {
				p.idleOrder = append(p.idleOrder[:i], p.idleOrder[i+1:]...)
				break
			}
		}
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown instance %s", id)
	}

	inst.mu.Lock()
	inst.record.Transition(browser.StateRecycling)
	err := inst.driver.Close(ctx, inst.handle)
	inst.record.Transition(browser.StateDisposed)
	inst.mu.Unlock()

	if occupiedSlot {
		p.sem.Release(1)
		p.wakeNextWaiter()
	}
	return err
}

// Snapshot returns every tracked instance, for the health monitor and
// recycling engine to scan.
func (p *Pool) Snapshot() []browser.Instance {
	p.mu.Lock()
	ids := make([]string, 0, len(p.instances))
	for id := range p.instances {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	out := make([]browser.Instance, 0, len(ids))
	for _, id := range ids {
		p.mu.Lock()
		inst, ok := p.instances[id]
		p.mu.Unlock()
		if !ok {
			continue
		}
		out = append(out, inst.snapshot())
	}
	return out
}

// HealthCheck runs the driver's health probe against one instance and folds
// the result into its consecutive-failure counter.
func (p *Pool) HealthCheck(ctx context.Context, id string) error {
	p.mu.Lock()
	inst, ok := p.instances[id]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown instance %s", id)
	}
	inst.mu.Lock()
	err := inst.driver.HealthCheck(ctx, inst.handle)
	inst.record.RecordHealthCheck(err == nil)
	unhealthy := inst.record.Unhealthy()
	inst.mu.Unlock()
	if unhealthy {
		p.MarkUnhealthy(id)
	}
	return err
}

// Metrics reports current pool occupancy.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	queued := p.waiters.Len()
	p.mu.Unlock()

	m := Metrics{WaitersQueued: queued}
	for _, inst := range p.Snapshot() {
		m.Total++
		switch inst.State {
		case browser.StateIdle:
			m.Idle++
		case browser.StateActive:
			m.Active++
		case browser.StateUnhealthy:
			m.Unhealthy++
		case browser.StateRecycling:
			m.Recycling++
		}
	}
	return m
}

// Shutdown implements spec §5's drain sequence: stop admitting new
// acquisitions, fail every queued waiter with Unavailable, close idle
// instances immediately, then wait for active instances to finish up to a
// grace deadline before force-closing whatever remains. The grace deadline
// is ctx's own deadline when it carries one, falling back to the Pool's
// configured ShutdownGrace otherwise — the shutdown Coordinator already
// wraps handler calls in a per-handler timeout, so ctx's deadline is the
// natural source of truth here.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		atomic.StoreInt32(&p.shuttingDown, 1)
		close(p.shutdownCh)
	})

	grace := p.shutdownGrace
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining > 0 {
			grace = remaining
		}
	}

	p.mu.Lock()
	var idleIDs, activeIDs []string
	for id, inst := range p.instances {
		inst.mu.Lock()
		state := inst.record.State
		inst.mu.Unlock()
		if state == browser.StateActive {
			activeIDs = append(activeIDs, id)
		} else {
			idleIDs = append(idleIDs, id)
		}
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(idleIDs)+len(activeIDs))

	disposeAsync := func(id string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Dispose(context.Background(), id, false); err != nil {
				errCh <- err
			}
		}()
	}
	for _, id := range idleIDs {
		disposeAsync(id)
	}

	// Give active instances up to the grace deadline to finish on their
	// own (their Release will dispose them if recycling deems it
	// necessary, or return them to idle otherwise); whatever is still
	// active afterward is force-closed.
	deadline := time.After(grace)
	waitActive := make(chan struct{})
	go func() {
		for {
			p.mu.Lock()
			stillActive := 0
			for _, id := range activeIDs {
				inst, ok := p.instances[id]
				if !ok {
					continue
				}
				inst.mu.Lock()
				if inst.record.State == browser.StateActive {
					stillActive++
				}
				inst.mu.Unlock()
			}
			p.mu.Unlock()
			if stillActive == 0 {
				close(waitActive)
				return
			}
			select {
			case <-time.After(50 * time.Millisecond):
			case <-deadline:
				return
			}
		}
	}()

	select {
	case <-waitActive:
	case <-deadline:
	}

	p.mu.Lock()
	var remaining []string
	for _, id := range activeIDs {
		if _, ok := p.instances[id]; ok {
			remaining = append(remaining, id)
		}
	}
	p.mu.Unlock()
	for _, id := range remaining {
		disposeAsync(id)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}
