package pool

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthMonitor periodically probes every tracked instance. Three
// consecutive failures marks an instance unhealthy (spec §4.2); the scan
// itself fans out across instances bounded by workers so one slow instance
// cannot stall the rest of the sweep.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	workers  int
}

// NewHealthMonitor builds a monitor scanning at the given interval.
func NewHealthMonitor(p *Pool, interval time.Duration, workers int) *HealthMonitor {
	if workers <= 0 {
		workers = 4
	}
	return &HealthMonitor{pool: p, interval: interval, workers: workers}
}

// Run blocks, scanning on each tick until ctx is canceled.
func (h *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.scanOnce(ctx)
		}
	}
}

func (h *HealthMonitor) scanOnce(ctx context.Context) {
	instances := h.pool.Snapshot()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for _, inst := range instances {
		id := inst.ID
		g.Go(func() error {
			// Health errors are recorded on the instance, not propagated —
			// one instance's failure must not cancel the group and skip
			// probing the rest.
			_ = h.pool.HealthCheck(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
}
