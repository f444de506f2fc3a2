package pool

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ResourceGovernor periodically samples memory/CPU for every tracked
// instance and records it on the instance's browser.Instance record,
// feeding the recycling engine's Resource axis (spec §4.3). Sampling is
// capability-based: when an instance's driver implements ResourceSampler
// (DockerDriver does, via container stats) that reading is used directly;
// otherwise the governor falls back to a process-wide approximation, since
// Rod/Playwright browsers share this process's OS-level visibility rather
// than owning an isolated container.
type ResourceGovernor struct {
	pool     *Pool
	interval time.Duration
	workers  int
}

// NewResourceGovernor builds a sampler scanning at the given interval.
func NewResourceGovernor(p *Pool, interval time.Duration, workers int) *ResourceGovernor {
	if workers <= 0 {
		workers = 4
	}
	return &ResourceGovernor{pool: p, interval: interval, workers: workers}
}

// Run blocks, sampling on each tick until ctx is canceled.
func (r *ResourceGovernor) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanOnce(ctx)
		}
	}
}

func (r *ResourceGovernor) scanOnce(ctx context.Context) {
	r.pool.mu.Lock()
	ids := make([]string, 0, len(r.pool.instances))
	for id := range r.pool.instances {
		ids = append(ids, id)
	}
	r.pool.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			r.pool.sampleResources(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

// sampleResources updates one instance's MemoryMB/CPUPercent, preferring
// the driver's own ResourceSampler when it implements one.
func (p *Pool) sampleResources(ctx context.Context, id string) {
	p.mu.Lock()
	inst, ok := p.instances[id]
	p.mu.Unlock()
	if !ok {
		return
	}

	inst.mu.Lock()
	driver := inst.driver
	handle := inst.handle
	inst.mu.Unlock()

	var sample ResourceSample
	var err error
	if sampler, ok := driver.(ResourceSampler); ok {
		sample, err = sampler.Resources(ctx, handle)
	} else {
		sample, err = processResourceSample()
	}
	if err != nil {
		return
	}

	inst.mu.Lock()
	inst.record.MemoryMB = sample.MemoryMB
	inst.record.CPUPercent = sample.CPUPercent
	inst.mu.Unlock()
}

// processResourceSample approximates resource usage for drivers with no
// ResourceSampler implementation by reading this process's own RSS from
// /proc/self/status; CPUPercent is always 0. Where that file cannot be read
// (outside Linux) it returns an error and the instance keeps its previous
// sample. No library
// in the example pack offers cross-platform process sampling, so this one
// fallback path is stdlib-only by necessity.
func processResourceSample() (ResourceSample, error) {
	memKB, err := readStatusVMRSSKB("/proc/self/status")
	if err != nil {
		return ResourceSample{}, err
	}
	return ResourceSample{MemoryMB: memKB / 1024, CPUPercent: 0}, nil
}

func readStatusVMRSSKB(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0, err
		}
		return kb, nil
	}
	return 0, nil
}
