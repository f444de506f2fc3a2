package pool

import (
	"sync"
	"time"

	"fleetcore/models/browser"
)

// pooledInstance pairs the public browser.Instance record with its live
// driver handle and the driver that owns it; access is serialized per
// instance since a single browser process handles one command at a time
// from this pool's perspective (pages within it fan out independently).
type pooledInstance struct {
	mu     sync.Mutex
	record browser.Instance
	driver Driver
	handle DriverHandle
	pages  map[string]DriverPage
}

func newPooledInstance(id string, d Driver, h DriverHandle, now time.Time) *pooledInstance {
	return &pooledInstance{
		record: browser.Instance{
			ID:          id,
			Driver:      browser.Driver(d.Name()),
			State:       browser.StateIdle,
			LaunchedAt:  now,
			LastUsedAt:  now,
			HealthScore: 100,
		},
		driver: d,
		handle: h,
		pages:  make(map[string]DriverPage),
	}
}

func (p *pooledInstance) snapshot() browser.Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record
}
