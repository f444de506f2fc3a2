package sessionstore

import (
	"context"
	"time"
)

// Sweeper periodically hard-deletes entries past their ExpiresAt that the
// backend still holds, removing each from its user-set index too; ids are
// scanned in batches of 100. It only visits ids the backend lists: a
// user-set member whose session key is already gone (e.g. removed by a
// Redis TTL) is not removed by it.
type Sweeper struct {
	store    Store
	interval time.Duration
	batch    int
}

const defaultSweepBatch = 100

// NewSweeper builds a sweeper running every interval.
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval, batch: defaultSweepBatch}
}

// Run blocks scanning on a ticker until ctx is canceled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one pass, returning how many stale ids were removed.
func (sw *Sweeper) SweepOnce(ctx context.Context) int {
	ids, err := sw.store.ids(ctx)
	if err != nil {
		return 0
	}

	removed := 0
	for i := 0; i < len(ids); i += sw.batch {
		end := i + sw.batch
		if end > len(ids) {
			end = len(ids)
		}
		for _, id := range ids[i:end] {
			s, err := sw.store.peek(ctx, id)
			if err != nil || s == nil {
				continue
			}
			if s.Expired(time.Now()) {
				if err := sw.store.hardDelete(ctx, id); err == nil {
					removed++
				}
			}
		}
	}
	return removed
}
