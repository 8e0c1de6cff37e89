package portforward

import (
	"context"
	"errors"
	"time"

	"pfctl/pkg/logging"
)

// Watch reconciles on every tick until ctx is done. onChange, if set, is
// called with the snapshot after each reconcile that changed it. A tick
// that finds an operation in flight is skipped.
func (c *Controller) Watch(ctx context.Context, ticks <-chan time.Time, onChange func(Snapshot)) {
	last := c.Snapshot()
	for {
		select {
		case <-ctx.Done():
			logging.Debug(c.subsystem, "Watch stopped")
			return
		case <-ticks:
			if err := c.Reconcile(ctx); err != nil {
				if errors.Is(err, ErrBusy) {
					continue
				}
				logging.Warn(c.subsystem, "Periodic reconcile failed: %v", err)
			}
			snap := c.Snapshot()
			if onChange != nil && !snapshotEqual(last, snap) {
				onChange(snap)
			}
			last = snap
		}
	}
}

// WatchEvery is Watch on a ticker with the given interval.
func (c *Controller) WatchEvery(ctx context.Context, interval time.Duration, onChange func(Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.Watch(ctx, ticker.C, onChange)
}

func snapshotEqual(a, b Snapshot) bool {
	if a.State != b.State || a.Err != b.Err {
		return false
	}
	if a.Session == nil || b.Session == nil {
		return a.Session == nil && b.Session == nil
	}
	return *a.Session == *b.Session
}
