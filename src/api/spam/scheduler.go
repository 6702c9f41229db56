package spam

import (
	"context"
	"time"

	"github.com/shipfest/ship-votes/src/jobs"
	"github.com/shipfest/ship-votes/src/logging"
)

// RunScheduler drives batch detection until the context ends. Transient
// failures back off and retry; a pass that still fails is skipped, the
// next tick starts fresh.
func RunScheduler(ctx context.Context, d *Detector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := jobs.Retry(ctx, 3, 5*time.Second, d.Run); err != nil && ctx.Err() == nil {
				logging.Log.Errorf("spam: batch pass failed: %v", err)
			}
		}
	}
}
