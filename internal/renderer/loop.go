package renderer

import (
	"context"
	"time"
)

// RefreshInterval is the display refresh cadence of the preview loop.
const RefreshInterval = time.Second / 60

// Ticker is anything driven once per display refresh.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) error
}

// RunLoop ticks t at the refresh cadence until ctx ends or d has elapsed.
// A zero d runs until ctx is done.
func RunLoop(ctx context.Context, t Ticker, d time.Duration) error {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if d > 0 && ctx.Err() == context.DeadlineExceeded {
				return nil
			}
			return ctx.Err()
		case now := <-ticker.C:
			if err := t.Tick(ctx, now); err != nil {
				if ctx.Err() != nil {
					continue
				}
				return err
			}
		}
	}
}
