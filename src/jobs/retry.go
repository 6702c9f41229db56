package jobs

import (
	"context"
	"time"
)

type Func func(context.Context) error

// Retry runs fn up to attempts times with doubling delays, capped at 30s.
// The context cancels the wait between attempts.
func Retry(ctx context.Context, attempts int, initialDelay time.Duration, fn Func) error {
	if attempts <= 0 {
		attempts = 1
	}
	if initialDelay <= 0 {
		initialDelay = 2 * time.Second
	}
	delay := initialDelay
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	return err
}
