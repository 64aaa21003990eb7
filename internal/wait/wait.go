// Package wait provides the fixed-duration pauses the harness uses in place of
// completion signals from the daemon, plus a bounded poll built on them.
package wait

import (
	"context"
	"time"
)

// Sleeper pauses for a fixed duration. Implementations must return early with
// ctx.Err() when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Timer is the real Sleeper backed by time.Timer.
type Timer struct{}

// Sleep blocks for d or until ctx is done.
func (Timer) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Until evaluates cond, sleeping interval between attempts, until cond
// reports true or the accumulated sleep reaches window. It reports whether
// cond was satisfied. Elapsed time is counted in slept intervals rather than
// wall-clock so the bound holds for any Sleeper.
func Until(ctx context.Context, s Sleeper, window, interval time.Duration, cond func() bool) (bool, error) {
	if interval <= 0 {
		interval = window
	}
	var elapsed time.Duration
	for {
		if cond() {
			return true, nil
		}
		if elapsed >= window {
			return false, nil
		}
		step := interval
		if remaining := window - elapsed; step > remaining {
			step = remaining
		}
		if err := s.Sleep(ctx, step); err != nil {
			return false, err
		}
		elapsed += step
	}
}
