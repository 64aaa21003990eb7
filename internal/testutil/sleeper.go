package testutil

import (
	"context"
	"sync"
	"time"
)

// Sleeper records requested pauses instead of sleeping.
//
// OnSleep, when set, runs before each recorded pause. Tests use it to let a
// fake daemon drain its command channel at the exact points where the real
// harness would be waiting on the daemon.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Sleeper struct {
	mu      sync.Mutex
	slept   []time.Duration
	OnSleep func()
}

// Sleep records d and returns ctx.Err().
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	if s.OnSleep != nil {
		s.OnSleep()
	}
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Slept returns a copy of the recorded pauses in call order.
func (s *Sleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.slept))
	copy(out, s.slept)
	return out
}

// Total returns the sum of all recorded pauses.
func (s *Sleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.slept {
		total += d
	}
	return total
}

// Reset clears the recorded pauses.
func (s *Sleeper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = nil
}
