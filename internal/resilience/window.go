package resilience

import (
	"context"
	"sync"
	"time"
)

// Window enforces a request quota over a rolling time span. Unlike a token
// bucket it never lets a burst exceed the quota within any span-sized
// interval: each issued request is stamped, and Acquire blocks until the
// oldest stamp has aged out of the span.
//
// A stamp ages out exactly span after it was recorded, so two requests
// issued span apart do not share a window.
type Window struct {
	quota int
	span  time.Duration
	clock Clock

	mu     sync.Mutex
	stamps []time.Time
}

// NewWindow returns a gate allowing at most quota requests per rolling span.
// A nil clock uses the system clock.
func NewWindow(quota int, span time.Duration, clock Clock) *Window {
	if quota < 1 {
		quota = 1
	}
	if span <= 0 {
		span = time.Second
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Window{
		quota:  quota,
		span:   span,
		clock:  clock,
		stamps: make([]time.Time, 0, quota),
	}
}

// Acquire blocks until issuing one more request stays within quota for every
// rolling window, then records the request. It returns early only when ctx
// is done.
func (w *Window) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		w.mu.Lock()
		now := w.clock.Now()
		w.evict(now)
		if len(w.stamps) < w.quota {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			return nil
		}
		wait := w.stamps[0].Add(w.span).Sub(now)
		w.mu.Unlock()

		if wait > 0 {
			if err := w.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}

// evict drops stamps that have aged out. Caller holds w.mu.
func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-w.span)
	n := 0
	for n < len(w.stamps) && !w.stamps[n].After(cutoff) {
		n++
	}
	if n > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[n:]...)
	}
}

// Quota returns the maximum number of requests per window.
func (w *Window) Quota() int {
	return w.quota
}

// Span returns the rolling window length.
func (w *Window) Span() time.Duration {
	return w.span
}
