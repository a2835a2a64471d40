package comtrade

import (
	"context"
	"sync"
	"time"
)

// slidingWindow admits at most limit requests per trailing span. Stamps
// older than the span are discarded before each admission check; when the
// window is full, Wait suspends only until the oldest stamp ages out rather
// than for a flat full span.
type slidingWindow struct {
	mu     sync.Mutex
	limit  int
	span   time.Duration
	stamps []time.Time
	now    func() time.Time
}

func newSlidingWindow(limit int, span time.Duration) *slidingWindow {
	if limit <= 0 {
		return nil
	}
	if span <= 0 {
		span = time.Hour
	}
	return &slidingWindow{
		limit: limit,
		span:  span,
		now:   time.Now,
	}
}

// delay reports how long the caller must wait before the next request is
// admitted. Zero means admit now.
func (w *slidingWindow) delay() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	if len(w.stamps) < w.limit {
		return 0
	}
	return w.stamps[0].Add(w.span).Sub(now)
}

// prune drops stamps older than the window. Caller holds the lock.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	kept := w.stamps[:0]
	for _, stamp := range w.stamps {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	w.stamps = kept
}

// Wait blocks until a request is admitted or the context is cancelled.
func (w *slidingWindow) Wait(ctx context.Context) error {
	if w == nil {
		return nil
	}
	for {
		wait := w.delay()
		if wait <= 0 {
			return nil
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
}

// Record notes a completed request against the window.
func (w *slidingWindow) Record() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamps = append(w.stamps, w.now())
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
