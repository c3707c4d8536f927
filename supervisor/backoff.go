package supervisor

import (
	"math/rand"
	"time"
)

// Backoff computes restart delays: base doubled per consecutive failure,
// capped, with a random jitter fraction applied to the result.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64
}

// Delay returns the wait before restart attempt number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	ceiling := b.Cap
	if ceiling <= 0 {
		ceiling = 30 * time.Second
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			delay = ceiling
			break
		}
	}
	if delay > ceiling {
		delay = ceiling
	}
	if b.Jitter > 0 {
		span := float64(delay) * b.Jitter
		delay += time.Duration((rand.Float64()*2 - 1) * span)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// restartWindow enforces the restart budget: at most limit restarts within
// the trailing window.
type restartWindow struct {
	window time.Duration
	limit  int
	stamps []time.Time
}

// allow records a restart at now and reports whether it stays within budget.
func (w *restartWindow) allow(now time.Time) bool {
	cutoff := now.Add(-w.window)
	kept := w.stamps[:0]
	for _, stamp := range w.stamps {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	w.stamps = append(kept, now)
	return len(w.stamps) <= w.limit
}

// reset clears the budget, used once a generation reaches Ready.
func (w *restartWindow) reset() {
	w.stamps = w.stamps[:0]
}
