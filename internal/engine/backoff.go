package engine

import (
	"math/rand"
	"time"
)

// RetryPolicy computes retry schedules for failed delivery attempts:
// exponential backoff doubling from Base, capped at Max, plus jitter uniform
// in [0, delay/4] so retries against the same target host spread out instead
// of arriving in lockstep.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
}

// NextAttemptAt returns when the event may be attempted again, given the
// number of attempts completed so far (including the one that just failed).
// ok is false when no retry may be scheduled: the category never retries, or
// the attempt budget is spent. Callers route those events to Abandoned.
func (p RetryPolicy) NextAttemptAt(attempts int, category Category, now time.Time) (time.Time, bool) {
	if !category.Retryable() {
		return time.Time{}, false
	}
	if attempts >= p.MaxAttempts {
		return time.Time{}, false
	}
	return now.Add(p.delay(attempts)), true
}

// delay is the backoff after the n-th failure: Base * 2^(n-1), capped at
// Max, plus jitter.
func (p RetryPolicy) delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	d := p.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= p.Max {
			d = p.Max
			break
		}
	}
	if d > p.Max {
		d = p.Max
	}

	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
