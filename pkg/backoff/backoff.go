package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Policy computes bounded exponential delays: Base * 2^attempt, capped at
// Max. Jitter, when positive, adds a random slice on top so replicas do not
// retry in lockstep.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Delay returns the backoff for the given zero-based attempt number.
// Monotonically non-decreasing in attempt until the cap is reached.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := p.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			delay = p.Max
			break
		}
	}
	if p.Max > 0 && delay > p.Max {
		delay = p.Max
	}
	return delay
}

// DelayWithJitter returns Delay(attempt) plus a random jitter slice.
func (p Policy) DelayWithJitter(attempt int) time.Duration {
	delay := p.Delay(attempt)
	if p.Jitter <= 0 {
		return delay
	}
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return delay + time.Duration(jitterSource.Int63n(int64(p.Jitter)))
}

// Next doubles the current delay within [base, max]. Used by poll loops that
// stretch their interval while a dependency is down.
func Next(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if max > 0 && next > max {
		return max
	}
	return next
}
