package backoff

import (
	"testing"
	"time"
)

func TestDelayGrowsMonotonicallyAndCaps(t *testing.T) {
	p := Policy{Base: 200 * time.Millisecond, Max: 10 * time.Second}

	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > p.Max {
			t.Fatalf("delay exceeded cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}
	if got := p.Delay(0); got != 200*time.Millisecond {
		t.Fatalf("attempt 0 should be base, got %v", got)
	}
	if got := p.Delay(1); got != 400*time.Millisecond {
		t.Fatalf("attempt 1 should be 2x base, got %v", got)
	}
	if got := p.Delay(50); got != 10*time.Second {
		t.Fatalf("large attempts should cap, got %v", got)
	}
}

func TestDelayZeroBase(t *testing.T) {
	p := Policy{}
	if got := p.Delay(3); got != 0 {
		t.Fatalf("zero base should yield zero delay, got %v", got)
	}
}

func TestDelayWithJitterStaysBounded(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Max: time.Second, Jitter: 50 * time.Millisecond}
	for i := 0; i < 100; i++ {
		d := p.DelayWithJitter(2)
		if d < 400*time.Millisecond || d >= 450*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", d)
		}
	}
}

func TestNextDoublesAndCaps(t *testing.T) {
	base := 500 * time.Millisecond
	max := 4 * time.Second

	if got := Next(0, base, max); got != time.Second {
		t.Fatalf("Next from zero should double base, got %v", got)
	}
	if got := Next(3*time.Second, base, max); got != max {
		t.Fatalf("Next should cap at max, got %v", got)
	}
}
