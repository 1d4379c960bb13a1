package stream

import (
	"math"
	"time"
)

// Policy controls reconnection backoff.
type Policy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy returns 1s base, x1.5 growth, 30s ceiling and 10 attempts.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   1000 * time.Millisecond,
		Multiplier:  1.5,
		MaxDelay:    30000 * time.Millisecond,
		MaxAttempts: 10,
	}
}

// Delay returns the wait before retry number attempt (1-based):
// min(base * multiplier^(attempt-1), max).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) || math.IsInf(d, 0) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	return p
}

// Clock schedules retry timers. Tests replace it to fire timers by hand.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
