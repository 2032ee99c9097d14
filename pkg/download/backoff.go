package download

import (
	"context"
	"math"
	"time"
)

// Policy tells how long to wait before a given retry.
//
// Attempts are numbered from 1: Delay(1) is the wait after the first failed attempt.
// Implementations are pure functions of the attempt index and are non-decreasing.
type Policy interface {
	Delay(attempt int) time.Duration
}

// Exponential backoff: Initial * Factor^(attempt-1), capped at Max when Max > 0.
type Exponential struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
}

// Delay for a given attempt
func (p Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 || p.Initial <= 0 {
		return 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.Initial) * math.Pow(factor, float64(attempt-1))
	return capped(d, p.Max)
}

// Linear backoff: Initial + Step*(attempt-1), capped at Max when Max > 0.
//
// Waiting 1+attempt seconds is Linear{Initial: 2s, Step: 1s}.
type Linear struct {
	Initial time.Duration
	Step    time.Duration
	Max     time.Duration
}

// Delay for a given attempt
func (p Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	step := p.Step
	if step < 0 {
		step = 0
	}
	d := float64(p.Initial) + float64(step)*float64(attempt-1)
	if d < 0 {
		return 0
	}
	return capped(d, p.Max)
}

// Constant delay between attempts
type Constant time.Duration

// Delay for a given attempt
func (p Constant) Delay(attempt int) time.Duration {
	if attempt < 1 || p < 0 {
		return 0
	}
	return time.Duration(p)
}

func capped(d float64, max time.Duration) time.Duration {
	if max > 0 && d >= float64(max) {
		return max
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// DefaultPolicy waits 2s, 3s, 4s... between attempts
func DefaultPolicy() Policy {
	return Linear{Initial: 2 * time.Second, Step: time.Second, Max: 30 * time.Second}
}

// Sleeper waits for a duration, or until the context is done.
type Sleeper func(context.Context, time.Duration) error

// Sleep is the real time Sleeper
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
