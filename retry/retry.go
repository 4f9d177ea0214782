// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package retry provides a bounded exponential backoff policy and a retry
// loop built on it.
//
// The policy is a pure function from attempt number to delay so callers can
// test schedules without sleeping:
//
//	p := retry.Policy{MaxAttempts: 8, Base: 100 * time.Millisecond, Multiplier: 2, Cap: 5 * time.Second}
//	p.Delay(1) // 100ms
//	p.Delay(3) // 400ms
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is wrapped by Do when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Defaults mirror the log client retry settings: 8 attempts starting at 100ms.
const (
	DefaultMaxAttempts = 8
	DefaultBase        = 100 * time.Millisecond
	DefaultMultiplier  = 2.0
	DefaultCap         = 5 * time.Second
)

// Policy describes a bounded exponential backoff schedule.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	Base        time.Duration
	Multiplier  float64
	Cap         time.Duration
}

// DefaultPolicy returns the project-wide default schedule.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Base:        DefaultBase,
		Multiplier:  DefaultMultiplier,
		Cap:         DefaultCap,
	}
}

// normalized fills zero or invalid fields with defaults.
func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 1.0
	}
	if p.Cap > 0 && p.Cap < p.Base {
		p.Cap = p.Base
	}

	return p
}

// Delay returns the wait before attempt+1, given that attempt (1-based) just
// failed. It returns 0 once attempt reaches MaxAttempts, meaning no further
// attempt should be made.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 || attempt >= p.MaxAttempts {
		return 0
	}

	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if p.Cap > 0 && d >= float64(p.Cap) {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > float64(p.Cap) {
		return p.Cap
	}

	return time.Duration(d)
}

// Attempts returns the normalized attempt budget.
func (p Policy) Attempts() int {
	return p.normalized().MaxAttempts
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, the context
// ends, or the policy runs out of attempts. retryable decides whether an
// error is transient; a nil retryable treats every error as transient.
// onRetry, when set, observes each scheduled retry.
func Do(ctx context.Context, p Policy, sleep Sleeper, retryable func(error) bool,
	onRetry func(attempt int, delay time.Duration, err error), fn func(ctx context.Context) error,
) error {
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	attempts := p.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}

		delay := p.Delay(attempt)
		if delay == 0 {
			break
		}
		if onRetry != nil {
			onRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, errors.Join(err, lastErr))
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}
