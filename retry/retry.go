// Package retry provides a declarative retry policy and a pure executor
// that records every attempt.
package retry

import (
	"context"
	"time"
)

// Policy describes how an operation should be retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the wait between attempts.
	Delay time.Duration

	// Backoff multiplies the delay after each failed attempt.
	// Values <= 1 mean a fixed delay.
	Backoff float64
}

// DefaultPolicy retries three times with a fixed one-second delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       time.Second,
		Backoff:     1,
	}
}

// Attempt records the outcome of one execution attempt.
type Attempt struct {
	// Number is the 1-based attempt number.
	Number int

	// StartedAt is when the attempt began.
	StartedAt time.Time

	// Duration is how long the attempt ran.
	Duration time.Duration

	// Err is the attempt's error, nil on success.
	Err error
}

// Do runs fn under the policy. It returns the full attempt history and
// the final error (nil if any attempt succeeded). The context cancels
// waiting between attempts; an in-flight fn observes cancellation through
// its own ctx parameter.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) ([]Attempt, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	history := make([]Attempt, 0, attempts)
	delay := p.Delay
	var err error

	for n := 1; n <= attempts; n++ {
		start := time.Now()
		err = fn(ctx)
		history = append(history, Attempt{
			Number:    n,
			StartedAt: start,
			Duration:  time.Since(start),
			Err:       err,
		})

		if err == nil {
			return history, nil
		}
		if n == attempts {
			break
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return history, ctx.Err()
			case <-time.After(delay):
			}
		}
		if p.Backoff > 1 {
			delay = time.Duration(float64(delay) * p.Backoff)
		}
	}

	return history, err
}
