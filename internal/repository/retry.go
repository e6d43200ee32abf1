package repository

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig defines how optimistic writes are retried after a version
// conflict.
type RetryConfig struct {
	MaxAttempts   int           // Maximum number of attempts, including the first
	BaseDelay     time.Duration // Delay before the second attempt
	MaxDelay      time.Duration // Upper bound for a single delay
	BackoffFactor float64       // Exponential backoff multiplier
	JitterFactor  float64       // Fraction of the delay randomized to spread contenders
}

// DefaultRetryConfig returns the retry policy used for read-modify-write
// updates of list attributes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		BaseDelay:     20 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.5,
	}
}

// RetryOnConflict runs op until it succeeds, returns an error other than
// ErrConflict, or the attempts are used up. op must re-read the item it
// writes on every call.
func RetryOnConflict(ctx context.Context, config RetryConfig, op func() error) error {
	attempts := max(config.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			return nil
		}
		if !IsConflict(err) {
			return err
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(config.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

func (c RetryConfig) delay(attempt int) time.Duration {
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := float64(c.BaseDelay) * math.Pow(factor, float64(attempt))
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * rand.Float64()
	}
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}
