// Package retry provides configurable retry with exponential backoff and
// jitter, used by the realm's land-construction path and by outbound send
// recovery in the transport layer when a write fails for a transient reason.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds the parameters of an exponential-backoff retry policy.
type Config struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterMaxPercent  int
}

// DefaultConfig is a sensible default for internal recovery paths.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      50 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2.0,
		JitterMaxPercent:  10,
	}
}

// SendConfig is tuned for a single outbound WebSocket send: a handful of
// fast attempts, since a session's drain worker must keep moving.
func SendConfig() Config {
	return Config{
		MaxAttempts:       2,
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterMaxPercent:  25,
	}
}

// LandConstructionConfig governs retrying LandManager construction of a
// keeper-backed container (e.g. transient allocation failures).
func LandConstructionConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          1 * time.Second,
		BackoffMultiplier: 2.0,
		JitterMaxPercent:  15,
	}
}

// Retrier executes an operation under a Config, retrying on every non-nil
// error until attempts are exhausted or the context is cancelled.
type Retrier struct {
	config Config
	logger *logrus.Entry
}

func NewRetrier(config Config) *Retrier {
	return &Retrier{config: config, logger: logrus.WithField("component", "retry.Retrier")}
}

// Execute runs operation, retrying with backoff on error.
func (r *Retrier) Execute(ctx context.Context, operation func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		logger := r.logger.WithFields(logrus.Fields{"attempt": attempt, "maxAttempts": r.config.MaxAttempts})

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry")
			}
			return nil
		}
		logger.WithError(lastErr).Debug("operation failed")

		if attempt == r.config.MaxAttempts {
			break
		}

		if err := r.wait(ctx, attempt, logger); err != nil {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

func (r *Retrier) wait(ctx context.Context, attempt int, logger *logrus.Entry) error {
	delay := r.delay(attempt)
	logger.WithField("delay", delay).Debug("waiting before retry")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Retrier) delay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.JitterMaxPercent > 0 {
		jitterRange := delay * float64(r.config.JitterMaxPercent) / 100.0
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(r.config.InitialDelay)
		}
	}
	return time.Duration(delay)
}
