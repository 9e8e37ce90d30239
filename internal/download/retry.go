package download

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"time"
)

// RetryConfig controls retries with exponential backoff and jitter.
type RetryConfig struct {
	// MaxAttempts counts the first try. Default: 3.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// JitterFraction adds up to this fraction of the delay at random.
	JitterFraction float64
}

// DefaultRetryConfig returns the retry settings for survey downloads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// transientError marks a failure worth retrying: 429, 5xx or a timeout.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error { return &transientError{err: err} }

func isTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// retry runs fn until it succeeds, fails permanently or runs out of
// attempts. onRetry is called before each backoff.
func retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error), onRetry func(attempt int, err error)) (T, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	var zero T
	var lastErr error
	for attempt := range cfg.MaxAttempts {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isTransient(err) || attempt == cfg.MaxAttempts-1 {
			break
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}

		t := time.NewTimer(backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, lastErr
		case <-t.C:
		}
	}
	return zero, lastErr
}

func backoff(attempt int, cfg RetryConfig) time.Duration {
	d := time.Duration(float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt)))
	if cfg.MaxBackoff > 0 && d > cfg.MaxBackoff {
		d = cfg.MaxBackoff
	}
	if cfg.JitterFraction > 0 && d > 0 {
		d += time.Duration(rand.Float64() * cfg.JitterFraction * float64(d))
	}
	return d
}
