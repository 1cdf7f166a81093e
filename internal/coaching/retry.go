package coaching

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/windfall/phonoecho/internal/client"
)

// RetryConfig controls retry behavior for transient provider errors.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2,
	}
}

// RetryProvider retries a stream that failed before delivering any chunk.
// Once a chunk has reached the caller the stream is not restartable, so the
// error is returned as is.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) ChatStream(ctx context.Context, req client.ChatRequest, onChunk func(string) error) error {
	var lastErr error

	for attempt := range r.config.MaxAttempts {
		delivered := false
		err := r.inner.ChatStream(ctx, req, func(chunk string) error {
			delivered = true
			return onChunk(chunk)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if delivered || !shouldRetry(err) {
			return err
		}
		if attempt == r.config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff(attempt, err)):
		}
	}

	return lastErr
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rejected *client.ErrRejected
	return !errors.As(err, &rejected)
}

func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	var rl *client.ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	if wait > float64(r.config.MaxWait) {
		wait = float64(r.config.MaxWait)
	}

	// ±20% jitter.
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
