package search

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"
)

// RetryConfig controls RetryWithBackoff. It only applies to background
// loads such as the genre catalog; user-driven searches are never retried
// because a newer keystroke would supersede them anyway.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// OnRetry, when set, is told about each failed attempt before the wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultRetryConfig starts at one second, the window Jikan's per-second
// limit resets in.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
}

// StatusCoder is implemented by provider errors that carry the upstream
// HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// RetryAfterHinter is implemented by provider errors that carry the
// upstream Retry-After value.
type RetryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// RetryWithBackoff calls fn until it succeeds, fails permanently or runs out
// of attempts. Waits grow exponentially with ±25% jitter unless the upstream
// named its own Retry-After; MaxDelay caps both.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= attempts || !isTransientError(err) {
			return err
		}

		wait := retryDelay(cfg, attempt, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, wait, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// retryDelay is the wait after the given failed attempt (1-based).
func retryDelay(cfg RetryConfig, attempt int, err error) time.Duration {
	var hinter RetryAfterHinter
	if errors.As(err, &hinter) {
		if hint := hinter.RetryAfterHint(); hint > 0 {
			return capDelay(hint, cfg.MaxDelay)
		}
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	base := float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	jittered := time.Duration(base * (0.75 + rand.Float64()*0.5))
	return capDelay(jittered, cfg.MaxDelay)
}

func capDelay(d, limit time.Duration) time.Duration {
	if limit > 0 && d > limit {
		return limit
	}
	return d
}

// isTransientError reports whether err may succeed on retry: rate limiting,
// upstream 5xx, timeouts and dropped connections. Decode errors and other
// 4xx answers are permanent.
func isTransientError(err error) bool {
	var status StatusCoder
	var netErr net.Error
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.As(err, &status):
		code := status.StatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	message := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "eof"} {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
