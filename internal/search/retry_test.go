package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type statusError struct{ code int }

func (e statusError) Error() string   { return fmt.Sprintf("upstream status %d", e.code) }
func (e statusError) StatusCode() int { return e.code }

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_RetriesRateLimitedUpstream(t *testing.T) {
	var calls atomic.Int32
	err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
		if calls.Add(1) < 3 {
			return fmt.Errorf("genres: %w", statusError{code: http.StatusTooManyRequests})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error after retries, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestRetryWithBackoff_ClientErrorFailsImmediately(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
		calls++
		return statusError{code: http.StatusNotFound}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls)
	}
}

func TestRetryWithBackoff_ExhaustsAllAttempts(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
		calls++
		return fmt.Errorf("timeout")
	})
	if err == nil || err.Error() != "timeout" {
		t.Fatalf("expected last error 'timeout', got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	err := RetryWithBackoff(ctx, cfg, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return fmt.Errorf("connection reset")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestRetryWithBackoff_MaxDelayCap(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     60 * time.Millisecond,
		Multiplier:   10.0,
	}

	var timestamps []time.Time
	_ = RetryWithBackoff(context.Background(), cfg, func() error {
		timestamps = append(timestamps, time.Now())
		return statusError{code: http.StatusBadGateway}
	})

	if len(timestamps) != 4 {
		t.Fatalf("expected 4 timestamps, got %d", len(timestamps))
	}
	for i := 2; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		maxAllowed := time.Duration(float64(cfg.MaxDelay) * 1.5)
		if gap > maxAllowed {
			t.Errorf("gap[%d] = %v exceeds max delay cap of %v", i, gap, cfg.MaxDelay)
		}
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{statusError{code: http.StatusTooManyRequests}, true},
		{statusError{code: http.StatusServiceUnavailable}, true},
		{statusError{code: http.StatusBadRequest}, false},
		{fmt.Errorf("decode: %w", errors.New("invalid character")), false},
		{fmt.Errorf("read body: unexpected EOF"), true},
	}
	for _, tt := range tests {
		if got := isTransientError(tt.err); got != tt.want {
			t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

type rateLimitedError struct{ wait time.Duration }

func (e rateLimitedError) Error() string                 { return "upstream status 429" }
func (e rateLimitedError) StatusCode() int               { return http.StatusTooManyRequests }
func (e rateLimitedError) RetryAfterHint() time.Duration { return e.wait }

func TestRetryDelayHonoursRetryAfterHint(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	if got := retryDelay(cfg, 1, rateLimitedError{wait: 300 * time.Millisecond}); got != 300*time.Millisecond {
		t.Fatalf("expected upstream hint, got %v", got)
	}
	if got := retryDelay(cfg, 1, rateLimitedError{wait: time.Minute}); got != time.Second {
		t.Fatalf("hint must be capped by MaxDelay, got %v", got)
	}
}

func TestRetryDelayGrowsExponentially(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2}
	first := retryDelay(cfg, 1, errors.New("timeout"))
	third := retryDelay(cfg, 3, errors.New("timeout"))
	if first < 75*time.Millisecond || first > 125*time.Millisecond {
		t.Fatalf("first delay out of jitter range: %v", first)
	}
	if third < 300*time.Millisecond || third > 500*time.Millisecond {
		t.Fatalf("third delay out of jitter range: %v", third)
	}
}

func TestRetryWithBackoff_ReportsEachRetry(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, wait time.Duration, err error) {
		attempts = append(attempts, attempt)
	}
	_ = RetryWithBackoff(context.Background(), cfg, func() error {
		return statusError{code: http.StatusServiceUnavailable}
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("expected retries after attempts 1 and 2, got %v", attempts)
	}
}
