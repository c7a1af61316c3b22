package operations

import (
	"testing"
	"time"
)

func TestPollLimiterWindow(t *testing.T) {
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newPollLimiter(time.Second, func() time.Time { return current })

	if !limiter.Allow("op-1") {
		t.Fatalf("first hit must pass")
	}
	if limiter.Allow("op-1") {
		t.Fatalf("second hit inside the window must be throttled")
	}
	if !limiter.Allow("op-2") {
		t.Fatalf("different operations are throttled independently")
	}

	current = current.Add(1100 * time.Millisecond)
	if !limiter.Allow("op-1") {
		t.Fatalf("hit after the window must pass")
	}
}

func TestPollLimiterRetryAfter(t *testing.T) {
	limiter := newPollLimiter(2*time.Second, nil)
	if got := limiter.RetryAfterSeconds(); got != 2 {
		t.Fatalf("RetryAfterSeconds = %d", got)
	}
}
