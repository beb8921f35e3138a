package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter_EnforcesLimit(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		result, errAllow := limiter.Allow(context.Background(), "resend-otp:jane@example.com", 3, time.Minute, now)
		if errAllow != nil {
			t.Fatalf("Allow %d: %v", i, errAllow)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	result, errAllow := limiter.Allow(context.Background(), "resend-otp:jane@example.com", 3, time.Minute, now)
	if errAllow != nil {
		t.Fatalf("Allow: %v", errAllow)
	}
	if result.Allowed {
		t.Fatalf("fourth request should be rejected")
	}
}

func TestMemoryLimiter_WindowRollover(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		if _, errAllow := limiter.Allow(context.Background(), "k", 3, time.Minute, now); errAllow != nil {
			t.Fatalf("Allow: %v", errAllow)
		}
	}
	later := now.Add(2 * time.Minute)
	result, errAllow := limiter.Allow(context.Background(), "k", 3, time.Minute, later)
	if errAllow != nil {
		t.Fatalf("Allow: %v", errAllow)
	}
	if !result.Allowed {
		t.Fatalf("new window should reset the counter")
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		if _, errAllow := limiter.Allow(context.Background(), "a", 3, time.Minute, now); errAllow != nil {
			t.Fatalf("Allow: %v", errAllow)
		}
	}
	result, errAllow := limiter.Allow(context.Background(), "b", 3, time.Minute, now)
	if errAllow != nil {
		t.Fatalf("Allow: %v", errAllow)
	}
	if !result.Allowed {
		t.Fatalf("exhausting one key must not affect another")
	}
}

func TestMemoryLimiter_SubSecondWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)

	// Windows shorter than the one-second bucket granularity round up
	// instead of dividing by zero.
	result, errAllow := limiter.Allow(context.Background(), "k", 1, 500*time.Millisecond, now)
	if errAllow != nil {
		t.Fatalf("Allow: %v", errAllow)
	}
	if !result.Allowed {
		t.Fatalf("first request should be allowed")
	}
	result, errAllow = limiter.Allow(context.Background(), "k", 1, 500*time.Millisecond, now)
	if errAllow != nil {
		t.Fatalf("Allow: %v", errAllow)
	}
	if result.Allowed {
		t.Fatalf("second request in the same second should be rejected")
	}
}

func TestMemoryLimiter_ZeroLimitAllows(t *testing.T) {
	limiter := NewMemoryLimiter()
	result, errAllow := limiter.Allow(context.Background(), "k", 0, time.Minute, time.Now())
	if errAllow != nil {
		t.Fatalf("Allow: %v", errAllow)
	}
	if !result.Allowed {
		t.Fatalf("a zero limit disables the throttle")
	}
}
