package middleware

import (
	"testing"
	"time"
)

func TestKeyRateLimiterAllowsBurstThenBlocks(t *testing.T) {
	limiter := NewKeyRateLimiter(1, time.Hour, 3, time.Hour)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("1.2.3.4") {
			t.Fatalf("request %d within burst rejected", i+1)
		}
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatal("request over burst allowed")
	}

	// Independent keys have independent budgets.
	if !limiter.Allow("5.6.7.8") {
		t.Fatal("separate key rejected")
	}
}

func TestKeyRateLimiterExpiresIdleEntries(t *testing.T) {
	limiter := NewKeyRateLimiter(1, time.Hour, 1, time.Minute).(*keyRateLimiter)

	now := time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	if !limiter.Allow("1.2.3.4") {
		t.Fatal("first request rejected")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatal("second request within window allowed")
	}

	// Past the idle TTL and the GC interval the entry is dropped, which
	// grants a fresh budget.
	now = now.Add(2 * time.Minute)
	if !limiter.Allow("5.6.7.8") {
		t.Fatal("gc trigger request rejected")
	}
	if !limiter.Allow("1.2.3.4") {
		t.Fatal("expected expired entry to reset the budget")
	}
}

func TestKeyRateLimiterEmptyKey(t *testing.T) {
	limiter := NewKeyRateLimiter(1, time.Hour, 1, time.Hour)
	if !limiter.Allow("") {
		t.Fatal("empty key should share the unknown bucket, first request allowed")
	}
	if limiter.Allow("") {
		t.Fatal("unknown bucket budget not enforced")
	}
}
