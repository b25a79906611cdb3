package http

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := newRateLimiter(2)
	r.now = func() time.Time { return now }

	if !r.allow() || !r.allow() {
		t.Fatalf("first two calls should pass")
	}
	if r.allow() {
		t.Fatalf("third call in the window should be limited")
	}

	now = now.Add(time.Minute)
	if !r.allow() {
		t.Fatalf("new window should reset the counter")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *rateLimiter
	for _, r := range []*rateLimiter{newRateLimiter(0), nilLimiter} {
		for i := 0; i < 100; i++ {
			if !r.allow() {
				t.Fatalf("disabled limiter rejected call %d", i)
			}
		}
	}
}
