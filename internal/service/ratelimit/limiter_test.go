package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	if !l.Allow("quote") || !l.Allow("quote") {
		t.Fatalf("expected burst of 2")
	}
	if l.Allow("quote") {
		t.Fatalf("expected third call to be limited")
	}
	if !l.Allow("other") {
		t.Fatalf("keys must not share buckets")
	}

	if d := l.RetryAfter("quote"); d != time.Second {
		t.Fatalf("expected 1s until next token, got %v", d)
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.Allow("quote") {
		t.Fatalf("expected a token after refill")
	}
	if l.Allow("quote") {
		t.Fatalf("expected only one refilled token")
	}
}

func TestLimiterNoRefillHasNoRetryHint(t *testing.T) {
	l := New(1, 0)
	if !l.Allow("k") || l.Allow("k") {
		t.Fatalf("expected exactly one token")
	}
	if d := l.RetryAfter("k"); d != 0 {
		t.Fatalf("expected zero hint without refill, got %v", d)
	}
}
