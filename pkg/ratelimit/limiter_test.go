package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterPerKey(t *testing.T) {
	l := New(1, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst of 2 should pass")
	}
	if l.Allow("a") {
		t.Fatalf("third call should be limited")
	}
	if !l.Allow("b") {
		t.Fatalf("keys are independent")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatalf("token should refill after a second")
	}
}

func TestLimiterSweepsIdleKeys(t *testing.T) {
	l := New(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(11 * time.Minute)
	l.Allow("new")
	if _, ok := l.m["old"]; ok {
		t.Fatalf("idle key should be swept")
	}
}
