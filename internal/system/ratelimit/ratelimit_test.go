package ratelimit

import (
	"testing"
	"time"
)

func TestWindowSlides(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	w := New(2, time.Minute)
	w.now = func() time.Time { return now }

	if !w.Allow("a") || !w.Allow("a") {
		t.Fatal("first two hits must pass")
	}
	if w.Allow("a") {
		t.Fatal("third hit inside the window passed")
	}
	if !w.Allow("b") {
		t.Fatal("keys must be independent")
	}
	if d := w.RetryAfter("a"); d != time.Minute {
		t.Fatalf("RetryAfter = %v", d)
	}

	now = now.Add(61 * time.Second)
	if !w.Allow("a") {
		t.Fatal("hit after the window passed must be allowed")
	}
	if d := w.RetryAfter("b"); d != 0 {
		t.Fatalf("RetryAfter(b) = %v", d)
	}
}

func TestDisabled(t *testing.T) {
	var nilWindow *Window
	if !nilWindow.Allow("x") || !New(0, time.Second).Allow("x") {
		t.Fatal("disabled limiter must allow")
	}
}
