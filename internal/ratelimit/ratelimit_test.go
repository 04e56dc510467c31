package ratelimit

import (
	"errors"
	"testing"
	"time"
)

// newTestLimiter returns a limiter with a controllable clock.
func newTestLimiter(t *testing.T, max int, window time.Duration) (*Limiter, *time.Time) {
	t.Helper()
	l := NewLimiter(Config{MaxRequests: max, Window: window})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterExactBudget(t *testing.T) {
	l, _ := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if err := l.Allow("user-a"); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
	}

	err := l.Allow("user-a")
	if err == nil {
		t.Fatal("4th request within window should be rejected")
	}
	var rl *ErrRateLimited
	if !errors.As(err, &rl) {
		t.Fatalf("error type = %T, want *ErrRateLimited", err)
	}
	if rl.MaxRequests != 3 {
		t.Errorf("MaxRequests = %d, want 3", rl.MaxRequests)
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	l, now := newTestLimiter(t, 2, time.Minute)

	if err := l.Allow("k"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("k"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("k"); err == nil {
		t.Fatal("3rd request should be rejected")
	}

	// After the window fully elapses, requests succeed again.
	*now = now.Add(61 * time.Second)
	if err := l.Allow("k"); err != nil {
		t.Fatalf("request after window elapsed: %v", err)
	}
}

func TestLimiterKeysIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)

	if err := l.Allow("a"); err != nil {
		t.Fatal(err)
	}
	if err := l.Allow("b"); err != nil {
		t.Errorf("key b should have its own budget: %v", err)
	}
	if err := l.Allow("a"); err == nil {
		t.Error("key a should be exhausted")
	}
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(Config{MaxRequests: 0})
	for i := 0; i < 1000; i++ {
		if err := l.Allow("any"); err != nil {
			t.Fatalf("unlimited limiter rejected request %d: %v", i, err)
		}
	}
}

func TestLimiterEmptyKeyUsesDefault(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)

	if err := l.Allow(""); err != nil {
		t.Fatal(err)
	}
	// "" and DefaultKey share one bucket.
	if err := l.Allow(DefaultKey); err == nil {
		t.Error("empty key and DefaultKey should share a bucket")
	}
}
