package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(rpm, burst int) *Limiter {
	l := New(Config{
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Hour, // keep cleanup out of the way
	})
	return l
}

func TestAllowWithinBurst(t *testing.T) {
	l := newTestLimiter(60, 5)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("client") {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}
}

func TestDeniesAfterBurstExhausted(t *testing.T) {
	l := newTestLimiter(60, 3)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		l.Allow("client")
	}
	if l.Allow("client") {
		t.Error("request beyond burst should be denied")
	}
}

func TestSeparateKeysIndependent(t *testing.T) {
	l := newTestLimiter(60, 2)
	defer l.Stop()

	l.Allow("a")
	l.Allow("a")
	if l.Allow("a") {
		t.Error("key a should be exhausted")
	}
	if !l.Allow("b") {
		t.Error("key b should be unaffected")
	}
}

func TestTokensRefillOverTime(t *testing.T) {
	l := newTestLimiter(6000, 1) // 100 tokens/sec for a fast test
	defer l.Stop()

	l.Allow("client")
	if l.Allow("client") {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(50 * time.Millisecond) // ~5 tokens refill
	if !l.Allow("client") {
		t.Error("tokens should have refilled")
	}
}
