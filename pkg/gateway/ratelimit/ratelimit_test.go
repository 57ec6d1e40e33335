package ratelimit

import (
	"testing"
	"time"
)

func TestAcquireCall_EnforcesConcurrency(t *testing.T) {
	l := New(Config{MaxConcurrentCalls: 1})

	first := l.AcquireCall()
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}

	second := l.AcquireCall()
	if second.Allowed {
		t.Fatalf("second should be denied")
	}

	first.Permit.Release()
	third := l.AcquireCall()
	if !third.Allowed {
		t.Fatalf("third should be allowed after release")
	}
}

func TestAcquireCall_UnlimitedWhenCapUnset(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 100; i++ {
		if d := l.AcquireCall(); !d.Allowed {
			t.Fatalf("call %d denied with no cap configured", i)
		}
	}
}

func TestAcquireRelay_TokenBucket(t *testing.T) {
	l := New(Config{RelayRPS: 1, RelayBurst: 2})
	now := time.Now()

	if d := l.AcquireRelay("c1", now); !d.Allowed {
		t.Fatalf("first request should spend a burst token")
	}
	if d := l.AcquireRelay("c1", now); !d.Allowed {
		t.Fatalf("second request should spend a burst token")
	}

	third := l.AcquireRelay("c1", now)
	if third.Allowed {
		t.Fatalf("third request should be denied")
	}
	if third.RetryAfter < 1 {
		t.Fatalf("RetryAfter=%d, want >= 1", third.RetryAfter)
	}

	// A distinct caller has its own bucket.
	if d := l.AcquireRelay("c2", now); !d.Allowed {
		t.Fatalf("distinct caller should not share a bucket")
	}

	// Tokens refill with time.
	if d := l.AcquireRelay("c1", now.Add(2*time.Second)); !d.Allowed {
		t.Fatalf("request should succeed after refill")
	}
}

func TestCallerKey_IgnoresPort(t *testing.T) {
	a := CallerKey("203.0.113.7:51000")
	b := CallerKey("203.0.113.7:52222")
	if a != b {
		t.Fatalf("keys differ across ports: %q vs %q", a, b)
	}
	if c := CallerKey("203.0.113.8:51000"); c == a {
		t.Fatalf("distinct hosts should map to distinct keys")
	}
}

func TestNilLimiter_AllowsEverything(t *testing.T) {
	var l *Limiter
	if d := l.AcquireRelay("c1", time.Now()); !d.Allowed {
		t.Fatalf("nil limiter should allow relay requests")
	}
	if d := l.AcquireCall(); !d.Allowed {
		t.Fatalf("nil limiter should allow calls")
	}
	d := l.AcquireCall()
	d.Permit.Release()
}
