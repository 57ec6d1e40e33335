// Package ratelimit bounds inbound load on the bridge: a per-caller
// token bucket for signaling requests and a global cap on concurrent
// live calls.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"sync"
	"time"
)

type Config struct {
	// Token bucket applied to SDP relay requests, per caller.
	RelayRPS   float64
	RelayBurst int

	// Upper bound on simultaneously active media-stream calls.
	// Zero disables the cap.
	MaxConcurrentCalls int

	// Operational bounds for the in-memory caller map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

// Enabled reports whether any limit in the config is active.
func (c Config) Enabled() bool {
	return (c.RelayRPS > 0 && c.RelayBurst > 0) || c.MaxConcurrentCalls > 0
}

type Limiter struct {
	cfg Config

	callSem chan struct{}

	mu sync.Mutex
	m  map[string]*callerLimiter
}

type callerLimiter struct {
	mu sync.Mutex

	tb tokenBucket

	lastSeen time.Time
}

type tokenBucket struct {
	rps      float64
	capacity float64

	tokens float64
	last   time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	l := &Limiter{
		cfg: cfg,
		m:   make(map[string]*callerLimiter),
	}
	if cfg.MaxConcurrentCalls > 0 {
		l.callSem = make(chan struct{}, cfg.MaxConcurrentCalls)
	}
	return l
}

// CallerKey derives a stable map key from a request's RemoteAddr.
// Only the host part participates, so reconnects from ephemeral ports
// share a bucket.
func CallerKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	sum := sha256.Sum256([]byte(host))
	// 16 bytes => 32 hex chars; enough to avoid collisions in practice.
	return "c_" + hex.EncodeToString(sum[:16])
}

type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

// AcquireRelay gates one signaling request for the given caller.
func (l *Limiter) AcquireRelay(caller string, now time.Time) Decision {
	if l == nil {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}
	if caller == "" {
		caller = "anonymous"
	}

	cl := l.getOrCreate(caller, now)
	cl.touch(now)

	if l.cfg.RelayRPS > 0 && l.cfg.RelayBurst > 0 {
		ok, retryAfter := cl.allowToken(now, l.cfg.RelayRPS, l.cfg.RelayBurst)
		if !ok {
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}
	}

	return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
}

// AcquireCall claims a slot in the live-call cap. Release the permit
// when the call's session ends.
func (l *Limiter) AcquireCall() Decision {
	if l == nil || l.callSem == nil {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}

	select {
	case l.callSem <- struct{}{}:
		return Decision{
			Allowed: true,
			Permit:  &Permit{release: func() { <-l.callSem }},
		}
	default:
		return Decision{Allowed: false, RetryAfter: 1}
	}
}

func (l *Limiter) getOrCreate(caller string, now time.Time) *callerLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// If still too big, drop one arbitrary entry (bounded memory > perfect fairness).
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}

	if cl, ok := l.m[caller]; ok {
		return cl
	}
	cl := &callerLimiter{lastSeen: now}
	l.m[caller] = cl
	return cl
}

func (l *Limiter) gcLocked(now time.Time) {
	ttl := l.cfg.EntryTTL
	for k, v := range l.m {
		if now.Sub(v.lastSeen) > ttl {
			delete(l.m, k)
		}
	}
}

func (cl *callerLimiter) touch(now time.Time) {
	cl.lastSeen = now
}

func (cl *callerLimiter) allowToken(now time.Time, rps float64, burst int) (bool, int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if burst <= 0 || rps <= 0 {
		return true, 0
	}
	capacity := float64(burst)
	if cl.tb.capacity == 0 {
		cl.tb = tokenBucket{
			rps:      rps,
			capacity: capacity,
			tokens:   capacity,
			last:     now,
		}
	}

	// If config changes at runtime (rare), adapt.
	cl.tb.rps = rps
	cl.tb.capacity = capacity

	elapsed := now.Sub(cl.tb.last).Seconds()
	if elapsed > 0 {
		cl.tb.tokens = math.Min(cl.tb.capacity, cl.tb.tokens+(elapsed*cl.tb.rps))
		cl.tb.last = now
	}

	if cl.tb.tokens >= 1.0 {
		cl.tb.tokens -= 1.0
		return true, 0
	}

	needed := 1.0 - cl.tb.tokens
	seconds := needed / cl.tb.rps
	retryAfter := int(math.Ceil(seconds))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
