package proxyengine

import (
	"sync/atomic"
)

// LimiterConfig bounds how many requests may be forwarded to one service
// concurrently. It is ambient resource management for the forwarding
// layer, not a feature of the proxy's routing contract: requests over the
// limit are refused immediately rather than queued for a free slot.
type LimiterConfig struct {
	MaxConcurrent int
}

// DefaultLimiterConfig mirrors a generous, non-blocking-by-default cap.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{MaxConcurrent: 128}
}

// Limiter is a per-service concurrency gate: TryAcquire takes a slot if one
// is free and never blocks, Release returns it.
type Limiter struct {
	slots   chan struct{}
	inUse   atomic.Int64
}

// NewLimiter builds a Limiter bounded to cfg.MaxConcurrent (defaulted if <=0).
func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.MaxConcurrent <= 0 {
		cfg = DefaultLimiterConfig()
	}
	return &Limiter{slots: make(chan struct{}, cfg.MaxConcurrent)}
}

// TryAcquire attempts a non-blocking acquire and reports whether it
// succeeded. The forwarding layer uses this rather than a blocking
// Acquire so an overloaded service fails fast with 503 instead of queuing
// requests behind an already-saturated upstream.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.inUse.Add(1)
		return true
	default:
		return false
	}
}

// Release frees a previously acquired slot.
func (l *Limiter) Release() {
	l.inUse.Add(-1)
	<-l.slots
}

// InUse reports the current number of acquired slots.
func (l *Limiter) InUse() int64 {
	return l.inUse.Load()
}
