package bridge

import "time"

// RateLimiter enforces a minimum interval between publishes. Lines
// arriving faster than the interval are dropped, not queued; the
// machine keeps its own state so a fresher line always supersedes a
// stale one.
//
// Not safe for concurrent use. The single read loop is the only
// caller.
type RateLimiter struct {
	minInterval time.Duration
	last        time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter with the given minimum interval.
// A zero or negative interval disables limiting.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		minInterval: minInterval,
		now:         time.Now,
	}
}

// Allow reports whether a publish may proceed now. The first call
// always succeeds; later calls succeed once the minimum interval has
// elapsed since the last allowed publish.
func (l *RateLimiter) Allow() bool {
	if l.minInterval <= 0 {
		return true
	}

	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < l.minInterval {
		return false
	}

	l.last = now
	return true
}
