package security

import (
	"math"
	"sync"
	"time"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds renders RetryAfter for the Retry-After header, never
// below one second.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter decides whether a caller identity may invoke the evaluator.
type Limiter interface {
	Allow(identity string) Decision
}

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindowLimiter allows maxCalls per identity per window. A window
// opens on the first call and resets once elapsed. Process-local.
type FixedWindowLimiter struct {
	mu       sync.Mutex
	entries  map[string]*window
	maxCalls int
	window   time.Duration
	clock    behavior.Clock
}

// NewFixedWindowLimiter creates a limiter from the rate limit thresholds.
func NewFixedWindowLimiter(cfg behavior.RateLimitThresholds, clock behavior.Clock) *FixedWindowLimiter {
	if clock == nil {
		clock = behavior.SystemClock{}
	}
	return &FixedWindowLimiter{
		entries:  make(map[string]*window),
		maxCalls: cfg.MaxCalls,
		window:   cfg.Window,
		clock:    clock,
	}
}

func (l *FixedWindowLimiter) Allow(identity string) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.entries {
		if !now.Before(w.resetAt) {
			delete(l.entries, key)
		}
	}

	w, ok := l.entries[identity]
	if !ok {
		l.entries[identity] = &window{count: 1, resetAt: now.Add(l.window)}
		return Decision{Allowed: true, Remaining: l.maxCalls - 1}
	}

	if w.count >= l.maxCalls {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: w.resetAt.Sub(now)}
	}

	w.count++
	return Decision{Allowed: true, Remaining: l.maxCalls - w.count}
}

// Len reports the number of tracked identities.
func (l *FixedWindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
