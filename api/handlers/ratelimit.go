package handlers

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// pruneThreshold is the number of tracked identities above which idle
// limiters are dropped.
const pruneThreshold = 1024

// OpenLimiter limits how often one identity may open streams.
type OpenLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	clock    clockwork.Clock
}

// NewOpenLimiter allows each identity perSecond stream opens per second with
// the given burst. A zero rate disables limiting.
func NewOpenLimiter(perSecond float64, burst int, clock clockwork.Clock) *OpenLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &OpenLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		clock:    clock,
	}
}

// Allow reports whether identity may open another stream now.
func (l *OpenLimiter) Allow(identity string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[identity]
	if !ok {
		if len(l.limiters) >= pruneThreshold {
			l.pruneLocked()
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[identity] = limiter
	}
	return limiter.AllowN(now, 1)
}

// pruneLocked drops limiters that have refilled; they behave exactly like
// fresh ones.
func (l *OpenLimiter) pruneLocked() {
	now := l.clock.Now()
	for identity, limiter := range l.limiters {
		if limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, identity)
		}
	}
}

// Tracked returns the number of identities with a limiter.
func (l *OpenLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
