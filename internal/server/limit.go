package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// userLimiter keeps one token bucket per user
type userLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// newUserLimiter returns a limiter allowing perSecond requests per user with
// the given burst. perSecond <= 0 disables limiting.
func newUserLimiter(perSecond float64, burst int) *userLimiter {
	if perSecond <= 0 {
		return &userLimiter{}
	}
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether userID may make a request now
func (l *userLimiter) Allow(userID string) bool {
	if l.limiters == nil {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}
