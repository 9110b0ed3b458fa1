package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter keeps one token bucket per user. Buckets idle long enough to
// have refilled are dropped, since a fresh bucket behaves the same.
type userLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu        sync.Mutex
	limiters  map[string]*userBucket
	lastPrune time.Time
}

type userBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// newUserLimiter allows perMinute calls per user with the given burst. A
// non-positive perMinute returns nil, which allows everything.
func newUserLimiter(perMinute, burst int) *userLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	every := time.Minute / time.Duration(perMinute)
	return &userLimiter{
		limit:    rate.Every(every),
		burst:    burst,
		idle:     time.Duration(burst) * every,
		limiters: make(map[string]*userBucket),
	}
}

// Allow reports whether userID may make a call now.
func (l *userLimiter) Allow(userID string) bool {
	return l.allowAt(userID, time.Now())
}

func (l *userLimiter) allowAt(userID string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	if now.Sub(l.lastPrune) >= l.idle {
		l.pruneLocked(now)
	}
	b, ok := l.limiters[userID]
	if !ok {
		b = &userBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

func (l *userLimiter) pruneLocked(now time.Time) {
	for id, b := range l.limiters {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.limiters, id)
		}
	}
	l.lastPrune = now
}
