package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// requesterLimiter throttles reservation attempts per requester. A nil
// limiter allows everything.
type requesterLimiter struct {
	limiters sync.Map
	limit    rate.Limit
	burst    int
}

func newRequesterLimiter(perMinute, burst int) *requesterLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 5
	}
	return &requesterLimiter{
		limit: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: burst,
	}
}

func (l *requesterLimiter) getLimiter(requesterID int64) *rate.Limiter {
	if v, ok := l.limiters.Load(requesterID); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	lim := rate.NewLimiter(l.limit, l.burst)
	actual, loaded := l.limiters.LoadOrStore(requesterID, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}

// Allow consumes one token for requesterID at now.
func (l *requesterLimiter) Allow(requesterID int64, now time.Time) bool {
	if l == nil {
		return true
	}
	return l.getLimiter(requesterID).AllowN(now, 1)
}
