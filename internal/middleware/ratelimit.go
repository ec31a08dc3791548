package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 5 * time.Minute

type limiterEntry struct {
	limiter *rate.Limiter
	expires time.Time
}

// RateLimiter keeps one token bucket per caller: the user id when
// authenticated, otherwise the remote address.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		now:      time.Now,
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, e := range rl.limiters {
		if now.After(e.expires) {
			delete(rl.limiters, k)
		}
	}

	if e, ok := rl.limiters[key]; ok {
		e.expires = now.Add(limiterIdle)
		return e.limiter
	}
	e := &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst), expires: now.Add(limiterIdle)}
	rl.limiters[key] = e
	return e.limiter
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.get(callerKey(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	if uid, ok := UserIDFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(uid, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
