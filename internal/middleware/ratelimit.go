package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per client IP with token buckets.
//
// TOKEN BUCKETS:
// Each IP gets a bucket holding up to `burst` tokens, refilled at `limit`
// tokens per second. A request spends one token; an empty bucket means 429.
// It is applied to the register and login routes, where it slows password
// guessing without affecting normal use.
//
// The limiter map is the only state shared between requests in the whole
// server and is guarded by mu. Buckets idle for longer than ttl are swept so
// the map does not grow without bound.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*client
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time

	reject   http.HandlerFunc
	onReject func(r *http.Request)
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitOption customises a RateLimiter.
type RateLimitOption func(*RateLimiter)

// WithRejectHandler replaces the default plain 429 response.
func WithRejectHandler(h http.HandlerFunc) RateLimitOption {
	return func(rl *RateLimiter) { rl.reject = h }
}

// WithRejectHook is called for every rejected request, e.g. to count it.
func WithRejectHook(fn func(r *http.Request)) RateLimitOption {
	return func(rl *RateLimiter) { rl.onReject = fn }
}

// NewRateLimiter allows perSecond requests per second per IP with bursts of
// up to burst requests.
func NewRateLimiter(perSecond float64, burst int, opts ...RateLimitOption) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		limiters: make(map[string]*client),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		ttl:      10 * time.Minute,
		now:      time.Now,
		reject: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Handler is the middleware. Use it after chimiddleware.RealIP so
// r.RemoteAddr is the client, not the proxy.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.limiterFor(clientIP(r))
		if !limiter.AllowN(rl.now(), 1) {
			if rl.onReject != nil {
				rl.onReject(r)
			}
			retry := time.Second
			if rl.limit > 0 {
				retry = time.Duration(float64(time.Second) / float64(rl.limit))
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retry.Round(time.Second).Seconds()))))
			rl.reject(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.limiters[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Sweep forgets clients idle for longer than the TTL.
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.ttl)
	for key, c := range rl.limiters {
		if c.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// StartSweeper runs Sweep every interval until stop is closed.
func (rl *RateLimiter) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// clientIP strips the port from RemoteAddr. RealIP may already have replaced
// it with a bare address, in which case it is used as is.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
