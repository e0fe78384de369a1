package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxVisitors caps the number of tracked client IPs so an address-rotating
// client cannot grow the map without bound. New IPs past the cap are
// rejected until the sweeper frees slots.
const maxVisitors = 100_000

// RateLimiter enforces a per-IP token bucket on the API surface.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     float64
	burst    float64
}

// visitor is one IP's bucket. touched doubles as the refill anchor and the
// staleness marker for the sweeper.
type visitor struct {
	tokens  float64
	touched time.Time
}

func (v *visitor) refill(now time.Time, rate, burst float64) {
	v.tokens = math.Min(burst, v.tokens+now.Sub(v.touched).Seconds()*rate)
	v.touched = now
}

// NewRateLimiter creates a limiter with the given sustained rate in
// requests per second and burst capacity.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		burst:    float64(burst),
	}
}

// Handler wraps next with the rate limit check.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, wait := rl.take(clientIP(r))

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

		if wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// take consumes one token for ip. A zero wait means the request is allowed;
// a positive wait is the seconds until a token frees up.
func (rl *RateLimiter) take(ip string) (remaining int, wait float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.visitors[ip]
	if !ok {
		if len(rl.visitors) >= maxVisitors {
			return 0, 1 / rl.rate
		}
		v = &visitor{tokens: rl.burst, touched: now}
		rl.visitors[ip] = v
	} else {
		v.refill(now, rl.rate, rl.burst)
	}

	if v.tokens < 1 {
		return 0, (1 - v.tokens) / rl.rate
	}
	v.tokens--
	return int(v.tokens), 0
}

// StartCleanup sweeps idle visitors every interval until the returned stop
// function is called. A visitor is idle once it has not sent a request for
// maxIdle.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.sweep(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) sweep(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for ip, v := range rl.visitors {
		if v.touched.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// Len reports how many IPs are currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// clientIP takes the peer address, never a proxy header: X-Forwarded-For
// and friends are client-controlled and would let anyone pick their own
// bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
