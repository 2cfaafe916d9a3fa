package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterStaleAfter = 10 * time.Minute
)

// clientLimiters tracks one token bucket per client IP and evicts buckets
// that have been idle longer than limiterStaleAfter.
type clientLimiters struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	buckets map[string]*clientBucket
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps, burst int) *clientLimiters {
	cl := &clientLimiters{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*clientBucket),
	}
	go cl.sweep()
	return cl
}

func (cl *clientLimiters) sweep() {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for range ticker.C {
		cl.mu.Lock()
		for ip, b := range cl.buckets {
			if time.Since(b.lastSeen) > limiterStaleAfter {
				delete(cl.buckets, ip)
			}
		}
		cl.mu.Unlock()
	}
}

func (cl *clientLimiters) allow(ip string) bool {
	cl.mu.Lock()
	b, ok := cl.buckets[ip]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(cl.rps, cl.burst)}
		cl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	cl.mu.Unlock()
	return b.lim.Allow()
}

// RateLimiter returns a Gin middleware enforcing per-IP token-bucket rate
// limiting. rps is the steady-state requests per second, burst the bucket
// capacity.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	cl := newClientLimiters(rps, burst)
	return func(c *gin.Context) {
		if !cl.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
