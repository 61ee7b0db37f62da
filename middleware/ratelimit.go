package middleware

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// KeyedLimiter keeps one token bucket per key (client IP, usually).
// A nil *KeyedLimiter allows everything.
type KeyedLimiter struct {
	r       rate.Limit
	b       int
	buckets sync.Map
}

// NewKeyedLimiter returns a limiter refilling r tokens per second up to b.
// A non-positive r returns nil, which disables limiting.
func NewKeyedLimiter(r rate.Limit, b int) *KeyedLimiter {
	if r <= 0 {
		return nil
	}
	return &KeyedLimiter{r: r, b: b}
}

// Allow takes one token from key's bucket.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	v, _ := l.buckets.LoadOrStore(key, &bucket{limiter: rate.NewLimiter(l.r, l.b)})
	bk := v.(*bucket)
	bk.lastSeen.Store(time.Now().UnixNano())
	return bk.limiter.Allow()
}

// Sweep drops buckets not used since cutoff and returns how many it
// removed. Run it periodically so idle clients do not pile up.
func (l *KeyedLimiter) Sweep(cutoff time.Time) int {
	if l == nil {
		return 0
	}
	n := 0
	c := cutoff.UnixNano()
	l.buckets.Range(func(k, v interface{}) bool {
		if v.(*bucket).lastSeen.Load() < c {
			l.buckets.Delete(k)
			n++
		}
		return true
	})
	return n
}

// RateLimit rejects requests whose client IP has no token left in l.
func RateLimit(l *KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
