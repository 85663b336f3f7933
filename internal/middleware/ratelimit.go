package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyLimiter holds a rate limiter and last-seen time per key.
type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per key. HTTP routes key it by user or IP;
// the websocket gateway keys it by user for chat sends.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	rps      rate.Limit
	burst    int
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new RateLimiter.
// rps is the allowed requests per second; burst is the max burst size.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*keyLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.limiters[key]
	if !exists {
		limiter := rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[key] = &keyLimiter{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Allow reports whether key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// cleanup removes keys not seen for 5 minutes.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for key, v := range rl.limiters {
				if time.Since(v.lastSeen) > 5*time.Minute {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Middleware limits authenticated requests per user and anonymous ones per IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if uid := GetUserID(c); uid != 0 {
			key = "user:" + strconv.FormatUint(uint64(uid), 10)
		}

		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": "too many requests, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
