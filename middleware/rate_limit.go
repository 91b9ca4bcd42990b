package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/anyrate/utils"
)

type visitorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	limiters   = map[string]*visitorLimiter{}
	limitersMu sync.Mutex
)

// RateLimit applies a per-client token bucket. Identified by client IP.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 60
	}
	limit := rate.Every(time.Minute / time.Duration(perMinute))
	burst := max(perMinute/6, 5)

	// Drop idle buckets so the map does not grow without bound.
	go func() {
		for range time.Tick(5 * time.Minute) {
			limitersMu.Lock()
			for ip, vl := range limiters {
				if time.Since(vl.lastSeen) > 10*time.Minute {
					delete(limiters, ip)
				}
			}
			limitersMu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		limitersMu.Lock()
		vl, ok := limiters[ip]
		if !ok {
			vl = &visitorLimiter{limiter: rate.NewLimiter(limit, burst)}
			limiters[ip] = vl
		}
		vl.lastSeen = time.Now()
		limitersMu.Unlock()

		if !vl.limiter.Allow() {
			utils.Error(c, http.StatusTooManyRequests, "too many requests, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
