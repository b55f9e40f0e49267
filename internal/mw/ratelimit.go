package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitorLimiters hands out one token bucket per client IP.
type visitorLimiters struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func (v *visitorLimiters) get(ip string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	lim, ok := v.visitors[ip]
	if !ok {
		lim = rate.NewLimiter(v.limit, v.burst)
		v.visitors[ip] = lim
	}
	return lim
}

// RateLimiter rejects requests with 429 once a client IP exhausts its
// token bucket. Kiosk frontends poll aggressively, so the burst should
// comfortably cover one page load.
func RateLimiter(limit rate.Limit, burst int) gin.HandlerFunc {
	limiters := &visitorLimiters{
		visitors: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
