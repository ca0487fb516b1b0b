// Package httpkit holds the gin middleware, response helpers and caller
// identity shared by every HTTP module.
package httpkit

import (
	"net/http"
	"sync"
	"time"

	"itou_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RequestLogger emits one line per request once the handler chain returns.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		log.HTTPRequest(c.Request.Method, route, c.Writer.Status(),
			float64(time.Since(start).Milliseconds()), c.ClientIP())
	}
}

// SecurityHeaders sets headers suited to a JSON-only API.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		if c.Request.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	buckets sync.Map
	limit   rate.Limit
	burst   int
	log     *logger.Logger
}

func NewIPRateLimiter(limit rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{limit: limit, burst: burst, log: log}
}

func (i *IPRateLimiter) bucket(ip string) *rate.Limiter {
	if l, ok := i.buckets.Load(ip); ok {
		return l.(*rate.Limiter)
	}
	l, _ := i.buckets.LoadOrStore(ip, rate.NewLimiter(i.limit, i.burst))
	return l.(*rate.Limiter)
}

// RateLimit answers 429 once the caller's bucket is empty.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if i.bucket(ip).Allow() {
			c.Next()
			return
		}
		if i.log != nil {
			i.log.RateLimitExceeded(ip, c.Request.URL.Path)
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
	}
}
