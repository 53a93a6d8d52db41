package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oriys/cachebridge/internal/auth"
	"github.com/oriys/cachebridge/internal/logging"
)

// Middleware limits each authenticated subject, or each client address for
// anonymous requests. Backend failures let the request through.
func Middleware(limiter *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if id := auth.GetIdentity(c.Request.Context()); id != nil && id.Subject != "" {
			key = KeyForSubject(id.Subject)
		} else {
			key = KeyForIP(c.ClientIP())
		}

		result, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logging.Op().Warn("rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "too many requests, please retry later",
			})
			return
		}

		c.Next()
	}
}
