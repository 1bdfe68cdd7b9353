package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type keyedLimiter interface {
	Allow(key string, now time.Time) bool
}

// RateLimit throttles requests per authenticated actor, falling back to the client IP.
func RateLimit(limiter keyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := c.ClientIP()
		if claims := CurrentClaims(c); claims != nil && claims.UserID != "" {
			key = "user:" + claims.UserID
		}
		if !limiter.Allow(key, time.Now()) {
			c.Header("Retry-After", "1")
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
