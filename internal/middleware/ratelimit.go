package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
	"github.com/noah-isme/hostelx-api/pkg/ratelimit"
	"github.com/noah-isme/hostelx-api/pkg/response"
)

// RateLimitRecorder counts rejected calls per route.
type RateLimitRecorder interface {
	RecordRateLimited(route string)
}

// RateLimit admits at most limit calls per window for each caller. Callers are
// keyed by user id when authenticated and by client IP otherwise, so it should
// run after JWT or OptionalJWT.
func RateLimit(limiter ratelimit.Limiter, name string, limit int, recorder RateLimitRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}
		key := name + ":ip:" + c.ClientIP()
		if claims := Claims(c); claims != nil {
			key = name + ":user:" + claims.UserID
		}

		decision := limiter.Allow(key, limit)
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.ResetAt.IsZero() {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}
		if !decision.Allowed {
			if recorder != nil {
				recorder.RecordRateLimited(name)
			}
			response.Error(c, appErrors.Clone(appErrors.ErrTooManyRequests, "too many attempts, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
