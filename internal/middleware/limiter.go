package middleware

import (
	"math"
	"strconv"

	"github.com/haierkeys/notegpt-sync-service/internal/metrics"
	"github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"
	"github.com/haierkeys/notegpt-sync-service/pkg/limiter"

	"github.com/gin-gonic/gin"
)

// RateLimiter takes one token per request from the caller's bucket. An empty bucket
// gets 429 with Retry-After in whole seconds.
// RateLimiter 每个请求从调用方的令牌桶取一个令牌，桶空时返回 429 并设置 Retry-After
func RateLimiter(l limiter.Face) gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket, ok := l.GetBucket(l.Key(c))
		if !ok || bucket.TakeAvailable(1) > 0 {
			c.Next()
			return
		}

		metrics.RateLimited.WithLabelValues(c.FullPath()).Inc()
		if wait := l.RetryAfter(); wait > 0 {
			c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(wait.Seconds())), 10))
		}
		app.NewResponse(c).AbortWithResponse(code.ErrorTooManyRequests)
	}
}
