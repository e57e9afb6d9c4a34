package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// ContextTimeout bounds the request context. A handler that runs past the deadline
// without writing anything is answered with 503; timeout <= 0 disables the bound.
// ContextTimeout 限制请求上下文时长，超时且未写出响应时返回 503
func ContextTimeout(timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			app.NewResponse(c).AbortWithResponse(code.ErrorServerBusy.WithDetails("request timed out after " + timeout.String()))
		}
	}
}
