package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"
	"github.com/haierkeys/notegpt-sync-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryWithLogger 创建带日志器的 Recovery 中间件（支持依赖注入）
func RecoveryWithLogger(lg *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				var errorMsg string
				fields := []zap.Field{
					zap.String(logger.FieldTraceID, GetTraceIDFromGin(c)),
					zap.String("router", c.Request.URL.Path),
					zap.String(logger.FieldMethod, c.Request.Method),
					zap.String("query", c.Request.URL.RawQuery),
					zap.String("ip", c.ClientIP()),
					zap.String("stack", string(debug.Stack())),
				}
				switch v := err.(type) {
				case error:
					errorMsg = v.Error()
					lg.Error("Recovered from panic", append(fields, zap.Error(v))...)
				default:
					errorMsg = fmt.Sprintf("%v", v)
					lg.Error("Recovered from unknown panic", append(fields, zap.String("panic_value", errorMsg))...)
				}

				// SSE handlers may already have written headers
				if c.Writer.Written() {
					c.Abort()
					return
				}
				app.NewResponse(c).AbortWithResponse(code.ErrorServerInternal.WithDetails(errorMsg))
			}
		}()

		c.Next()
	}
}
