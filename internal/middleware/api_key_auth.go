package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader 请求 API Key 的请求头
const APIKeyHeader = "x-api-key"

// RequestAPIKey returns the key from x-api-key, falling back to a bearer Authorization header
// RequestAPIKey 读取 x-api-key，缺失时回退到 Authorization 头
func RequestAPIKey(c *gin.Context) string {
	if s := c.GetHeader(APIKeyHeader); s != "" {
		return s
	}
	s := c.GetHeader("Authorization")
	if len(s) > 7 && strings.EqualFold(s[:7], "bearer ") {
		return s[7:]
	}
	return s
}

// APIKeyAuth 简单 Token 认证中间件，authToken 为空时不校验
func APIKeyAuth(authToken string) gin.HandlerFunc {
	return func(c *gin.Context) {

		if authToken == "" {
			c.Next()
			return
		}

		if subtle.ConstantTimeCompare([]byte(RequestAPIKey(c)), []byte(authToken)) != 1 {
			app.NewResponse(c).AbortWithResponse(code.ErrorInvalidAuthToken)
			return
		}
		c.Next()
	}
}
