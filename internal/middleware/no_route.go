package middleware

import (
	"github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// NoRoute answers unknown paths with the 502 envelope and echoes what was asked for
// NoRoute 未知路径返回 502 错误码，并带上请求的方法与路径
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		app.NewResponse(c).AbortWithResponse(code.ErrorNotFound.WithDetails(c.Request.Method + " " + c.Request.URL.Path))
	}
}
