package api_router

import (
	"expvar"
	"fmt"
	"sync"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/app"

	"github.com/gin-gonic/gin"
)

var publishOnce sync.Once

// PublishExpvar exposes the live connection count and uptime of a under "sync"
// PublishExpvar 以 "sync" 导出在线连接数与运行时长
// Only the first App passed is published.
func PublishExpvar(a *app.App) {
	publishOnce.Do(func() {
		expvar.Publish("sync", expvar.Func(func() any {
			return map[string]any{
				"connections": a.Registry.Count(),
				"uptime":      time.Since(a.StartTime).Seconds(),
				"version":     a.Version().Version,
			}
		}))
	})
}

// Expvar writes every published expvar variable as one JSON object
// Expvar 以 JSON 对象输出所有 expvar 变量
func Expvar(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprint(c.Writer, "{\n")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprint(c.Writer, ",\n")
		}
		first = false
		fmt.Fprintf(c.Writer, "%q: %s", kv.Key, kv.Value.String())
	})
	fmt.Fprint(c.Writer, "\n}\n")
}
