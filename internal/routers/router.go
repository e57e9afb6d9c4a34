package routers

import (
	"net/http"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/app"
	"github.com/haierkeys/notegpt-sync-service/internal/middleware"
	"github.com/haierkeys/notegpt-sync-service/internal/routers/api_router"
	"github.com/haierkeys/notegpt-sync-service/internal/routers/websocket_router"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/lxzan/gws"
)

// NewRouter builds the public router: /v1/sync, /v1/generate, /v1/snapshot, /v1/backup and /api/health
// NewRouter 创建公共路由
func NewRouter(appContainer *app.App, uni *ut.UniversalTranslator) *gin.Engine {

	// 获取配置
	cfg := appContainer.Config()

	wss := pkgapp.NewWebsocketServer(pkgapp.WebsocketServerConfig{
		GWSOption: gws.ServerOption{
			CheckUtf8Enabled:   true,
			Recovery:           gws.Recovery,                         // 开启异常恢复
			PermessageDeflate:  gws.PermessageDeflate{Enabled: true}, // 开启压缩
			ReadMaxPayloadSize: cfg.Sync.MaxMessageSize,
		},
		Token: cfg.Security.SyncToken,
	}, appContainer.Registry, websocket_router.NewSyncWSHandler(appContainer), appContainer.Logger())

	api_router.PublishExpvar(appContainer)

	r := gin.New()
	r.Use(middleware.RecoveryWithLogger(appContainer.Logger()))
	r.Use(middleware.AppInfo(app.Name, appContainer.Version().Version))
	r.Use(middleware.TraceMiddlewareWithConfig(cfg.Tracer.Enabled, cfg.Tracer.Header)) // Trace ID 中间件
	r.Use(middleware.LangWithTranslator(uni))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, app.Name)
	})

	// 同步连接的生命周期由 gws 管理，不经过访问日志
	r.GET("/v1/sync", wss.Run())

	apiKey := middleware.APIKeyAuth(cfg.Security.APIToken)

	v1 := r.Group("/v1")
	{
		v1.Use(middleware.AccessLogWithLogger(appContainer.Logger()))

		generateHandler := api_router.NewGenerateHandler(appContainer)
		snapshotHandler := api_router.NewSnapshotHandler(appContainer)
		backupHandler := api_router.NewBackupHandler(appContainer)

		generate := []gin.HandlerFunc{apiKey}
		if cfg.RateLimit.Enabled {
			generate = append(generate, middleware.RateLimiter(appContainer.Limiter))
		}
		v1.POST("/generate", append(generate, generateHandler.Generate)...)

		v1.GET("/snapshot", apiKey,
			middleware.ContextTimeout(time.Duration(cfg.App.DefaultContextTimeout)*time.Second),
			snapshotHandler.Get)

		v1.GET("/backup", apiKey, backupHandler.List)
		v1.POST("/backup", apiKey, backupHandler.Run)
	}

	api := r.Group("/api")
	{
		api.Use(middleware.AccessLogWithLogger(appContainer.Logger()))

		healthHandler := api_router.NewHealthHandler(appContainer)
		api.GET("/health", healthHandler.Check)
	}

	r.NoRoute(middleware.NoRoute())

	return r
}
