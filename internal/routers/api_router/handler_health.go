// Package api_router 提供 HTTP API 路由处理器
package api_router

import (
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/app"
	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	*Handler
}

// NewHealthHandler 创建健康检查处理器实例
func NewHealthHandler(a *app.App) *HealthHandler {
	return &HealthHandler{Handler: NewHandler(a)}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status      string        `json:"status"`      // "healthy" 或 "unhealthy"
	Version     string        `json:"version"`     // 服务版本号
	Uptime      float64       `json:"uptime"`      // 运行时间（秒）
	Database    string        `json:"database"`    // "connected" 或 "error"
	Connections int           `json:"connections"` // 在线同步连接数
	Counts      domain.Counts `json:"counts"`      // 各集合数量
}

// Check 健康检查接口
// @Summary 健康检查
// @Description 检查服务健康状态，包括数据库连接与在线连接数
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /api/health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	response := HealthResponse{
		Status:      "healthy",
		Version:     h.App.Version().Version,
		Uptime:      time.Since(h.App.StartTime).Seconds(),
		Database:    "connected",
		Connections: h.App.Registry.Count(),
	}

	counts, err := h.App.SyncService.Counts(c.Request.Context())
	if err != nil {
		h.logError(c.Request.Context(), "HealthHandler.Check", err)
		response.Status = "unhealthy"
		response.Database = "error"
		pkgapp.NewResponse(c).ToResponse(code.ErrorServerBusy.WithData(response))
		return
	}
	response.Counts = counts

	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(response))
}
