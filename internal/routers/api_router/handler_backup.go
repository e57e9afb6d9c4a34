package api_router

import (
	"github.com/haierkeys/notegpt-sync-service/internal/app"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// BackupHandler 快照备份处理器
type BackupHandler struct {
	*Handler
}

// NewBackupHandler 创建 BackupHandler 实例
func NewBackupHandler(a *app.App) *BackupHandler {
	return &BackupHandler{Handler: NewHandler(a)}
}

// Run uploads a snapshot backup now
// Run 立即执行一次快照备份
// @Summary 执行快照备份
// @Tags 同步
// @Security APIKey
// @Produce json
// @Success 200 {object} pkgapp.Res{data=service.BackupResult} "成功"
// @Router /v1/backup [post]
func (h *BackupHandler) Run(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	if h.App.BackupService == nil {
		response.ToResponse(code.ErrorBackupDisabled)
		return
	}

	res, err := h.App.BackupService.Run(c.Request.Context())
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.Run", err)
		response.ToResponse(code.ErrorBackupFailed)
		return
	}
	response.ToResponse(code.Success.WithData(res))
}

// List 列出已有的快照备份
// @Summary 快照备份列表
// @Tags 同步
// @Security APIKey
// @Produce json
// @Router /v1/backup [get]
func (h *BackupHandler) List(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	if h.App.BackupService == nil {
		response.ToResponse(code.ErrorBackupDisabled)
		return
	}

	objs, err := h.App.BackupService.List(c.Request.Context())
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.List", err)
		response.ToResponse(code.ErrorBackupFailed)
		return
	}
	response.ToResponse(code.Success.WithData(objs))
}
