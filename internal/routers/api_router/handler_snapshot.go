package api_router

import (
	"github.com/haierkeys/notegpt-sync-service/internal/app"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"
	"github.com/haierkeys/notegpt-sync-service/pkg/protocol"

	"github.com/gin-gonic/gin"
)

// SnapshotHandler 全量快照处理器
type SnapshotHandler struct {
	*Handler
}

// NewSnapshotHandler 创建 SnapshotHandler 实例
func NewSnapshotHandler(a *app.App) *SnapshotHandler {
	return &SnapshotHandler{Handler: NewHandler(a)}
}

// Get returns the same normalized payload a sync client receives after INIT
// Get 返回与同步客户端 INIT 后收到的相同的规范化快照
// @Summary 获取全量快照
// @Tags 同步
// @Security APIKey
// @Produce json
// @Success 200 {object} pkgapp.Res{data=protocol.NormalizedPayload} "成功"
// @Router /v1/snapshot [get]
func (h *SnapshotHandler) Get(c *gin.Context) {
	response := pkgapp.NewResponse(c)

	snap, err := h.App.SyncService.Snapshot(c.Request.Context())
	if err != nil {
		h.logError(c.Request.Context(), "SnapshotHandler.Get", err)
		response.ToResponse(code.ErrorStorageFailure)
		return
	}

	response.ToResponse(code.Success.WithData(protocol.PayloadFromSnapshot(snap)))
}
