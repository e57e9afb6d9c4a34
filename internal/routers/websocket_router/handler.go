// Package websocket_router 提供 WebSocket 同步协调器
package websocket_router

import (
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/app"
	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	"github.com/haierkeys/notegpt-sync-service/internal/metrics"
	"github.com/haierkeys/notegpt-sync-service/internal/service"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"
	"github.com/haierkeys/notegpt-sync-service/pkg/logger"
	"github.com/haierkeys/notegpt-sync-service/pkg/protocol"
	"github.com/haierkeys/notegpt-sync-service/pkg/validator"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// WSHandler WebSocket 基础 Handler，封装同步协调器的依赖
type WSHandler struct {
	sync     service.SyncService
	validate *validator.CustomValidator
	logger   *zap.Logger
	now      func() time.Time
}

// NewWSHandler builds the handler from the App container
// NewWSHandler 从 App 容器创建 Handler
func NewWSHandler(a *app.App) *WSHandler {
	return newWSHandler(a.SyncService, a.WSValidator, a.Logger())
}

func newWSHandler(svc service.SyncService, v *validator.CustomValidator, lg *zap.Logger) *WSHandler {
	if lg == nil {
		lg = zap.NewNop()
	}
	if v == nil {
		v = validator.NewCustomValidator("validate")
	}
	return &WSHandler{sync: svc, validate: v, logger: lg, now: time.Now}
}

func (h *WSHandler) fields(c *pkgapp.WebsocketClient, fields []zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String(logger.FieldTraceID, c.TraceID),
		zap.String(logger.FieldClientID, c.ID),
	}, fields...)
}

// logError 记录错误日志，包含 Trace ID 与连接 ID
func (h *WSHandler) logError(c *pkgapp.WebsocketClient, method string, err error, fields ...zap.Field) {
	h.logger.Error(method, h.fields(c, append(fields, zap.Error(err)))...)
}

func (h *WSHandler) logWarn(c *pkgapp.WebsocketClient, method string, fields ...zap.Field) {
	h.logger.Warn(method, h.fields(c, fields)...)
}

func (h *WSHandler) logInfo(c *pkgapp.WebsocketClient, method string, fields ...zap.Field) {
	h.logger.Info(method, h.fields(c, fields)...)
}

func (h *WSHandler) logDebug(c *pkgapp.WebsocketClient, method string, fields ...zap.Field) {
	h.logger.Debug(method, h.fields(c, fields)...)
}

// encode stamps m with the sender's server-assigned id and serializes it
// encode 使用发送方的服务端 ID 标记消息并序列化
func (h *WSHandler) encode(c *pkgapp.WebsocketClient, m protocol.Message, t protocol.Type) ([]byte, bool) {
	frame, err := protocol.Encode(protocol.Stamp(m, t, c.ID, h.now()))
	if err != nil {
		h.logError(c, "websocket_router.encode", err, zap.String(logger.FieldAction, string(t)))
		return nil, false
	}
	return frame, true
}

// reply 单播给当前连接
func (h *WSHandler) reply(c *pkgapp.WebsocketClient, m protocol.Message, t protocol.Type) {
	if frame, ok := h.encode(c, m, t); ok {
		c.Send(frame)
	}
}

// broadcast 广播给除发送方外的所有连接
func (h *WSHandler) broadcast(c *pkgapp.WebsocketClient, m protocol.Message, t protocol.Type) {
	frame, ok := h.encode(c, m, t)
	if !ok {
		return
	}
	n := c.Broadcast(frame)
	metrics.WSBroadcasts.WithLabelValues(string(t)).Inc()
	h.logDebug(c, "websocket_router.broadcast", zap.String(logger.FieldAction, string(t)), zap.Int(logger.FieldCount, n))
}

// ack 确认一条变更消息
func (h *WSHandler) ack(c *pkgapp.WebsocketClient, in *protocol.Envelope, applied bool) {
	h.reply(c, &protocol.Ack{OriginalTimestamp: in.Timestamp, Applied: applied}, protocol.TypeAck)
}

// ackError reports a failed mutation to its sender only
// ackError 仅向发送方报告变更失败
func (h *WSHandler) ackError(c *pkgapp.WebsocketClient, in *protocol.Envelope, method string, err error) {
	codeErr := errorCode(err)
	if errors.Is(err, domain.ErrRelationTarget) {
		h.logWarn(c, method, zap.Error(err))
	} else {
		h.logError(c, method, err)
	}
	h.reply(c, &protocol.Ack{
		OriginalTimestamp: in.Timestamp,
		Error:             &protocol.AckError{Code: codeErr.Code(), Message: codeErr.Msg()},
	}, protocol.TypeAck)
}

func errorCode(err error) *code.Code {
	switch {
	case errors.Is(err, domain.ErrRelationTarget):
		return code.ErrorRelationTarget
	case errors.Is(err, domain.ErrUnknownKind):
		return code.ErrorUnknownKind
	case errors.Is(err, domain.ErrStorageFailure):
		return code.ErrorStorageFailure
	}
	return code.ErrorServerInternal
}
