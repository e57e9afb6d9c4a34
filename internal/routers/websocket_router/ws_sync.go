package websocket_router

import (
	"context"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/app"
	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	"github.com/haierkeys/notegpt-sync-service/internal/metrics"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/logger"
	"github.com/haierkeys/notegpt-sync-service/pkg/protocol"
	"github.com/haierkeys/notegpt-sync-service/pkg/util"
	"github.com/haierkeys/notegpt-sync-service/pkg/validator"

	"go.uber.org/zap"
)

// SyncWSHandler Sync Coordinator: applies inbound mutations and fans them out to the other connections
// SyncWSHandler 同步协调器：应用入站变更并分发给其他连接
type SyncWSHandler struct {
	*WSHandler
}

// NewSyncWSHandler creates SyncWSHandler instance
// NewSyncWSHandler 创建 SyncWSHandler 实例
func NewSyncWSHandler(a *app.App) *SyncWSHandler {
	return &SyncWSHandler{WSHandler: NewWSHandler(a)}
}

func (h *SyncWSHandler) OnConnect(c *pkgapp.WebsocketClient) {
	h.logInfo(c, "websocket_router.sync.OnConnect")
}

func (h *SyncWSHandler) OnDisconnect(c *pkgapp.WebsocketClient) {
	h.logInfo(c, "websocket_router.sync.OnDisconnect")
}

// OnMessage decodes one frame and dispatches it. Malformed frames are dropped without a reply.
// OnMessage 解码并分发一帧消息，格式错误的帧直接丢弃
func (h *SyncWSHandler) OnMessage(c *pkgapp.WebsocketClient, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		h.logWarn(c, "websocket_router.sync.Decode", zap.Error(err))
		return
	}
	t := msg.Header().Type
	metrics.WSMessages.WithLabelValues(metricType(msg)).Inc()

	if err := h.validate.ValidateStruct(msg); err != nil {
		h.logWarn(c, "websocket_router.sync.Validate",
			zap.String(logger.FieldAction, string(t)),
			zap.Strings(logger.FieldError, validator.Messages(err, h.validate.Translator("en"))))
		return
	}

	// server work outlives the connection that asked for it
	ctx := context.Background()

	switch m := msg.(type) {
	case *protocol.Init:
		h.Init(ctx, c, m)
	case *protocol.NoteChange:
		h.NoteChange(ctx, c, m)
	case *protocol.NoteDelete:
		h.Delete(ctx, c, &m.Envelope, domain.KindNote, m.NoteID)
	case *protocol.TagChange:
		h.LabelChange(ctx, c, &m.Envelope, domain.KindTag, m.Tag)
	case *protocol.TagDelete:
		h.Delete(ctx, c, &m.Envelope, domain.KindTag, m.TagID)
	case *protocol.CategoryChange:
		h.LabelChange(ctx, c, &m.Envelope, domain.KindCategory, m.Category)
	case *protocol.CategoryDelete:
		h.Delete(ctx, c, &m.Envelope, domain.KindCategory, m.CategoryID)
	case *protocol.RelationChange:
		h.Relation(ctx, c, m)
	case *protocol.Ping:
		h.reply(c, &protocol.Pong{}, protocol.TypePong)
	case *protocol.Pong:
		// liveness was refreshed by the transport
	case *protocol.InitResponse, *protocol.InitResponseNorm, *protocol.Ack:
		h.logDebug(c, "websocket_router.sync.ServerBound", zap.String(logger.FieldAction, string(t)))
	case *protocol.Unknown:
		h.logWarn(c, "websocket_router.sync.UnknownType", zap.String(logger.FieldAction, string(t)))
	default:
		h.logWarn(c, "websocket_router.sync.Unhandled", zap.String(logger.FieldAction, string(t)))
	}
}

func metricType(m protocol.Message) string {
	if _, ok := m.(*protocol.Unknown); ok {
		return "UNKNOWN"
	}
	return string(m.Header().Type)
}

// Init replies with the full snapshot, normalized unless the client asked for the flat form
// Init 返回全量快照，客户端要求 flat 格式时仅返回笔记
func (h *SyncWSHandler) Init(ctx context.Context, c *pkgapp.WebsocketClient, m *protocol.Init) {
	start := time.Now()
	snap, err := h.sync.Snapshot(ctx)
	if err != nil {
		h.ackError(c, &m.Envelope, "websocket_router.sync.Init", err)
		return
	}

	if m.Format == protocol.FormatFlat {
		h.reply(c, &protocol.InitResponse{Notes: protocol.NotesFromDomain(snap.Notes)}, protocol.TypeInitResponse)
	} else {
		h.reply(c, &protocol.InitResponseNorm{Payload: protocol.PayloadFromSnapshot(snap)}, protocol.TypeInitResponseNorm)
	}
	h.logInfo(c, "websocket_router.sync.Init",
		zap.Int("notes", len(snap.Notes)),
		zap.Int("tags", len(snap.Tags)),
		zap.Int("categories", len(snap.Categories)),
		zap.Duration(logger.FieldDuration, time.Since(start)))
}

// NoteChange handles CREATE and UPDATE
// NoteChange 处理 CREATE 与 UPDATE
func (h *SyncWSHandler) NoteChange(ctx context.Context, c *pkgapp.WebsocketClient, m *protocol.NoteChange) {
	res, err := h.sync.UpsertNote(ctx, m.Note.ToDomain())
	if err != nil {
		h.ackError(c, &m.Envelope, "websocket_router.sync.NoteChange", err)
		return
	}
	if res.Applied {
		h.broadcast(c, &protocol.NoteChange{Note: protocol.NoteFromDomain(res.Current)}, m.Type)
	}
	h.ack(c, &m.Envelope, res.Applied)
}

// LabelChange handles TAG_CREATE/TAG_UPDATE and CATEGORY_CREATE/CATEGORY_UPDATE
// LabelChange 处理标签与分类的创建和更新
func (h *SyncWSHandler) LabelChange(ctx context.Context, c *pkgapp.WebsocketClient, in *protocol.Envelope, kind domain.Kind, l *protocol.Label) {
	res, err := h.sync.UpsertLabel(ctx, kind, l.ToDomain())
	if err != nil {
		h.ackError(c, in, "websocket_router.sync.LabelChange", err)
		return
	}
	if res.Applied {
		h.broadcast(c, labelChange(kind, protocol.LabelFromDomain(res.Current)), in.Type)
	}
	h.ack(c, in, res.Applied)
}

// Delete removes an entity and announces every relation the cascade removed
// Delete 删除实体，并逐条广播级联删除的关联
func (h *SyncWSHandler) Delete(ctx context.Context, c *pkgapp.WebsocketClient, in *protocol.Envelope, kind domain.Kind, id string) {
	intentAt := util.UnixMilli(in.Timestamp)

	var res domain.DeleteResult
	var err error
	if kind == domain.KindNote {
		res, err = h.sync.DeleteNote(ctx, id, intentAt)
	} else {
		res, err = h.sync.DeleteLabel(ctx, kind, id, intentAt)
	}
	if err != nil {
		h.ackError(c, in, "websocket_router.sync.Delete", err)
		return
	}

	if res.Existed && !res.Stale {
		h.broadcast(c, labelDelete(kind, id), protocol.DeleteType(kind))
		for _, rel := range res.Relations {
			h.broadcast(c, protocol.NewRelationChange(rel), protocol.TypeRelationRemove)
		}
	}
	h.ack(c, in, !res.Stale)
}

// Relation handles RELATION_ADD and RELATION_REMOVE; both are idempotent and always fan out
// Relation 处理关联的添加与移除，操作幂等且总是广播
func (h *SyncWSHandler) Relation(ctx context.Context, c *pkgapp.WebsocketClient, m *protocol.RelationChange) {
	rel := m.Relation()

	var err error
	if m.Type == protocol.TypeRelationAdd {
		_, err = h.sync.Link(ctx, rel)
	} else {
		_, err = h.sync.Unlink(ctx, rel)
	}
	if err != nil {
		h.ackError(c, &m.Envelope, "websocket_router.sync.Relation", err)
		return
	}

	h.broadcast(c, protocol.NewRelationChange(rel), m.Type)
	h.ack(c, &m.Envelope, true)
}

func labelChange(kind domain.Kind, l *protocol.Label) protocol.Message {
	if kind == domain.KindTag {
		return &protocol.TagChange{Tag: l}
	}
	return &protocol.CategoryChange{Category: l}
}

func labelDelete(kind domain.Kind, id string) protocol.Message {
	switch kind {
	case domain.KindTag:
		return &protocol.TagDelete{TagID: id}
	case domain.KindCategory:
		return &protocol.CategoryDelete{CategoryID: id}
	}
	return &protocol.NoteDelete{NoteID: id}
}
