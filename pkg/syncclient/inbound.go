package syncclient

import (
	"context"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	"github.com/haierkeys/notegpt-sync-service/pkg/protocol"

	"github.com/lxzan/gws"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type outgoing struct {
	key string
	msg protocol.Message
	typ protocol.Type
}

func (a *Agent) handle(ctx context.Context, socket *gws.Conn, m protocol.Message) {
	switch v := m.(type) {
	case *protocol.InitResponseNorm:
		a.adopt(v.ClientID)
		a.becomeReady(socket, a.merge(ctx, v.Payload.ToSnapshot()))
	case *protocol.InitResponse:
		a.adopt(v.ClientID)
		snap := &domain.Snapshot{}
		for _, n := range v.Notes {
			if n != nil {
				snap.Notes = append(snap.Notes, n.ToDomain())
			}
		}
		a.becomeReady(socket, a.merge(ctx, snap))
	case *protocol.Ack:
		a.ack(v)
	case *protocol.Ping:
		if err := a.write(socket, a.stamp(&protocol.Pong{}, protocol.TypePong)); err != nil {
			a.log.Debug("sync PONG failed", zap.Error(err))
		}
	case *protocol.Pong:
	case *protocol.Unknown:
		a.log.Debug("sync unknown message", zap.String("type", string(v.Type)))
	default:
		if a.isEcho(m) {
			return
		}
		if a.applyRemote(ctx, m) && a.opts.OnRemote != nil {
			a.opts.OnRemote(m)
		}
	}
}

func (a *Agent) adopt(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id != "" {
		a.clientID = id
	}
}

func (a *Agent) isEcho(m protocol.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := m.Header().ClientID
	return id != "" && id == a.clientID
}

// skip reports whether remote state for key must not touch the local store: the entity
// is being edited, or a local delete for it is still queued
// skip 实体正在编辑或本地删除尚未发出时忽略远端状态
func (a *Agent) skip(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.editing[key] || a.outbox.isDelete(key)
}

// merge runs every remote entity through LWW against the local store and returns the
// local rows that won, to be sent back as updates
// merge 将远端实体逐一按 LWW 合并到本地，返回本地胜出需回传的实体
func (a *Agent) merge(ctx context.Context, snap *domain.Snapshot) []outgoing {
	var winners []outgoing

	for _, n := range snap.Notes {
		key := entityKey(domain.KindNote, n.ID)
		if a.skip(key) {
			continue
		}
		res, err := a.store.UpsertNote(ctx, n)
		if err != nil {
			a.log.Warn("sync merge note failed", zap.String("id", n.ID), zap.Error(err))
			continue
		}
		if !res.Applied && res.Current.UpdatedAt.After(domain.NormalizeTime(n.UpdatedAt)) {
			winners = append(winners, outgoing{key, &protocol.NoteChange{Note: protocol.NoteFromDomain(res.Current)}, protocol.TypeUpdate})
		}
	}

	for kind, labels := range map[domain.Kind][]*domain.Label{domain.KindTag: snap.Tags, domain.KindCategory: snap.Categories} {
		_, update := protocol.UpsertTypes(kind)
		for _, l := range labels {
			key := entityKey(kind, l.ID)
			if a.skip(key) {
				continue
			}
			res, err := a.store.UpsertLabel(ctx, kind, l)
			if err != nil {
				a.log.Warn("sync merge label failed", zap.String("kind", string(kind)), zap.String("id", l.ID), zap.Error(err))
				continue
			}
			if !res.Applied && res.Current.UpdatedAt.After(domain.NormalizeTime(l.UpdatedAt)) {
				winners = append(winners, outgoing{key, labelChange(kind, protocol.LabelFromDomain(res.Current)), update})
			}
		}
	}

	for _, rel := range append(append([]domain.Relation(nil), snap.NoteTags...), snap.NoteCategories...) {
		if a.skip(relationKey(rel)) {
			continue
		}
		a.link(ctx, rel)
	}
	return winners
}

// becomeReady queues the merge winners behind the offline frames and flushes them all
// becomeReady 将合并胜出的实体排在离线消息之后并全部发送
func (a *Agent) becomeReady(socket *gws.Conn, winners []outgoing) {
	a.mu.Lock()
	if socket != a.conn {
		a.mu.Unlock()
		return
	}
	for _, w := range winners {
		if _, queued := a.outbox.get(w.key); !queued {
			a.outbox.put(w.key, a.stampLocked(w.msg, w.typ), false)
		}
	}
	frames := a.outbox.drain()
	for _, m := range frames {
		m.Header().ClientID = a.clientID
		a.inflight[m.Header().Timestamp] = m.Header().Type
	}
	a.ready = true
	a.mu.Unlock()

	for i, m := range frames {
		if err := a.write(socket, m); err != nil {
			a.log.Warn("sync flush interrupted", zap.Int("unsent", len(frames)-i), zap.Error(err))
			a.requeue(frames[i:])
			return
		}
	}
	if len(frames) > 0 {
		a.log.Info("sync outbox flushed", zap.Int("frames", len(frames)))
	}
}

func (a *Agent) requeue(frames []protocol.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range frames {
		delete(a.inflight, m.Header().Timestamp)
		if key := frameKey(m); key != "" {
			a.outbox.put(key, m, false)
		}
	}
}

func (a *Agent) ack(m *protocol.Ack) {
	a.mu.Lock()
	t := a.inflight[m.OriginalTimestamp]
	delete(a.inflight, m.OriginalTimestamp)
	a.mu.Unlock()

	if m.Error == nil {
		return
	}
	e := MutationError{Type: t, OriginalTimestamp: m.OriginalTimestamp, Code: m.Error.Code, Message: m.Error.Message}
	a.log.Warn("sync mutation rejected",
		zap.String("type", string(t)),
		zap.Int("code", e.Code),
		zap.String("message", e.Message))
	if a.opts.OnError != nil {
		a.opts.OnError(e)
	}
}

// applyRemote writes a broadcast from another client into the local store
// applyRemote 将其他客户端的广播写入本地存储
func (a *Agent) applyRemote(ctx context.Context, m protocol.Message) bool {
	var err error
	switch v := m.(type) {
	case *protocol.NoteChange:
		if v.Note == nil || a.skip(entityKey(domain.KindNote, v.Note.ID)) {
			return false
		}
		_, err = a.store.UpsertNote(ctx, v.Note.ToDomain())
	case *protocol.NoteDelete:
		if a.skip(entityKey(domain.KindNote, v.NoteID)) {
			return false
		}
		_, err = a.store.DeleteNote(ctx, v.NoteID, time.Time{})
	case *protocol.TagChange:
		return a.applyLabel(ctx, domain.KindTag, v.Tag)
	case *protocol.CategoryChange:
		return a.applyLabel(ctx, domain.KindCategory, v.Category)
	case *protocol.TagDelete:
		return a.deleteRemoteLabel(ctx, domain.KindTag, v.TagID)
	case *protocol.CategoryDelete:
		return a.deleteRemoteLabel(ctx, domain.KindCategory, v.CategoryID)
	case *protocol.RelationChange:
		rel := v.Relation()
		if a.skip(relationKey(rel)) {
			return false
		}
		if v.Type == protocol.TypeRelationAdd {
			return a.link(ctx, rel)
		}
		_, err = a.store.UnlinkRelation(ctx, rel)
	default:
		a.log.Debug("sync message ignored", zap.String("type", string(m.Header().Type)))
		return false
	}
	if err != nil {
		a.log.Warn("sync apply remote failed", zap.String("type", string(m.Header().Type)), zap.Error(err))
		return false
	}
	return true
}

func (a *Agent) applyLabel(ctx context.Context, kind domain.Kind, l *protocol.Label) bool {
	if l == nil || a.skip(entityKey(kind, l.ID)) {
		return false
	}
	if _, err := a.store.UpsertLabel(ctx, kind, l.ToDomain()); err != nil {
		a.log.Warn("sync apply remote label failed", zap.String("kind", string(kind)), zap.Error(err))
		return false
	}
	return true
}

func (a *Agent) deleteRemoteLabel(ctx context.Context, kind domain.Kind, id string) bool {
	if a.skip(entityKey(kind, id)) {
		return false
	}
	if _, err := a.store.DeleteLabel(ctx, kind, id, time.Time{}); err != nil {
		a.log.Warn("sync apply remote delete failed", zap.String("kind", string(kind)), zap.Error(err))
		return false
	}
	return true
}

// link tolerates relations whose endpoints have not reached this client
func (a *Agent) link(ctx context.Context, rel domain.Relation) bool {
	if _, err := a.store.LinkRelation(ctx, rel); err != nil {
		if errors.Is(err, domain.ErrRelationTarget) {
			a.log.Debug("sync relation endpoint missing", zap.String("relation", rel.Key()))
		} else {
			a.log.Warn("sync link failed", zap.String("relation", rel.Key()), zap.Error(err))
		}
		return false
	}
	return true
}

func labelChange(kind domain.Kind, l *protocol.Label) protocol.Message {
	if kind == domain.KindTag {
		return &protocol.TagChange{Tag: l}
	}
	return &protocol.CategoryChange{Category: l}
}

func labelDelete(kind domain.Kind, id string) protocol.Message {
	if kind == domain.KindTag {
		return &protocol.TagDelete{TagID: id}
	}
	return &protocol.CategoryDelete{CategoryID: id}
}

// frameKey recovers the outbox key of a mutation frame
func frameKey(m protocol.Message) string {
	switch v := m.(type) {
	case *protocol.NoteChange:
		if v.Note != nil {
			return entityKey(domain.KindNote, v.Note.ID)
		}
	case *protocol.NoteDelete:
		return entityKey(domain.KindNote, v.NoteID)
	case *protocol.TagChange:
		if v.Tag != nil {
			return entityKey(domain.KindTag, v.Tag.ID)
		}
	case *protocol.TagDelete:
		return entityKey(domain.KindTag, v.TagID)
	case *protocol.CategoryChange:
		if v.Category != nil {
			return entityKey(domain.KindCategory, v.Category.ID)
		}
	case *protocol.CategoryDelete:
		return entityKey(domain.KindCategory, v.CategoryID)
	case *protocol.RelationChange:
		return relationKey(v.Relation())
	}
	return ""
}
