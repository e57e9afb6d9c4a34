package syncclient

import (
	"context"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	"github.com/haierkeys/notegpt-sync-service/pkg/protocol"

	"go.uber.org/zap"
)

// SaveNote applies a note locally and sends CREATE or UPDATE. A zero UpdatedAt is set
// to now. Nothing is sent when the local copy is already newer.
// SaveNote 先写本地再发送 CREATE/UPDATE；UpdatedAt 为零时取当前时间，本地副本更新时不发送
func (a *Agent) SaveNote(ctx context.Context, note *domain.Note) error {
	n := note.Clone()
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}
	n.Normalize()

	prev, err := a.store.GetNote(ctx, n.ID)
	if err != nil {
		return err
	}
	res, err := a.store.UpsertNote(ctx, n)
	if err != nil {
		return err
	}
	if !res.Applied {
		a.log.Debug("sync local note is newer", zap.String("id", n.ID))
		return nil
	}

	create, update := protocol.UpsertTypes(domain.KindNote)
	t := update
	if prev == nil {
		t = create
	}
	a.send(entityKey(domain.KindNote, n.ID), &protocol.NoteChange{Note: protocol.NoteFromDomain(res.Current)}, t, false)
	return nil
}

// DeleteNote removes a note and its relations locally, then sends DELETE
// DeleteNote 删除本地笔记及其关联，然后发送 DELETE
func (a *Agent) DeleteNote(ctx context.Context, id string) error {
	a.dropEdit(id)
	if _, err := a.store.DeleteNote(ctx, id, time.Time{}); err != nil {
		return err
	}

	a.mu.Lock()
	a.outbox.dropRelations(func(r domain.Relation) bool { return r.NoteID == id })
	a.mu.Unlock()

	a.send(entityKey(domain.KindNote, id), &protocol.NoteDelete{NoteID: id}, protocol.TypeDelete, true)
	return nil
}

// SaveTag 保存标签并发送 TAG_CREATE/TAG_UPDATE
func (a *Agent) SaveTag(ctx context.Context, tag *domain.Label) error {
	return a.saveLabel(ctx, domain.KindTag, tag)
}

// DeleteTag 删除标签并发送 TAG_DELETE
func (a *Agent) DeleteTag(ctx context.Context, id string) error {
	return a.deleteLabel(ctx, domain.KindTag, id)
}

// SaveCategory 保存分类并发送 CATEGORY_CREATE/CATEGORY_UPDATE
func (a *Agent) SaveCategory(ctx context.Context, category *domain.Label) error {
	return a.saveLabel(ctx, domain.KindCategory, category)
}

// DeleteCategory 删除分类并发送 CATEGORY_DELETE
func (a *Agent) DeleteCategory(ctx context.Context, id string) error {
	return a.deleteLabel(ctx, domain.KindCategory, id)
}

func (a *Agent) saveLabel(ctx context.Context, kind domain.Kind, label *domain.Label) error {
	l := label.Clone()
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = time.Now()
	}
	l.Normalize()

	prev, err := a.store.GetLabel(ctx, kind, l.ID)
	if err != nil {
		return err
	}
	res, err := a.store.UpsertLabel(ctx, kind, l)
	if err != nil {
		return err
	}
	if !res.Applied {
		a.log.Debug("sync local label is newer", zap.String("kind", string(kind)), zap.String("id", l.ID))
		return nil
	}

	create, update := protocol.UpsertTypes(kind)
	t := update
	if prev == nil {
		t = create
	}
	a.send(entityKey(kind, l.ID), labelChange(kind, protocol.LabelFromDomain(res.Current)), t, false)
	return nil
}

func (a *Agent) deleteLabel(ctx context.Context, kind domain.Kind, id string) error {
	if _, err := a.store.DeleteLabel(ctx, kind, id, time.Time{}); err != nil {
		return err
	}

	name, _ := domain.RelationFor(kind)
	a.mu.Lock()
	a.outbox.dropRelations(func(r domain.Relation) bool { return r.Name == name && r.TargetID == id })
	a.mu.Unlock()

	a.send(entityKey(kind, id), labelDelete(kind, id), protocol.DeleteType(kind), true)
	return nil
}

// Link adds a relation locally and sends RELATION_ADD
// Link 本地添加关联并发送 RELATION_ADD
func (a *Agent) Link(ctx context.Context, rel domain.Relation) error {
	if _, err := a.store.LinkRelation(ctx, rel); err != nil {
		return err
	}
	a.send(relationKey(rel), protocol.NewRelationChange(rel), protocol.TypeRelationAdd, false)
	return nil
}

// Unlink removes a relation locally and sends RELATION_REMOVE
// Unlink 本地移除关联并发送 RELATION_REMOVE
func (a *Agent) Unlink(ctx context.Context, rel domain.Relation) error {
	if _, err := a.store.UnlinkRelation(ctx, rel); err != nil {
		return err
	}
	a.send(relationKey(rel), protocol.NewRelationChange(rel), protocol.TypeRelationRemove, false)
	return nil
}

// BeginEdit marks a note as being edited; remote changes to it are ignored until the
// edit is committed
// BeginEdit 标记笔记正在编辑，提交前忽略其远端变更
func (a *Agent) BeginEdit(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.editing[entityKey(domain.KindNote, id)] = true
}

// Edit buffers the latest text of a note and restarts the debounce timer
// Edit 缓存笔记的最新内容并重置防抖计时器
func (a *Agent) Edit(note *domain.Note) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := note.ID
	a.editing[entityKey(domain.KindNote, id)] = true
	p := a.pending[id]
	if p == nil {
		p = &pendingEdit{}
		a.pending[id] = p
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	a.editSeq++
	seq := a.editSeq
	p.note = note.Clone()
	p.seq = seq
	p.timer = time.AfterFunc(a.opts.DebounceDelay, func() { a.commit(id, seq) })
}

// EndEdit commits a buffered edit immediately and clears the editing mark
// EndEdit 立即提交缓存的编辑并清除编辑标记
func (a *Agent) EndEdit(id string) {
	if a.commit(id, 0) {
		return
	}
	a.mu.Lock()
	delete(a.editing, entityKey(domain.KindNote, id))
	a.mu.Unlock()
}

// Editing 笔记是否处于编辑状态
func (a *Agent) Editing(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.editing[entityKey(domain.KindNote, id)]
}

// commit saves the buffered edit of id with a fresh updatedAt. seq 0 commits whatever
// is buffered; otherwise only the edit that armed the timer.
// commit 以新的 updatedAt 保存缓存的编辑；seq 为 0 时提交当前缓存，否则只提交对应那次编辑
func (a *Agent) commit(id string, seq uint64) bool {
	a.mu.Lock()
	p := a.pending[id]
	if p == nil || (seq != 0 && p.seq != seq) {
		a.mu.Unlock()
		return false
	}
	delete(a.pending, id)
	p.timer.Stop()
	delete(a.editing, entityKey(domain.KindNote, id))
	a.mu.Unlock()

	note := p.note
	note.UpdatedAt = time.Now()
	if err := a.SaveNote(context.Background(), note); err != nil {
		a.log.Warn("sync commit edit failed", zap.String("id", id), zap.Error(err))
	}
	return true
}

func (a *Agent) dropEdit(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p := a.pending[id]; p != nil {
		p.timer.Stop()
		delete(a.pending, id)
	}
	delete(a.editing, entityKey(domain.KindNote, id))
}
