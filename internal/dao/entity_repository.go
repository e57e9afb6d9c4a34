package dao

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	"github.com/haierkeys/notegpt-sync-service/internal/model"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntityRepository implements domain.EntityRepository and domain.MaintenanceRepository on gorm
// EntityRepository 基于 gorm 实现实体仓储与维护接口
type EntityRepository struct {
	dao *Dao

	migrateOnce sync.Once
	migrateErr  error

	tables struct {
		note, tag, category, noteTag, noteCategory string
	}
}

var (
	_ domain.EntityRepository      = (*EntityRepository)(nil)
	_ domain.MaintenanceRepository = (*EntityRepository)(nil)
)

// NewEntityRepository creates the repository and migrates the schema when auto-migrate is on
// NewEntityRepository 创建仓储，开启自动迁移时同步表结构
func NewEntityRepository(d *Dao) (*EntityRepository, error) {
	r := &EntityRepository{dao: d}
	r.tables.note = d.tableName(&model.Note{})
	r.tables.tag = d.tableName(&model.Tag{})
	r.tables.category = d.tableName(&model.Category{})
	r.tables.noteTag = d.tableName(&model.NoteTag{})
	r.tables.noteCategory = d.tableName(&model.NoteCategory{})

	if d.config.AutoMigrate {
		if err := r.migrate(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *EntityRepository) migrate() error {
	r.migrateOnce.Do(func() {
		if err := model.AutoMigrate(r.dao.Db, ""); err != nil {
			r.migrateErr = errors.Wrap(err, "auto migrate entity tables failed")
		}
	})
	return r.migrateErr
}

func (r *EntityRepository) labelTable(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindTag:
		return r.tables.tag, nil
	case domain.KindCategory:
		return r.tables.category, nil
	}
	return "", errors.Wrapf(domain.ErrUnknownKind, "label kind %q", kind)
}

// relationSpec returns table and target column of a relation
// relationSpec 返回关联表名与目标列名
func (r *EntityRepository) relationSpec(name domain.RelationName) (table, column string, err error) {
	switch name {
	case domain.RelationNoteTags:
		return r.tables.noteTag, "tag_id", nil
	case domain.RelationNoteCategories:
		return r.tables.noteCategory, "category_id", nil
	}
	return "", "", errors.Wrapf(domain.ErrUnknownKind, "relation %q", name)
}

// readTx runs fn in a transaction whose reads share one consistent view
// readTx 在共享一致视图的事务中执行只读操作
func (r *EntityRepository) readTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.dao.IsSQLite() {
		return r.dao.DB(ctx).Transaction(fn)
	}
	return r.dao.DB(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

// writeTx queues fn behind earlier writes and runs it in a transaction
// writeTx 在写队列中排队并在事务中执行 fn
func (r *EntityRepository) writeTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.dao.ExecuteWrite(ctx, func() error {
		return r.dao.DB(ctx).Transaction(fn)
	})
}

// ---------------------------------------------------------------- notes

// UpsertNote 冲突感知的笔记写入
func (r *EntityRepository) UpsertNote(ctx context.Context, note *domain.Note) (domain.UpsertResult[domain.Note], error) {
	var res domain.UpsertResult[domain.Note]
	incoming := note.Clone()
	incoming.Normalize()

	err := r.writeTx(ctx, func(tx *gorm.DB) error {
		var row model.Note
		found := tx.Where("id = ?", incoming.ID).Limit(1).Find(&row)
		if found.Error != nil {
			return found.Error
		}

		if found.RowsAffected == 0 {
			m := noteToModel(incoming)
			m.Version = 1
			if err := tx.Create(m).Error; err != nil {
				return err
			}
			res = domain.UpsertResult[domain.Note]{Applied: true, Current: noteToDomain(m)}
			return nil
		}

		existing := noteToDomain(&row)
		if domain.Resolve(existing, incoming) == domain.DecisionReject {
			res = domain.UpsertResult[domain.Note]{Applied: false, Current: existing}
			return nil
		}

		m := noteToModel(incoming)
		err := tx.Model(&model.Note{}).Where("id = ?", incoming.ID).Updates(map[string]any{
			"title":   m.Title,
			"content": m.Content,
			"mtime":   m.Mtime,
			"version": gorm.Expr("version + 1"),
		}).Error
		if err != nil {
			return err
		}

		current := incoming.Clone()
		current.CreatedAt = existing.CreatedAt
		current.Version = existing.Version + 1
		res = domain.UpsertResult[domain.Note]{Applied: true, Current: current}
		return nil
	})
	if err != nil {
		return res, domain.NewStorageError("upsert note", err)
	}
	return res, nil
}

// DeleteNote 原子地删除笔记及其关联
func (r *EntityRepository) DeleteNote(ctx context.Context, id string, intentAt time.Time) (domain.DeleteResult, error) {
	var res domain.DeleteResult

	err := r.writeTx(ctx, func(tx *gorm.DB) error {
		if stale, err := r.isStale(tx, r.tables.note, id, intentAt); err != nil || stale {
			res = domain.DeleteResult{Existed: stale, Stale: stale}
			return err
		}
		rels, err := r.relationsWhere(tx, "note_id = ?", id)
		if err != nil {
			return err
		}
		if err := tx.Where("note_id = ?", id).Delete(&model.NoteTag{}).Error; err != nil {
			return err
		}
		if err := tx.Where("note_id = ?", id).Delete(&model.NoteCategory{}).Error; err != nil {
			return err
		}
		del := tx.Where("id = ?", id).Delete(&model.Note{})
		if del.Error != nil {
			return del.Error
		}
		res = domain.DeleteResult{Existed: del.RowsAffected > 0, Relations: rels}
		return nil
	})
	if err != nil {
		return domain.DeleteResult{}, domain.NewStorageError("delete note", err)
	}
	return res, nil
}

// isStale reports whether a delete issued at intentAt predates the stored updatedAt
// isStale 判断 intentAt 发出的删除是否早于已存储的 updatedAt
func (r *EntityRepository) isStale(tx *gorm.DB, table, id string, intentAt time.Time) (bool, error) {
	if intentAt.IsZero() {
		return false, nil
	}
	var mtimes []int64
	if err := tx.Table(table).Where("id = ?", id).Limit(1).Pluck("mtime", &mtimes).Error; err != nil {
		return false, err
	}
	if len(mtimes) == 0 {
		return false, nil
	}
	return intentAt.UnixMilli() < mtimes[0], nil
}

// GetNote 获取笔记，不存在返回 nil
func (r *EntityRepository) GetNote(ctx context.Context, id string) (*domain.Note, error) {
	var row model.Note
	res := r.dao.DB(ctx).Where("id = ?", id).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, domain.NewStorageError("get note", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return noteToDomain(&row), nil
}

// ListNotes 按 updatedAt 倒序列出笔记
func (r *EntityRepository) ListNotes(ctx context.Context) ([]*domain.Note, error) {
	notes, err := r.listNotes(r.dao.DB(ctx))
	if err != nil {
		return nil, domain.NewStorageError("list notes", err)
	}
	return notes, nil
}

func (r *EntityRepository) listNotes(tx *gorm.DB) ([]*domain.Note, error) {
	var rows []*model.Note
	if err := tx.Order("mtime DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	notes := make([]*domain.Note, 0, len(rows))
	for _, m := range rows {
		notes = append(notes, noteToDomain(m))
	}
	return notes, nil
}

// ---------------------------------------------------------------- tags / categories

// UpsertLabel 冲突感知的标签/分类写入
func (r *EntityRepository) UpsertLabel(ctx context.Context, kind domain.Kind, label *domain.Label) (domain.UpsertResult[domain.Label], error) {
	var res domain.UpsertResult[domain.Label]
	table, err := r.labelTable(kind)
	if err != nil {
		return res, err
	}
	incoming := label.Clone()
	incoming.Normalize()

	err = r.writeTx(ctx, func(tx *gorm.DB) error {
		var row model.Label
		found := tx.Table(table).Where("id = ?", incoming.ID).Limit(1).Find(&row)
		if found.Error != nil {
			return found.Error
		}

		if found.RowsAffected == 0 {
			m := labelToModel(incoming)
			m.Version = 1
			if err := tx.Table(table).Create(m).Error; err != nil {
				return err
			}
			res = domain.UpsertResult[domain.Label]{Applied: true, Current: labelToDomain(m)}
			return nil
		}

		existing := labelToDomain(&row)
		if domain.Resolve(existing, incoming) == domain.DecisionReject {
			res = domain.UpsertResult[domain.Label]{Applied: false, Current: existing}
			return nil
		}

		err := tx.Table(table).Where("id = ?", incoming.ID).Updates(map[string]any{
			"name":    incoming.Name,
			"mtime":   incoming.UpdatedAt.UnixMilli(),
			"version": gorm.Expr("version + 1"),
		}).Error
		if err != nil {
			return err
		}

		current := incoming.Clone()
		current.CreatedAt = existing.CreatedAt
		current.Version = existing.Version + 1
		res = domain.UpsertResult[domain.Label]{Applied: true, Current: current}
		return nil
	})
	if err != nil {
		return res, domain.NewStorageError("upsert "+string(kind), err)
	}
	return res, nil
}

// DeleteLabel 删除标签/分类及引用它的所有关联
func (r *EntityRepository) DeleteLabel(ctx context.Context, kind domain.Kind, id string, intentAt time.Time) (domain.DeleteResult, error) {
	var res domain.DeleteResult
	table, err := r.labelTable(kind)
	if err != nil {
		return res, err
	}
	relName, _ := domain.RelationFor(kind)
	relTable, column, err := r.relationSpec(relName)
	if err != nil {
		return res, err
	}

	err = r.writeTx(ctx, func(tx *gorm.DB) error {
		if stale, err := r.isStale(tx, table, id, intentAt); err != nil || stale {
			res = domain.DeleteResult{Existed: stale, Stale: stale}
			return err
		}
		var rows []relationRow
		if err := tx.Table(relTable).Select("note_id", column+" AS target_id").Where(column+" = ?", id).Scan(&rows).Error; err != nil {
			return err
		}
		if err := tx.Table(relTable).Where(column+" = ?", id).Delete(relationModel(relName)).Error; err != nil {
			return err
		}
		del := tx.Table(table).Where("id = ?", id).Delete(&model.Label{})
		if del.Error != nil {
			return del.Error
		}
		res = domain.DeleteResult{Existed: del.RowsAffected > 0, Relations: toRelations(relName, rows)}
		return nil
	})
	if err != nil {
		return domain.DeleteResult{}, domain.NewStorageError("delete "+string(kind), err)
	}
	return res, nil
}

// GetLabel 获取标签/分类，不存在返回 nil
func (r *EntityRepository) GetLabel(ctx context.Context, kind domain.Kind, id string) (*domain.Label, error) {
	table, err := r.labelTable(kind)
	if err != nil {
		return nil, err
	}
	var row model.Label
	res := r.dao.DB(ctx).Table(table).Where("id = ?", id).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, domain.NewStorageError("get "+string(kind), res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return labelToDomain(&row), nil
}

// ListLabels 按 updatedAt 倒序列出标签/分类
func (r *EntityRepository) ListLabels(ctx context.Context, kind domain.Kind) ([]*domain.Label, error) {
	table, err := r.labelTable(kind)
	if err != nil {
		return nil, err
	}
	labels, err := r.listLabels(r.dao.DB(ctx), table)
	if err != nil {
		return nil, domain.NewStorageError("list "+string(kind), err)
	}
	return labels, nil
}

func (r *EntityRepository) listLabels(tx *gorm.DB, table string) ([]*domain.Label, error) {
	var rows []*model.Label
	if err := tx.Table(table).Order("mtime DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	labels := make([]*domain.Label, 0, len(rows))
	for _, m := range rows {
		labels = append(labels, labelToDomain(m))
	}
	return labels, nil
}

// ---------------------------------------------------------------- relations

// relationModel zero row of the relation table, used as delete target
func relationModel(name domain.RelationName) any {
	if name == domain.RelationNoteTags {
		return &model.NoteTag{}
	}
	return &model.NoteCategory{}
}

// relationRow scan target for either relation table
type relationRow struct {
	NoteID   string `gorm:"column:note_id"`
	TargetID string `gorm:"column:target_id"`
}

func toRelations(name domain.RelationName, rows []relationRow) []domain.Relation {
	rels := make([]domain.Relation, 0, len(rows))
	for _, row := range rows {
		rels = append(rels, domain.Relation{Name: name, NoteID: row.NoteID, TargetID: row.TargetID})
	}
	return rels
}

// relationsWhere collects rows of both relation tables matching a note_id condition
// relationsWhere 查询两张关联表中满足条件的行
func (r *EntityRepository) relationsWhere(tx *gorm.DB, query string, args ...any) ([]domain.Relation, error) {
	var rels []domain.Relation
	for _, name := range []domain.RelationName{domain.RelationNoteTags, domain.RelationNoteCategories} {
		table, column, _ := r.relationSpec(name)
		var rows []relationRow
		q := tx.Table(table).Select("note_id", column+" AS target_id")
		if query != "" {
			q = q.Where(query, args...)
		}
		if err := q.Order("note_id").Order(column).Scan(&rows).Error; err != nil {
			return nil, err
		}
		rels = append(rels, toRelations(name, rows)...)
	}
	return rels, nil
}

// LinkRelation 不存在时插入，创建了新行返回 true
func (r *EntityRepository) LinkRelation(ctx context.Context, rel domain.Relation) (bool, error) {
	kind, ok := rel.Name.Kind()
	if !ok {
		return false, errors.Wrapf(domain.ErrUnknownKind, "relation %q", rel.Name)
	}
	labelTable, _ := r.labelTable(kind)

	var created bool
	err := r.writeTx(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Table(r.tables.note).Where("id = ?", rel.NoteID).Count(&n).Error; err != nil {
			return err
		}
		var t int64
		if err := tx.Table(labelTable).Where("id = ?", rel.TargetID).Count(&t).Error; err != nil {
			return err
		}
		if n == 0 || t == 0 {
			return errors.WithStack(domain.ErrRelationTarget)
		}

		var row any
		switch rel.Name {
		case domain.RelationNoteTags:
			row = &model.NoteTag{NoteID: rel.NoteID, TagID: rel.TargetID}
		default:
			row = &model.NoteCategory{NoteID: rel.NoteID, CategoryID: rel.TargetID}
		}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if ins.Error != nil {
			return ins.Error
		}
		created = ins.RowsAffected > 0
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRelationTarget) {
			return false, err
		}
		return false, domain.NewStorageError("link relation", err)
	}
	return created, nil
}

// UnlinkRelation 存在时删除，删除了行返回 true
func (r *EntityRepository) UnlinkRelation(ctx context.Context, rel domain.Relation) (bool, error) {
	table, column, err := r.relationSpec(rel.Name)
	if err != nil {
		return false, err
	}

	var removed bool
	err = r.dao.ExecuteWrite(ctx, func() error {
		del := r.dao.DB(ctx).Table(table).Where("note_id = ? AND "+column+" = ?", rel.NoteID, rel.TargetID).Delete(relationModel(rel.Name))
		if del.Error != nil {
			return del.Error
		}
		removed = del.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, domain.NewStorageError("unlink relation", err)
	}
	return removed, nil
}

// RelationsForNote 获取笔记的全部关联
func (r *EntityRepository) RelationsForNote(ctx context.Context, noteID string) ([]domain.Relation, error) {
	rels, err := r.relationsWhere(r.dao.DB(ctx), "note_id = ?", noteID)
	if err != nil {
		return nil, domain.NewStorageError("relations for note", err)
	}
	return rels, nil
}

// NotesForLabel 获取引用某标签/分类的笔记
func (r *EntityRepository) NotesForLabel(ctx context.Context, kind domain.Kind, id string) ([]*domain.Note, error) {
	relName, ok := domain.RelationFor(kind)
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownKind, "label kind %q", kind)
	}
	relTable, column, _ := r.relationSpec(relName)

	var rows []*model.Note
	err := r.dao.DB(ctx).
		Table(r.tables.note+" AS n").
		Select("n.*").
		Joins("JOIN "+relTable+" AS r ON r.note_id = n.id").
		Where("r."+column+" = ?", id).
		Order("n.mtime DESC").
		Find(&rows).Error
	if err != nil {
		return nil, domain.NewStorageError("notes for "+string(kind), err)
	}
	notes := make([]*domain.Note, 0, len(rows))
	for _, m := range rows {
		notes = append(notes, noteToDomain(m))
	}
	return notes, nil
}

// ---------------------------------------------------------------- snapshot

// Snapshot 单次一致性读取全部集合
func (r *EntityRepository) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	err := r.readTx(ctx, func(tx *gorm.DB) error {
		var err error
		if snap.Notes, err = r.listNotes(tx); err != nil {
			return err
		}
		if snap.Tags, err = r.listLabels(tx, r.tables.tag); err != nil {
			return err
		}
		if snap.Categories, err = r.listLabels(tx, r.tables.category); err != nil {
			return err
		}
		rels, err := r.relationsWhere(tx, "")
		if err != nil {
			return err
		}
		for _, rel := range rels {
			if rel.Name == domain.RelationNoteTags {
				snap.NoteTags = append(snap.NoteTags, rel)
			} else {
				snap.NoteCategories = append(snap.NoteCategories, rel)
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("snapshot", err)
	}
	return snap, nil
}

// Counts 统计各集合数量
func (r *EntityRepository) Counts(ctx context.Context) (domain.Counts, error) {
	var c domain.Counts
	err := r.readTx(ctx, func(tx *gorm.DB) error {
		for table, dst := range map[string]*int64{
			r.tables.note:         &c.Notes,
			r.tables.tag:          &c.Tags,
			r.tables.category:     &c.Categories,
			r.tables.noteTag:      &c.NoteTags,
			r.tables.noteCategory: &c.NoteCategories,
		} {
			if err := tx.Table(table).Count(dst).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return c, domain.NewStorageError("counts", err)
	}
	return c, nil
}

// ---------------------------------------------------------------- maintenance

// PruneOrphanRelations 清理端点已不存在的关联
func (r *EntityRepository) PruneOrphanRelations(ctx context.Context) (int64, error) {
	var total int64
	err := r.writeTx(ctx, func(tx *gorm.DB) error {
		for _, name := range []domain.RelationName{domain.RelationNoteTags, domain.RelationNoteCategories} {
			table, column, _ := r.relationSpec(name)
			kind, _ := name.Kind()
			labelTable, _ := r.labelTable(kind)

			del := tx.Table(table).
				Where("note_id NOT IN (?) OR "+column+" NOT IN (?)",
					tx.Session(&gorm.Session{NewDB: true}).Table(r.tables.note).Select("id"),
					tx.Session(&gorm.Session{NewDB: true}).Table(labelTable).Select("id"),
				).
				Delete(relationModel(name))
			if del.Error != nil {
				return del.Error
			}
			total += del.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, domain.NewStorageError("prune orphan relations", err)
	}
	if total > 0 {
		r.dao.logger.Info("pruned orphan relations", zap.Int64("count", total))
	}
	return total, nil
}

// Checkpoint 刷写 SQLite 预写日志，其他引擎无操作
func (r *EntityRepository) Checkpoint(ctx context.Context) error {
	if !r.dao.IsSQLite() {
		return nil
	}
	err := r.dao.ExecuteWrite(ctx, func() error {
		return r.dao.DB(ctx).Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error
	})
	return domain.NewStorageError("wal checkpoint", err)
}

// ---------------------------------------------------------------- conversion

func noteToDomain(m *model.Note) *domain.Note {
	if m == nil {
		return nil
	}
	return &domain.Note{
		ID:        m.ID,
		Title:     m.Title,
		Content:   m.Content,
		CreatedAt: domain.TimeFromMillis(m.Ctime),
		UpdatedAt: domain.TimeFromMillis(m.Mtime),
		Version:   m.Version,
	}
}

func noteToModel(n *domain.Note) *model.Note {
	if n == nil {
		return nil
	}
	return &model.Note{
		ID:      n.ID,
		Title:   n.Title,
		Content: n.Content,
		Ctime:   n.CreatedAt.UnixMilli(),
		Mtime:   n.UpdatedAt.UnixMilli(),
		Version: n.Version,
	}
}

func labelToDomain(m *model.Label) *domain.Label {
	if m == nil {
		return nil
	}
	return &domain.Label{
		ID:        m.ID,
		Name:      m.Name,
		CreatedAt: domain.TimeFromMillis(m.Ctime),
		UpdatedAt: domain.TimeFromMillis(m.Mtime),
		Version:   m.Version,
	}
}

func labelToModel(l *domain.Label) *model.Label {
	if l == nil {
		return nil
	}
	return &model.Label{
		ID:      l.ID,
		Name:    l.Name,
		Ctime:   l.CreatedAt.UnixMilli(),
		Mtime:   l.UpdatedAt.UnixMilli(),
		Version: l.Version,
	}
}
