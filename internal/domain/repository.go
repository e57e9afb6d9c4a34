// Package domain 定义领域模型和接口
package domain

import (
	"context"
	"time"
)

// EntityRepository durable store for notes, labels and their relations
// EntityRepository 笔记、标签/分类及其关联的持久化仓储接口
type EntityRepository interface {
	// UpsertNote conflict-aware note write
	// UpsertNote 冲突感知的笔记写入
	UpsertNote(ctx context.Context, note *Note) (UpsertResult[Note], error)

	// UpsertLabel conflict-aware tag/category write
	// UpsertLabel 冲突感知的标签/分类写入
	UpsertLabel(ctx context.Context, kind Kind, label *Label) (UpsertResult[Label], error)

	// DeleteNote deletes a note and its relations atomically. A non-zero intentAt older
	// than the stored updatedAt skips the delete (DeleteResult.Stale).
	// DeleteNote 原子地删除笔记及其关联；intentAt 非零且早于已存储的 updatedAt 时跳过删除
	DeleteNote(ctx context.Context, id string, intentAt time.Time) (DeleteResult, error)

	// DeleteLabel deletes a tag/category and every relation referencing it
	// DeleteLabel 删除标签/分类及引用它的所有关联
	DeleteLabel(ctx context.Context, kind Kind, id string, intentAt time.Time) (DeleteResult, error)

	// GetNote 获取笔记，不存在返回 nil
	GetNote(ctx context.Context, id string) (*Note, error)

	// GetLabel 获取标签/分类，不存在返回 nil
	GetLabel(ctx context.Context, kind Kind, id string) (*Label, error)

	// ListNotes 按 updatedAt 倒序列出笔记
	ListNotes(ctx context.Context) ([]*Note, error)

	// ListLabels 按 updatedAt 倒序列出标签/分类
	ListLabels(ctx context.Context, kind Kind) ([]*Label, error)

	// LinkRelation insert-if-absent, returns true when a row was created
	// LinkRelation 不存在时插入，创建了新行返回 true
	LinkRelation(ctx context.Context, rel Relation) (bool, error)

	// UnlinkRelation delete-if-present, returns true when a row was removed
	// UnlinkRelation 存在时删除，删除了行返回 true
	UnlinkRelation(ctx context.Context, rel Relation) (bool, error)

	// RelationsForNote 获取笔记的全部关联
	RelationsForNote(ctx context.Context, noteID string) ([]Relation, error)

	// NotesForLabel 获取引用某标签/分类的笔记
	NotesForLabel(ctx context.Context, kind Kind, id string) ([]*Note, error)

	// Snapshot single consistent read of every collection
	// Snapshot 单次一致性读取全部集合
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Counts 统计各集合数量
	Counts(ctx context.Context) (Counts, error)
}

// MaintenanceRepository housekeeping operations used by scheduled tasks
// MaintenanceRepository 定时任务使用的维护操作
type MaintenanceRepository interface {
	// PruneOrphanRelations removes relation rows whose endpoints are gone
	// PruneOrphanRelations 清理端点已不存在的关联
	PruneOrphanRelations(ctx context.Context) (int64, error)

	// Checkpoint flushes the write-ahead log where the engine has one
	// Checkpoint 刷写预写日志（仅支持的引擎）
	Checkpoint(ctx context.Context) error
}
