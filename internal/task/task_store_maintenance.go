package task

import (
	"context"

	"github.com/haierkeys/notegpt-sync-service/internal/app"
	"github.com/haierkeys/notegpt-sync-service/internal/dao"
)

func init() {
	Register(NewCheckpointTask)
	Register(NewRelationPruneTask)
}

// CheckpointTask folds the sqlite WAL back into the database file
// CheckpointTask 将 SQLite WAL 合并回数据库文件
type CheckpointTask struct {
	repo     *dao.EntityRepository
	schedule string
}

func (t *CheckpointTask) Name() string       { return "WalCheckpoint" }
func (t *CheckpointTask) Schedule() string   { return t.schedule }
func (t *CheckpointTask) IsStartupRun() bool { return false }

func (t *CheckpointTask) Run(ctx context.Context) error {
	return t.repo.Checkpoint(ctx)
}

// NewCheckpointTask is disabled for non-sqlite stores or an empty schedule
// NewCheckpointTask 非 SQLite 存储或未配置调度时不启用
func NewCheckpointTask(a *app.App) (Task, error) {
	schedule := a.Config().Sync.CheckpointSchedule
	if schedule == "" || !a.Dao.IsSQLite() {
		return nil, nil
	}
	return &CheckpointTask{repo: a.EntityRepo, schedule: schedule}, nil
}

// RelationPruneTask removes note_tags / note_categories rows whose endpoints are gone
// RelationPruneTask 清理端点已不存在的关联
type RelationPruneTask struct {
	repo     *dao.EntityRepository
	schedule string
}

func (t *RelationPruneTask) Name() string       { return "RelationPrune" }
func (t *RelationPruneTask) Schedule() string   { return t.schedule }
func (t *RelationPruneTask) IsStartupRun() bool { return true }

func (t *RelationPruneTask) Run(ctx context.Context) error {
	_, err := t.repo.PruneOrphanRelations(ctx)
	return err
}

// NewRelationPruneTask 创建孤立关联清理任务
func NewRelationPruneTask(a *app.App) (Task, error) {
	schedule := a.Config().Sync.PruneSchedule
	if schedule == "" {
		return nil, nil
	}
	return &RelationPruneTask{repo: a.EntityRepo, schedule: schedule}, nil
}
