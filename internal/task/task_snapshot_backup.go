package task

import (
	"context"

	"github.com/haierkeys/notegpt-sync-service/internal/app"
	"github.com/haierkeys/notegpt-sync-service/internal/service"
)

func init() {
	Register(NewSnapshotBackupTask)
}

// SnapshotBackupTask uploads the full snapshot to the backup storage
// SnapshotBackupTask 将全量快照上传到备份存储
type SnapshotBackupTask struct {
	backup   service.BackupService
	schedule string
}

func (t *SnapshotBackupTask) Name() string       { return "SnapshotBackup" }
func (t *SnapshotBackupTask) Schedule() string   { return t.schedule }
func (t *SnapshotBackupTask) IsStartupRun() bool { return false }

func (t *SnapshotBackupTask) Run(ctx context.Context) error {
	_, err := t.backup.Run(ctx)
	return err
}

// NewSnapshotBackupTask 备份未启用时返回 nil
func NewSnapshotBackupTask(a *app.App) (Task, error) {
	schedule := a.Config().Backup.Schedule
	if a.BackupService == nil || schedule == "" {
		return nil, nil
	}
	return &SnapshotBackupTask{backup: a.BackupService, schedule: schedule}, nil
}
