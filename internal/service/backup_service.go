package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haierkeys/notegpt-sync-service/pkg/protocol"
	"github.com/haierkeys/notegpt-sync-service/pkg/storage"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// BackupPrefix key prefix of every snapshot backup
// BackupPrefix 快照备份对象名前缀
const BackupPrefix = "snapshot_"

// backupLayout sorts lexically in time order
const backupLayout = "20060102_150405"

// BackupResult 单次备份结果
type BackupResult struct {
	Key        string    `json:"key"`
	Location   string    `json:"location"`
	Size       int       `json:"size"`
	Notes      int       `json:"notes"`
	Tags       int       `json:"tags"`
	Categories int       `json:"categories"`
	Pruned     []string  `json:"pruned,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// BackupService uploads the normalized snapshot to the configured storage
// BackupService 将规范化快照上传到配置的存储
type BackupService interface {
	// Run 执行一次备份并清理超出保留数量的旧备份
	Run(ctx context.Context) (*BackupResult, error)
	// List 按时间倒序列出已有备份
	List(ctx context.Context) ([]storage.Object, error)
}

type backupService struct {
	syncSvc SyncService
	store   storage.Storager
	config  BackupServiceConfig
	logger  *zap.Logger
	mu      sync.Mutex
	nowFunc func() time.Time
}

// NewBackupService 创建 BackupService 实例
func NewBackupService(syncSvc SyncService, store storage.Storager, logger *zap.Logger, cfg *ServiceConfig) BackupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &backupService{syncSvc: syncSvc, store: store, logger: logger, nowFunc: time.Now}
	if cfg != nil {
		s.config = cfg.Backup
	}
	return s
}

func (s *backupService) Run(ctx context.Context) (*BackupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.syncSvc.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "backup snapshot")
	}
	body, err := sonic.Marshal(protocol.PayloadFromSnapshot(snap))
	if err != nil {
		return nil, errors.Wrap(err, "backup marshal")
	}

	now := s.nowFunc().UTC()
	key := BackupPrefix + now.Format(backupLayout) + ".json"
	location, err := s.store.SendContent(ctx, key, body, now)
	if err != nil {
		s.logger.Error("backup upload failed", zap.String("key", key), zap.Error(err))
		return nil, errors.Wrap(err, "backup upload")
	}

	res := &BackupResult{
		Key:        key,
		Location:   location,
		Size:       len(body),
		Notes:      len(snap.Notes),
		Tags:       len(snap.Tags),
		Categories: len(snap.Categories),
		CreatedAt:  now,
	}
	res.Pruned = s.prune(ctx, key)

	s.logger.Info("backup finished",
		zap.String("location", location),
		zap.Int("size", res.Size),
		zap.Int("notes", res.Notes),
		zap.Int("pruned", len(res.Pruned)))
	return res, nil
}

func (s *backupService) List(ctx context.Context) ([]storage.Object, error) {
	objs, err := s.store.List(ctx, BackupPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "backup list")
	}
	filtered := objs[:0]
	for _, o := range objs {
		if strings.HasSuffix(o.Key, ".json") && !strings.Contains(o.Key, "/") {
			filtered = append(filtered, o)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Key > filtered[j].Key })
	return filtered, nil
}

// prune removes backups beyond the retention count; failures are logged, the new
// backup stands either way
// prune 删除超出保留数量的旧备份，失败只记录日志
func (s *backupService) prune(ctx context.Context, current string) []string {
	if s.config.Retention <= 0 {
		return nil
	}
	objs, err := s.List(ctx)
	if err != nil {
		s.logger.Warn("backup prune list failed", zap.Error(err))
		return nil
	}

	var pruned []string
	kept := 0
	for _, o := range objs {
		if kept < s.config.Retention || o.Key == current {
			kept++
			continue
		}
		if err := s.store.Delete(ctx, o.Key); err != nil {
			s.logger.Warn("backup prune failed", zap.String("key", o.Key), zap.Error(err))
			continue
		}
		pruned = append(pruned, o.Key)
	}
	return pruned
}
