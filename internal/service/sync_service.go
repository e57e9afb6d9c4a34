package service

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	"github.com/haierkeys/notegpt-sync-service/internal/metrics"
	"github.com/haierkeys/notegpt-sync-service/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// SyncService entity store access used by the sync coordinator and the HTTP snapshot endpoint
// SyncService 同步协调器与 HTTP 快照接口使用的实体存储访问层
type SyncService interface {
	// UpsertNote LWW 写入笔记
	UpsertNote(ctx context.Context, note *domain.Note) (domain.UpsertResult[domain.Note], error)
	// UpsertLabel LWW 写入标签/分类
	UpsertLabel(ctx context.Context, kind domain.Kind, label *domain.Label) (domain.UpsertResult[domain.Label], error)
	// DeleteNote deletes a note; intentAt is the sender's envelope time
	// DeleteNote 删除笔记，intentAt 为发送方消息时间
	DeleteNote(ctx context.Context, id string, intentAt time.Time) (domain.DeleteResult, error)
	// DeleteLabel 删除标签/分类
	DeleteLabel(ctx context.Context, kind domain.Kind, id string, intentAt time.Time) (domain.DeleteResult, error)
	// Link 建立关联（幂等）
	Link(ctx context.Context, rel domain.Relation) (bool, error)
	// Unlink 移除关联（幂等）
	Unlink(ctx context.Context, rel domain.Relation) (bool, error)
	// Snapshot concurrent callers share one store read, but never one that started
	// before a write the caller could have missed
	// Snapshot 并发调用共享同一次存储读取，但不会共享早于其可见写入的读取
	Snapshot(ctx context.Context) (*domain.Snapshot, error)
	// Counts 各集合数量
	Counts(ctx context.Context) (domain.Counts, error)
}

type syncService struct {
	repo   domain.EntityRepository
	config SyncServiceConfig
	logger *zap.Logger
	sf     singleflight.Group
	// writes counts committed writes; snapshot reads are shared per value
	writes atomic.Uint64
}

// NewSyncService 创建 SyncService 实例
func NewSyncService(repo domain.EntityRepository, logger *zap.Logger, cfg *ServiceConfig) SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &syncService{repo: repo, logger: logger}
	if cfg != nil {
		s.config = cfg.Sync
	}
	return s
}

func (s *syncService) storageFailed(op string, err error, fields ...zap.Field) {
	if errors.Is(err, domain.ErrStorageFailure) {
		metrics.StorageFailures.Inc()
	}
	s.logger.Error("sync "+op+" failed", append(fields, zap.Error(err))...)
}

func (s *syncService) UpsertNote(ctx context.Context, note *domain.Note) (domain.UpsertResult[domain.Note], error) {
	res, err := s.repo.UpsertNote(ctx, note)
	if err != nil {
		s.storageFailed("upsert note", err, zap.String(logger.FieldEntityID, note.ID))
		return res, err
	}
	s.committed(res.Applied)
	if !res.Applied {
		metrics.LWWRejected.WithLabelValues(string(domain.KindNote)).Inc()
		s.logger.Debug("note upsert rejected by lww",
			zap.String(logger.FieldEntityID, note.ID),
			zap.Time("incoming", note.UpdatedAt),
			zap.Time("stored", res.Current.UpdatedAt))
	}
	return res, nil
}

func (s *syncService) UpsertLabel(ctx context.Context, kind domain.Kind, label *domain.Label) (domain.UpsertResult[domain.Label], error) {
	res, err := s.repo.UpsertLabel(ctx, kind, label)
	if err != nil {
		s.storageFailed("upsert label", err, zap.String(logger.FieldKind, string(kind)), zap.String(logger.FieldEntityID, label.ID))
		return res, err
	}
	s.committed(res.Applied)
	if !res.Applied {
		metrics.LWWRejected.WithLabelValues(string(kind)).Inc()
	}
	return res, nil
}

// intent returns the delete intent passed to the store; zero disables the staleness check
func (s *syncService) intent(at time.Time) time.Time {
	if !s.config.RejectStaleDelete {
		return time.Time{}
	}
	return at
}

func (s *syncService) DeleteNote(ctx context.Context, id string, intentAt time.Time) (domain.DeleteResult, error) {
	res, err := s.repo.DeleteNote(ctx, id, s.intent(intentAt))
	if err != nil {
		s.storageFailed("delete note", err, zap.String(logger.FieldEntityID, id))
		return res, err
	}
	s.committed(res.Existed && !res.Stale)
	if res.Stale {
		s.logger.Info("stale note delete skipped", zap.String(logger.FieldEntityID, id), zap.Time("intentAt", intentAt))
	}
	return res, nil
}

func (s *syncService) DeleteLabel(ctx context.Context, kind domain.Kind, id string, intentAt time.Time) (domain.DeleteResult, error) {
	res, err := s.repo.DeleteLabel(ctx, kind, id, s.intent(intentAt))
	if err != nil {
		s.storageFailed("delete label", err, zap.String(logger.FieldKind, string(kind)), zap.String(logger.FieldEntityID, id))
		return res, err
	}
	s.committed(res.Existed && !res.Stale)
	return res, nil
}

func (s *syncService) Link(ctx context.Context, rel domain.Relation) (bool, error) {
	created, err := s.repo.LinkRelation(ctx, rel)
	if err != nil && !errors.Is(err, domain.ErrRelationTarget) {
		s.storageFailed("link relation", err, zap.String(logger.FieldRelation, rel.Key()))
	}
	s.committed(err == nil && created)
	return created, err
}

func (s *syncService) Unlink(ctx context.Context, rel domain.Relation) (bool, error) {
	removed, err := s.repo.UnlinkRelation(ctx, rel)
	if err != nil {
		s.storageFailed("unlink relation", err, zap.String(logger.FieldRelation, rel.Key()))
	}
	s.committed(err == nil && removed)
	return removed, err
}

// committed is called after the store returned; the broadcast of the change follows it
func (s *syncService) committed(changed bool) {
	if changed {
		s.writes.Add(1)
	}
}

// Snapshot shares a read only among callers that saw the same write count. A write
// committed after the count was loaded is broadcast to the caller, which is
// already registered when it asks for a snapshot.
func (s *syncService) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	key := "snapshot:" + strconv.FormatUint(s.writes.Load(), 10)
	v, err, shared := s.sf.Do(key, func() (any, error) {
		return s.repo.Snapshot(context.WithoutCancel(ctx))
	})
	if err != nil {
		s.storageFailed("snapshot", err)
		return nil, err
	}
	if shared {
		s.logger.Debug("snapshot read shared")
	}
	return v.(*domain.Snapshot), nil
}

func (s *syncService) Counts(ctx context.Context) (domain.Counts, error) {
	c, err := s.repo.Counts(ctx)
	if err != nil {
		s.storageFailed("counts", err)
	}
	return c, err
}
