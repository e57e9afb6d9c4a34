// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"context"
	"sync"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/dao"
	"github.com/haierkeys/notegpt-sync-service/internal/metrics"
	"github.com/haierkeys/notegpt-sync-service/internal/middleware"
	"github.com/haierkeys/notegpt-sync-service/internal/service"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/limiter"
	"github.com/haierkeys/notegpt-sync-service/pkg/storage"
	"github.com/haierkeys/notegpt-sync-service/pkg/validator"
	"github.com/haierkeys/notegpt-sync-service/pkg/workerpool"
	"github.com/haierkeys/notegpt-sync-service/pkg/writequeue"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 应用容器，封装所有依赖和服务
type App struct {
	// 基础设施（注入的依赖）
	config *AppConfig
	logger *zap.Logger
	DB     *gorm.DB
	Dao    *dao.Dao

	// 并发控制组件
	workerPool    *workerpool.Pool
	writeQueueMgr *writequeue.Manager

	// Repository 层
	EntityRepo *dao.EntityRepository

	// Service 层
	SyncService     service.SyncService
	GenerateService service.GenerateService
	// BackupService nil when backup is disabled
	// BackupService 备份未启用时为 nil
	BackupService service.BackupService

	// 基础设施组件
	Registry    *pkgapp.ConnRegistry
	Limiter     *limiter.KeyLimiter
	WSValidator *validator.CustomValidator

	// StartTime 启动时间，用于健康检查中的运行时长
	StartTime time.Time

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewApp 创建应用容器实例
// 初始化所有依赖并进行依赖注入
// cfg: 应用配置（必须）
// logger: zap 日志器（必须）
// db: 数据库连接（必须）
func NewApp(cfg *AppConfig, logger *zap.Logger, db *gorm.DB) (*App, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if db == nil {
		return nil, errors.New("database is required")
	}

	a := &App{
		config:     cfg,
		logger:     logger,
		DB:         db,
		StartTime:  time.Now(),
		shutdownCh: make(chan struct{}),
	}

	// 初始化 Worker Pool（限制 /v1/generate 的并发）
	wpConfig := cfg.GetWorkerPoolConfig()
	a.workerPool = workerpool.New(&wpConfig, logger)

	// 初始化 Write Queue Manager（串行化存储写入）
	wqConfig := cfg.GetWriteQueueConfig()
	a.writeQueueMgr = writequeue.New(&wqConfig, logger)

	dbConfig := cfg.GetDatabaseConfig()
	a.Dao = dao.New(db, context.Background(),
		dao.WithConfig(&dbConfig),
		dao.WithLogger(logger),
		dao.WithWriteQueueManager(a.writeQueueMgr),
	)

	repo, err := dao.NewEntityRepository(a.Dao)
	if err != nil {
		return nil, errors.Wrap(err, "init entity repository")
	}
	a.EntityRepo = repo

	svcConfig := cfg.GetServiceConfig()
	a.SyncService = service.NewSyncService(a.EntityRepo, logger, svcConfig)
	a.GenerateService = service.NewGenerateService(cfg.GetLLMConfig(), a.workerPool, logger, svcConfig)

	if cfg.Backup.Enabled {
		store, err := storage.NewClient(&cfg.Backup.Storage)
		if err != nil {
			return nil, errors.Wrap(err, "init backup storage")
		}
		a.BackupService = service.NewBackupService(a.SyncService, store, logger, svcConfig)
	}

	a.Registry = pkgapp.NewConnRegistry(
		pkgapp.WithRegistryLogger(logger),
		pkgapp.WithHeartbeatTimeout(cfg.GetHeartbeatTimeout()),
		pkgapp.WithCountObserver(func(n int) { metrics.WSConnections.Set(float64(n)) }),
	)

	// generate is limited per API key when one is sent, otherwise per client IP
	a.Limiter = limiter.NewKeyLimiter(cfg.GetRateLimitRule(), func(c *gin.Context) string {
		if key := middleware.RequestAPIKey(c); key != "" {
			return "key:" + key
		}
		return "ip:" + pkgapp.GetRequestIP(c)
	})

	a.WSValidator = validator.NewCustomValidator("validate")
	if err := a.WSValidator.Init(); err != nil {
		return nil, errors.Wrap(err, "init websocket validator")
	}

	logger.Info("App container initialized successfully",
		zap.Int("workerPoolMaxWorkers", wpConfig.MaxWorkers),
		zap.Int("writeQueueCapacity", wqConfig.QueueCapacity),
		zap.String("databaseType", dbConfig.Type))

	return a, nil
}

// Close 释放应用容器持有的资源
func (a *App) Close() error {
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return errors.Wrap(err, "failed to get sql.DB")
		}
		if err := sqlDB.Close(); err != nil {
			return errors.Wrap(err, "failed to close database")
		}
		a.logger.Info("Database connection closed")
	}
	return nil
}

// Config 获取应用配置
func (a *App) Config() *AppConfig {
	return a.config
}

// Logger 获取日志器
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Version 获取版本信息
func (a *App) Version() pkgapp.VersionInfo {
	return pkgapp.VersionInfo{
		Version:   Version,
		GitTag:    GitTag,
		BuildTime: BuildTime,
	}
}

// IsProductionMode 是否为生产模式
func (a *App) IsProductionMode() bool {
	return a.config.Log.Production
}

// WorkerPool 获取 Worker Pool
func (a *App) WorkerPool() *workerpool.Pool {
	return a.workerPool
}

// WriteQueueManager 获取 Write Queue Manager
func (a *App) WriteQueueManager() *writequeue.Manager {
	return a.writeQueueMgr
}

// DefaultShutdownTimeout 默认关闭超时时间
const DefaultShutdownTimeout = 30 * time.Second

// Shutdown 优雅关闭应用容器
// 按顺序关闭：同步连接 -> Worker Pool -> Write Queue Manager -> Database
// ctx 用于控制关闭超时，如果为 nil 则使用默认 30 秒超时
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("App container shutting down...")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
	}

	select {
	case <-a.shutdownCh:
		return nil
	default:
		close(a.shutdownCh)
	}

	var errs []error

	// 0. 关闭所有同步连接
	if a.Registry != nil {
		a.Registry.CloseAll(pkgapp.CloseNormal, "Server shutting down")
	}

	// 1. 关闭 Worker Pool（停止接受新任务，等待现有任务完成）
	if a.workerPool != nil {
		if err := a.workerPool.Shutdown(ctx); err != nil {
			a.logger.Warn("Worker pool shutdown error", zap.Error(err))
			errs = append(errs, errors.Wrap(err, "worker pool shutdown"))
		}
	}

	// 2. 关闭 Write Queue Manager（排空所有队列）
	if a.writeQueueMgr != nil {
		if err := a.writeQueueMgr.Shutdown(ctx); err != nil {
			a.logger.Warn("write queue manager shutdown error", zap.Error(err))
			errs = append(errs, errors.Wrap(err, "write queue manager shutdown"))
		}
	}

	// 3. 等待所有后台操作完成
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("All background operations completed")
	case <-ctx.Done():
		a.logger.Warn("Shutdown timeout waiting for background operations")
		errs = append(errs, errors.Wrap(ctx.Err(), "background operations timeout"))
	}

	// 4. 关闭数据库连接
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		a.logger.Warn("App container shutdown completed with errors", zap.Int("errorCount", len(errs)))
		return errors.Errorf("shutdown completed with %d errors: %v", len(errs), errs)
	}

	a.logger.Info("App container shutdown completed successfully")
	return nil
}

// IsShuttingDown 检查应用是否正在关闭
func (a *App) IsShuttingDown() bool {
	select {
	case <-a.shutdownCh:
		return true
	default:
		return false
	}
}

// Go runs fn in the background and makes Shutdown wait for it
// Go 在后台运行 fn，Shutdown 会等待其结束
func (a *App) Go(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}
