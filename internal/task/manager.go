package task

import (
	"github.com/haierkeys/notegpt-sync-service/internal/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/safe_close"

	"go.uber.org/zap"
)

// Manager 任务管理器，负责创建和管理所有任务
type Manager struct {
	scheduler *Scheduler
	app       *app.App
	logger    *zap.Logger
}

// NewManager 创建任务管理器
func NewManager(a *app.App, sc *safe_close.SafeClose) *Manager {
	return &Manager{
		scheduler: NewScheduler(a.Logger(), sc),
		app:       a,
		logger:    a.Logger(),
	}
}

// RegisterTasks builds every registered task; the first factory or schedule error aborts
// RegisterTasks 创建所有已注册的任务，任一工厂或调度表达式错误都会中止
func (m *Manager) RegisterTasks() error {
	for _, factory := range GetFactories() {
		t, err := factory(m.app)
		if err != nil {
			m.logger.Warn("failed to create task", zap.Error(err))
			return err
		}
		if t == nil {
			continue
		}
		if err := m.scheduler.AddTask(t); err != nil {
			return err
		}
		m.logger.Info("task registered", zap.String("name", t.Name()), zap.String("schedule", t.Schedule()))
	}
	return nil
}

// Start 启动所有已注册的任务
func (m *Manager) Start() {
	m.scheduler.Start()
}
