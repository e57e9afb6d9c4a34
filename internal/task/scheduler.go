package task

import (
	"context"
	"time"

	"github.com/haierkeys/notegpt-sync-service/pkg/safe_close"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Task 定义任务接口
type Task interface {
	Name() string                  // 任务名称
	Run(ctx context.Context) error // 执行任务
	Schedule() string              // cron 表达式，支持 @every 1h 等描述符
	IsStartupRun() bool            // 是否立即执行一次
}

// cronParser five-field specs plus descriptors such as "@every 10m" and "@hourly"
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// cronLogger routes cron's own messages into zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw("cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw("cron "+msg, append(keysAndValues, "error", err)...)
}

// Scheduler 任务调度器
type Scheduler struct {
	logger *zap.Logger
	tasks  []Task
	sc     *safe_close.SafeClose
	cron   *cron.Cron
}

// NewScheduler 创建任务调度器
func NewScheduler(logger *zap.Logger, sc *safe_close.SafeClose) *Scheduler {
	cl := cronLogger{sugar: logger.Sugar()}
	return &Scheduler{
		logger: logger,
		tasks:  make([]Task, 0),
		sc:     sc,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// AddTask validates the task's schedule and adds it
// AddTask 校验任务的 cron 表达式并添加任务
func (s *Scheduler) AddTask(task Task) error {
	if _, err := s.cron.AddFunc(task.Schedule(), func() { s.run(task, "loopRun") }); err != nil {
		return errors.Wrapf(err, "task %s: invalid schedule %q", task.Name(), task.Schedule())
	}
	s.tasks = append(s.tasks, task)
	return nil
}

// Len 已添加的任务数
func (s *Scheduler) Len() int {
	return len(s.tasks)
}

// run executes one task invocation; panics are logged and swallowed
func (s *Scheduler) run(task Task, mode string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panic",
				zap.String("name", task.Name()),
				zap.String("mode", mode),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	start := time.Now()
	if err := task.Run(context.Background()); err != nil {
		s.logger.Error("task running error",
			zap.String("name", task.Name()),
			zap.String("mode", mode),
			zap.Error(err))
		return
	}
	s.logger.Debug("task done",
		zap.String("name", task.Name()),
		zap.String("mode", mode),
		zap.Duration("duration", time.Since(start)))
}

// Start runs startup tasks once, then hands every task to cron until the close signal
// Start 先执行需要启动运行的任务，再交由 cron 调度直到收到关闭信号
func (s *Scheduler) Start() {
	if len(s.tasks) == 0 {
		s.logger.Info("no tasks to schedule")
		return
	}

	s.logger.Info("tasks starting", zap.Int("count", len(s.tasks)))

	for _, task := range s.tasks {
		if task.IsStartupRun() {
			go s.run(task, "startupRun")
		}
	}

	s.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		s.cron.Start()
		<-closeSignal

		// wait for running jobs before the store is closed
		<-s.cron.Stop().Done()
		s.logger.Info("tasks stopped")
	})
}
