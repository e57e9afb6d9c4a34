// Package writequeue serializes write operations that share a key
// Package writequeue 串行化共享同一个 key 的写操作
// An embedded single-writer database (SQLite) reports "database is locked" when two
// transactions write at once; routing every write through one key keeps them FIFO.
// 嵌入式单写者数据库（SQLite）并发写入会出现 "database is locked"，所有写操作经由同一 key 排队即可按 FIFO 执行
package writequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrWriteQueueFull 队列已满
	ErrWriteQueueFull = errors.New("write queue is full")
	// ErrWriteQueueClosed 写队列管理器已关闭
	ErrWriteQueueClosed = errors.New("write queue is closed")
	// ErrWriteTimeout 写操作等待超时
	ErrWriteTimeout = errors.New("write operation timeout")
)

// Config write queue configuration
// Config 写队列配置
type Config struct {
	// QueueCapacity per-key queue capacity, default 100
	// QueueCapacity 每个 key 的队列容量，默认 100
	QueueCapacity int
	// WriteTimeout how long a caller waits for its operation, default 30s
	// WriteTimeout 调用方等待写操作完成的时间，默认 30 秒
	WriteTimeout time.Duration
	// IdleTimeout idle queues are reclaimed after this, default 10m
	// IdleTimeout 空闲队列回收时间，默认 10 分钟
	IdleTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 100,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   10 * time.Minute,
	}
}

type writeOp struct {
	ctx    context.Context
	fn     func() error
	result chan error
}

// keyQueue single key FIFO
// keyQueue 单个 key 的 FIFO 队列
type keyQueue struct {
	key      string
	ch       chan writeOp
	lastUsed atomic.Int64
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func (q *keyQueue) stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
}

// Manager owns one worker goroutine per active key
// Manager 为每个活跃 key 维护一个 worker goroutine
type Manager struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	queues map[string]*keyQueue
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	cleanupWg sync.WaitGroup
}

// New creates write queue manager; nil cfg or logger fall back to defaults
// New 创建写队列管理器，cfg 或 logger 为 nil 时使用默认值
func New(cfg *Config, logger *zap.Logger) *Manager {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.QueueCapacity > 0 {
			c.QueueCapacity = cfg.QueueCapacity
		}
		if cfg.WriteTimeout > 0 {
			c.WriteTimeout = cfg.WriteTimeout
		}
		if cfg.IdleTimeout > 0 {
			c.IdleTimeout = cfg.IdleTimeout
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config: c,
		logger: logger,
		queues: make(map[string]*keyQueue),
		ctx:    ctx,
		cancel: cancel,
	}

	m.cleanupWg.Add(1)
	go m.cleanupIdleQueues()

	m.logger.Info("write queue manager started",
		zap.Int("queueCapacity", c.QueueCapacity),
		zap.Duration("writeTimeout", c.WriteTimeout),
		zap.Duration("idleTimeout", c.IdleTimeout))

	return m
}

// Execute runs fn after every earlier operation queued under the same key
// Execute 在同一 key 之前排队的操作全部完成后执行 fn
func (m *Manager) Execute(ctx context.Context, key string, fn func() error) error {
	result := make(chan error, 1)
	op := writeOp{ctx: ctx, fn: fn, result: result}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrWriteQueueClosed
	}
	q := m.queueLocked(key)
	select {
	case q.ch <- op:
	default:
		m.mu.Unlock()
		return ErrWriteQueueFull
	}
	m.mu.Unlock()

	timeout := m.config.WriteTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrWriteTimeout
	case <-m.ctx.Done():
		return ErrWriteQueueClosed
	}
}

// queueLocked gets or lazily creates the queue of key; m.mu must be held
// queueLocked 获取或懒创建 key 对应的队列，调用方需持有 m.mu
func (m *Manager) queueLocked(key string) *keyQueue {
	if q, ok := m.queues[key]; ok {
		q.lastUsed.Store(time.Now().UnixNano())
		return q
	}
	q := &keyQueue{
		key:    key,
		ch:     make(chan writeOp, m.config.QueueCapacity),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	q.lastUsed.Store(time.Now().UnixNano())
	m.queues[key] = q
	go m.worker(q)

	m.logger.Debug("created write queue", zap.String("key", key), zap.Int("capacity", m.config.QueueCapacity))
	return q
}

func (m *Manager) worker(q *keyQueue) {
	defer close(q.done)
	for {
		select {
		case op := <-q.ch:
			m.executeOp(q, op)
		case <-q.stopCh:
			m.drainQueue(q)
			return
		}
	}
}

func (m *Manager) executeOp(q *keyQueue, op writeOp) {
	q.lastUsed.Store(time.Now().UnixNano())
	if err := op.ctx.Err(); err != nil {
		op.result <- err
		return
	}
	op.result <- op.fn()
}

func (m *Manager) drainQueue(q *keyQueue) {
	for {
		select {
		case op := <-q.ch:
			m.executeOp(q, op)
		default:
			return
		}
	}
}

func (m *Manager) cleanupIdleQueues() {
	defer m.cleanupWg.Done()

	ticker := time.NewTicker(m.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.doCleanup()
		}
	}
}

// doCleanup stops queues that have been idle and empty for IdleTimeout
// doCleanup 停止空闲且为空超过 IdleTimeout 的队列
func (m *Manager) doCleanup() {
	threshold := time.Now().Add(-m.config.IdleTimeout).UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, q := range m.queues {
		if q.lastUsed.Load() < threshold && len(q.ch) == 0 {
			m.logger.Debug("cleaning up idle write queue", zap.String("key", key))
			q.stop()
			delete(m.queues, key)
		}
	}
}

// Shutdown stops accepting writes, drains every queue and waits for the workers
// Shutdown 停止接收写操作，排空所有队列并等待 worker 退出
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	queues := make([]*keyQueue, 0, len(m.queues))
	for _, q := range m.queues {
		q.stop()
		queues = append(queues, q)
	}
	m.mu.Unlock()

	m.logger.Info("write queue manager shutting down", zap.Int("queues", len(queues)))

	done := make(chan struct{})
	go func() {
		for _, q := range queues {
			<-q.done
		}
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		m.cleanupWg.Wait()
		m.logger.Info("write queue manager shutdown completed")
		return nil
	case <-ctx.Done():
		m.logger.Warn("write queue manager shutdown timeout, forcing cancellation")
		m.cancel()
		return ctx.Err()
	}
}

// QueueCount 返回活跃队列数量
func (m *Manager) QueueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

// QueuedCount 返回指定 key 队列中等待的操作数
func (m *Manager) QueuedCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[key]; ok {
		return len(q.ch)
	}
	return 0
}

// IsClosed 返回管理器是否已关闭
func (m *Manager) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Metrics 写队列指标
type Metrics struct {
	QueueCapacity int
	ActiveQueues  int
	IsClosed      bool
}

// GetMetrics 获取当前指标
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		QueueCapacity: m.config.QueueCapacity,
		ActiveQueues:  len(m.queues),
		IsClosed:      m.closed,
	}
}
