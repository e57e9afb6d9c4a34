package app

import (
	"context"
	"encoding/binary"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebSocket close codes used by the sync endpoint
// 同步端点使用的 WebSocket 关闭码
const (
	CloseNormal           uint16 = 1000
	CloseHeartbeatTimeout uint16 = 4000
	CloseUnauthorized     uint16 = 4001
)

// DefaultHeartbeatTimeout 默认心跳超时时间
const DefaultHeartbeatTimeout = 60 * time.Second

// Peer outbound side of one live connection
// Peer 单个连接的发送端
type Peer interface {
	// Send queues one text frame; implementations keep per-peer order
	// Send 排队发送一个文本帧，实现需保证同一连接内的顺序
	Send(frame []byte) error
	// Close 以指定关闭码关闭连接
	Close(code uint16, reason string)
}

type registryEntry struct {
	peer Peer
	// lastSeen unix nanoseconds of the last inbound frame
	lastSeen atomic.Int64
}

// RegistryOption ConnRegistry 配置项
type RegistryOption func(*ConnRegistry)

// WithRegistryLogger 注入日志器
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *ConnRegistry) { r.logger = l }
}

// WithHeartbeatTimeout sets how long a connection may stay silent before Sweep closes it
// WithHeartbeatTimeout 设置连接静默多久后被 Sweep 关闭
func WithHeartbeatTimeout(d time.Duration) RegistryOption {
	return func(r *ConnRegistry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCountObserver is called with the live connection count after every change
// WithCountObserver 每次连接数变化后回调当前连接数
func WithCountObserver(fn func(int)) RegistryOption {
	return func(r *ConnRegistry) { r.onCount = fn }
}

// ConnRegistry owns the set of live sync connections
// ConnRegistry 管理所有在线同步连接
type ConnRegistry struct {
	mu      sync.RWMutex
	conns   map[string]*registryEntry
	timeout time.Duration
	logger  *zap.Logger
	onCount func(int)
	now     func() time.Time
}

// NewConnRegistry 创建连接注册表
func NewConnRegistry(opts ...RegistryOption) *ConnRegistry {
	r := &ConnRegistry{
		conns:   make(map[string]*registryEntry),
		timeout: DefaultHeartbeatTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// NewClientID returns client_<unixMillis>_<7 base36 chars>
// NewClientID 生成 client_<毫秒时间戳>_<7 位 36 进制随机串>
func NewClientID(now time.Time) string {
	u := uuid.New()
	suffix := strconv.FormatUint(binary.BigEndian.Uint64(u[:8]), 36)
	if len(suffix) < 7 {
		suffix = strings.Repeat("0", 7-len(suffix)) + suffix
	}
	return "client_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix[len(suffix)-7:]
}

// Register assigns a fresh client id to peer and marks it live
// Register 为 peer 分配新的客户端 ID 并标记为在线
func (r *ConnRegistry) Register(peer Peer) string {
	r.mu.Lock()
	now := r.now()
	id := NewClientID(now)
	for {
		if _, exists := r.conns[id]; !exists {
			break
		}
		id = NewClientID(now)
	}
	e := &registryEntry{peer: peer}
	e.lastSeen.Store(now.UnixNano())
	r.conns[id] = e
	count := len(r.conns)
	r.mu.Unlock()

	r.logger.Info("sync client connected", zap.String("clientId", id), zap.Int("count", count))
	r.observe(count)
	return id
}

// Unregister removes id; unknown ids are ignored. Returns whether id was present.
// Unregister 移除连接，未知 ID 忽略
func (r *ConnRegistry) Unregister(id string) bool {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	count := len(r.conns)
	r.mu.Unlock()

	if ok {
		r.logger.Info("sync client disconnected", zap.String("clientId", id), zap.Int("count", count))
		r.observe(count)
	}
	return ok
}

// Touch 刷新连接的最后活跃时间
func (r *ConnRegistry) Touch(id string) {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if ok {
		e.lastSeen.Store(r.now().UnixNano())
	}
}

// Send best-effort unicast; false when id is gone or the write failed
// Send 尽力单播，连接不存在或写入失败时返回 false
func (r *ConnRegistry) Send(id string, frame []byte) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := e.peer.Send(frame); err != nil {
		r.logger.Warn("sync send failed", zap.String("clientId", id), zap.Error(err))
		return false
	}
	return true
}

// Broadcast sends frame to every live connection except excludeID and returns the delivered count
// Broadcast 向除 excludeID 外的所有在线连接发送，返回成功数量
func (r *ConnRegistry) Broadcast(frame []byte, excludeID string) int {
	r.mu.RLock()
	targets := make(map[string]Peer, len(r.conns))
	for id, e := range r.conns {
		if id != excludeID {
			targets[id] = e.peer
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for id, p := range targets {
		if err := p.Send(frame); err != nil {
			r.logger.Warn("sync broadcast failed", zap.String("clientId", id), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// Sweep closes and removes every connection idle longer than the heartbeat timeout
// Sweep 关闭并移除静默超过心跳超时时间的连接
func (r *ConnRegistry) Sweep(now time.Time) []string {
	deadline := now.Add(-r.timeout).UnixNano()

	r.mu.Lock()
	var expired []string
	var peers []Peer
	for id, e := range r.conns {
		if e.lastSeen.Load() < deadline {
			expired = append(expired, id)
			peers = append(peers, e.peer)
			delete(r.conns, id)
		}
	}
	count := len(r.conns)
	r.mu.Unlock()

	for i, p := range peers {
		r.logger.Warn("sync client heartbeat timeout", zap.String("clientId", expired[i]))
		p.Close(CloseHeartbeatTimeout, "Heartbeat timeout")
	}
	if len(expired) > 0 {
		r.observe(count)
	}
	return expired
}

// Run sweeps every interval until ctx ends
// Run 按 interval 周期执行 Sweep，直到 ctx 结束
func (r *ConnRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			r.Sweep(t)
		}
	}
}

// CloseAll 关闭所有连接（服务停止时使用）
func (r *ConnRegistry) CloseAll(code uint16, reason string) {
	r.mu.Lock()
	peers := make([]Peer, 0, len(r.conns))
	for id, e := range r.conns {
		peers = append(peers, e.peer)
		delete(r.conns, id)
	}
	r.mu.Unlock()

	for _, p := range peers {
		p.Close(code, reason)
	}
	r.observe(0)
}

// Count 在线连接数
func (r *ConnRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// IDs 在线连接 ID 列表
func (r *ConnRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

func (r *ConnRegistry) observe(count int) {
	if r.onCount != nil {
		r.onCount(count)
	}
}
