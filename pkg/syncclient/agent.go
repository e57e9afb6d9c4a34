package syncclient

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/haierkeys/notegpt-sync-service/internal/domain"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/protocol"

	"github.com/creasty/defaults"
	"github.com/lxzan/gws"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Status connection status reported through Options.OnStatus
// Status 通过 Options.OnStatus 上报的连接状态
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

var (
	// ErrGaveUp the reconnect budget is spent
	// ErrGaveUp 重连次数已用尽
	ErrGaveUp = errors.New("gave up reconnecting")
	// ErrClosed the agent was closed by its owner
	ErrClosed = errors.New("agent closed")
)

// MutationError a mutation the server refused, reported through Options.OnError
// MutationError 服务端拒绝的变更，通过 Options.OnError 上报
type MutationError struct {
	Type              protocol.Type
	OriginalTimestamp int64
	Code              int
	Message           string
}

func (e MutationError) Error() string {
	return string(e.Type) + ": " + e.Message
}

// Options 客户端选项
type Options struct {
	// URL sync endpoint, e.g. ws://localhost:9000/v1/sync
	URL   string
	Token string
	// Format "flat" asks for the notes-only INIT_RESPONSE
	Format string

	ReconnectInterval    time.Duration `default:"3s"`
	MaxReconnectAttempts int           `default:"10"`
	HeartbeatInterval    time.Duration `default:"25s"`
	DebounceDelay        time.Duration `default:"500ms"`

	Logger *zap.Logger

	OnStatus func(status Status, err error)
	OnError  func(err MutationError)
	// OnRemote called after a change from another client reached the local store
	// OnRemote 其他客户端的变更写入本地存储后回调
	OnRemote func(m protocol.Message)
}

type pendingEdit struct {
	note  *domain.Note
	timer *time.Timer
	seq   uint64
}

// Agent keeps a LocalStore in step with the sync service over one WebSocket
// Agent 通过一条 WebSocket 连接让本地存储与同步服务保持一致
type Agent struct {
	gws.BuiltinEventHandler

	opts  Options
	store LocalStore
	log   *zap.Logger

	mu        sync.Mutex
	conn      *gws.Conn
	ready     bool
	clientID  string
	status    Status
	attempts  int
	closed    bool
	retry     *time.Timer
	stopPing  chan struct{}
	lastStamp int64
	editSeq   uint64
	editing   map[string]bool
	pending   map[string]*pendingEdit
	outbox    *outbox
	inflight  map[int64]protocol.Type
}

// New creates an agent; call Connect to start syncing
// New 创建客户端，调用 Connect 开始同步
func New(store LocalStore, opts Options) (*Agent, error) {
	if store == nil {
		return nil, errors.New("local store is required")
	}
	if err := defaults.Set(&opts); err != nil {
		return nil, errors.Wrap(err, "apply agent defaults")
	}
	if _, err := url.Parse(opts.URL); err != nil || opts.URL == "" {
		return nil, errors.Errorf("invalid sync url %q", opts.URL)
	}
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Agent{
		opts:     opts,
		store:    store,
		log:      lg.Named("syncclient"),
		status:   StatusDisconnected,
		editing:  make(map[string]bool),
		pending:  make(map[string]*pendingEdit),
		outbox:   newOutbox(),
		inflight: make(map[int64]protocol.Type),
	}, nil
}

func (a *Agent) addr() string {
	u, _ := url.Parse(a.opts.URL)
	q := u.Query()
	q.Set("token", a.opts.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Status 当前连接状态
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// ClientID id assigned by the server in the last INIT response
// ClientID 服务端在最近一次 INIT 响应中分配的 ID
func (a *Agent) ClientID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clientID
}

// Pending number of frames waiting in the offline outbox
// Pending 离线队列中等待发送的消息数
func (a *Agent) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outbox.Len()
}

func (a *Agent) setStatus(s Status, err error) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()

	if err != nil {
		a.log.Info("sync status", zap.String("status", string(s)), zap.Error(err))
	} else {
		a.log.Debug("sync status", zap.String("status", string(s)))
	}
	if a.opts.OnStatus != nil {
		a.opts.OnStatus(s, err)
	}
}

// Connect dials the endpoint. A failed dial is retried on the reconnect schedule
// and its error is still returned.
// Connect 建立连接，拨号失败时按重连策略重试，并返回该错误
func (a *Agent) Connect() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.conn != nil {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	a.setStatus(StatusConnecting, nil)
	socket, _, err := gws.NewClient(a, &gws.ClientOption{
		Addr:              a.addr(),
		PermessageDeflate: gws.PermessageDeflate{Enabled: true},
	})
	if err != nil {
		a.log.Warn("sync dial failed", zap.String("url", a.opts.URL), zap.Error(err))
		a.scheduleReconnect(err)
		return errors.Wrap(err, "dial sync endpoint")
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		socket.WriteClose(pkgapp.CloseNormal, nil)
		return ErrClosed
	}
	a.conn = socket
	a.mu.Unlock()

	go socket.ReadLoop()
	return nil
}

func (a *Agent) scheduleReconnect(cause error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if a.attempts >= a.opts.MaxReconnectAttempts {
		a.mu.Unlock()
		a.setStatus(StatusDisconnected, ErrGaveUp)
		return
	}
	a.attempts++
	attempt := a.attempts
	a.retry = time.AfterFunc(a.opts.ReconnectInterval, func() { _ = a.Connect() })
	a.mu.Unlock()

	a.log.Info("sync reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("in", a.opts.ReconnectInterval))
	a.setStatus(StatusDisconnected, cause)
}

// Close commits pending edits, cancels any reconnect and closes with 1000
// Close 提交未完成的编辑，取消重连并以 1000 关闭连接
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	if a.retry != nil {
		a.retry.Stop()
		a.retry = nil
	}
	ids := make([]string, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		a.commit(id, 0)
	}

	a.mu.Lock()
	socket := a.conn
	a.mu.Unlock()
	if socket == nil {
		a.setStatus(StatusDisconnected, nil)
		return nil
	}
	socket.WriteClose(pkgapp.CloseNormal, nil)
	return nil
}

func (a *Agent) OnOpen(socket *gws.Conn) {
	a.mu.Lock()
	if socket != a.conn {
		a.mu.Unlock()
		return
	}
	a.attempts = 0
	a.ready = false
	stop := make(chan struct{})
	a.stopPing = stop
	a.mu.Unlock()

	a.setStatus(StatusConnected, nil)
	if err := a.write(socket, a.stamp(&protocol.Init{Format: a.opts.Format}, protocol.TypeInit)); err != nil {
		a.log.Warn("sync send INIT failed", zap.Error(err))
	}
	go a.heartbeat(socket, stop)
}

func (a *Agent) OnClose(socket *gws.Conn, err error) {
	var code uint16
	if ce, ok := err.(*gws.CloseError); ok {
		code = ce.Code
	}

	a.mu.Lock()
	if socket != a.conn {
		a.mu.Unlock()
		return
	}
	a.conn = nil
	a.ready = false
	if a.stopPing != nil {
		close(a.stopPing)
		a.stopPing = nil
	}
	// ACKs for frames written on this socket will never arrive
	unacked := len(a.inflight)
	clear(a.inflight)
	closed := a.closed
	a.mu.Unlock()

	a.log.Info("sync connection closed", zap.Uint16("code", code), zap.Int("unacked", unacked), zap.Error(err))
	switch {
	case closed || code == pkgapp.CloseNormal:
		a.setStatus(StatusDisconnected, nil)
	case code == pkgapp.CloseUnauthorized:
		a.setStatus(StatusError, domain.ErrUnauthorized)
	default:
		a.scheduleReconnect(err)
	}
}

func (a *Agent) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	m, err := protocol.Decode(message.Bytes())
	if err != nil {
		a.log.Warn("sync frame dropped", zap.Error(err))
		return
	}
	a.handle(context.Background(), socket, m)
}

func (a *Agent) heartbeat(socket *gws.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(a.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := a.write(socket, a.stamp(&protocol.Ping{}, protocol.TypePing)); err != nil {
				a.log.Debug("sync PING failed", zap.Error(err))
			}
		}
	}
}

// stamp sets type, client id and a strictly increasing timestamp, so ACKs map back
// to exactly one frame
// stamp 设置类型、客户端 ID 与严格递增的时间戳，使 ACK 能唯一对应到一帧
func (a *Agent) stamp(m protocol.Message, t protocol.Type) protocol.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stampLocked(m, t)
}

func (a *Agent) stampLocked(m protocol.Message, t protocol.Type) protocol.Message {
	now := time.Now()
	if ms := now.UnixMilli(); ms <= a.lastStamp {
		now = time.UnixMilli(a.lastStamp + 1)
	}
	protocol.Stamp(m, t, a.clientID, now)
	a.lastStamp = m.Header().Timestamp
	return m
}

func (a *Agent) write(socket *gws.Conn, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return socket.WriteMessage(gws.OpcodeText, frame)
}

// send delivers a mutation, or queues it under key until the next INIT completes
// send 发送变更；未就绪时按 key 放入离线队列，待下次 INIT 完成后发送
func (a *Agent) send(key string, m protocol.Message, t protocol.Type, toBack bool) {
	a.mu.Lock()
	a.stampLocked(m, t)
	socket := a.conn
	if socket == nil || !a.ready {
		a.outbox.put(key, m, toBack)
		a.mu.Unlock()
		return
	}
	a.inflight[m.Header().Timestamp] = t
	a.mu.Unlock()

	if err := a.write(socket, m); err != nil {
		a.log.Warn("sync send failed, queued", zap.String("type", string(t)), zap.Error(err))
		a.mu.Lock()
		delete(a.inflight, m.Header().Timestamp)
		a.outbox.put(key, m, toBack)
		a.mu.Unlock()
	}
}
