package app

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"github.com/lxzan/gws"
	"go.uber.org/zap"
)

const (
	sessionKeyClient     = "client"
	sessionKeyAuthorized = "authorized"
	sessionKeyTraceID    = "traceId"
)

// SyncHandler receives the lifecycle and inbound frames of registered connections
// SyncHandler 接收已注册连接的生命周期事件与入站帧
type SyncHandler interface {
	OnConnect(c *WebsocketClient)
	// OnMessage data is only valid for the duration of the call
	// OnMessage data 仅在调用期间有效
	OnMessage(c *WebsocketClient, data []byte)
	OnDisconnect(c *WebsocketClient)
}

// WebsocketServerConfig WebSocket 服务配置
type WebsocketServerConfig struct {
	GWSOption gws.ServerOption
	// Token required value of the token query parameter; empty disables the check
	// Token 查询参数 token 的期望值，为空时不校验
	Token string
}

// WebsocketClient one registered sync connection
// WebsocketClient 一个已注册的同步连接
type WebsocketClient struct {
	ID      string
	TraceID string

	registry *ConnRegistry
}

// NewWebsocketClient registers peer in registry and returns its client handle
// NewWebsocketClient 将 peer 注册到 registry 并返回客户端句柄
func NewWebsocketClient(registry *ConnRegistry, peer Peer, traceID string) *WebsocketClient {
	return &WebsocketClient{
		ID:       registry.Register(peer),
		TraceID:  traceID,
		registry: registry,
	}
}

// Send 单播给当前连接
func (c *WebsocketClient) Send(frame []byte) bool {
	return c.registry.Send(c.ID, frame)
}

// Broadcast 广播给除当前连接外的所有连接
func (c *WebsocketClient) Broadcast(frame []byte) int {
	return c.registry.Broadcast(frame, c.ID)
}

// Touch 刷新当前连接的活跃时间
func (c *WebsocketClient) Touch() {
	c.registry.Touch(c.ID)
}

// gwsPeer adapts a gws connection to Peer; WriteAsync keeps one ordered queue per connection
type gwsPeer struct {
	conn   *gws.Conn
	logger *zap.Logger
}

func (p *gwsPeer) Send(frame []byte) error {
	p.conn.WriteAsync(gws.OpcodeText, frame, func(err error) {
		if err != nil {
			p.logger.Debug("websocket async write failed", zap.Error(err))
		}
	})
	return nil
}

func (p *gwsPeer) Close(code uint16, reason string) {
	p.conn.WriteClose(code, []byte(reason))
}

// WebsocketServer gws event handler backed by a ConnRegistry
// WebsocketServer 基于 ConnRegistry 的 gws 事件处理器
type WebsocketServer struct {
	registry *ConnRegistry
	handler  SyncHandler
	up       *gws.Upgrader
	config   WebsocketServerConfig
	logger   *zap.Logger
}

// NewWebsocketServer creates the sync endpoint; inbound frames of one connection are handled in order
// NewWebsocketServer 创建同步端点，同一连接的入站帧按顺序处理
func NewWebsocketServer(c WebsocketServerConfig, registry *ConnRegistry, handler SyncHandler, logger *zap.Logger) *WebsocketServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.GWSOption.ParallelEnabled = false
	if c.GWSOption.Recovery == nil {
		c.GWSOption.Recovery = gws.Recovery
	}
	w := &WebsocketServer{
		registry: registry,
		handler:  handler,
		config:   c,
		logger:   logger,
	}
	w.up = gws.NewUpgrader(w, &w.config.GWSOption)
	return w
}

// Registry 返回连接注册表
func (w *WebsocketServer) Registry() *ConnRegistry {
	return w.registry
}

func (w *WebsocketServer) authorized(token string) bool {
	if w.config.Token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(w.config.Token)) == 1
}

// Run upgrades the request; a bad token is upgraded then closed with 4001 and never registered
// Run 升级请求，token 错误时先升级再以 4001 关闭，且不会注册
func (w *WebsocketServer) Run() gin.HandlerFunc {
	return func(c *gin.Context) {
		authorized := w.authorized(c.Query("token"))

		socket, err := w.up.Upgrade(c.Writer, c.Request)
		if err != nil {
			w.logger.Error("websocket upgrade failed", zap.Error(err))
			return
		}
		socket.Session().Store(sessionKeyAuthorized, authorized)
		socket.Session().Store(sessionKeyTraceID, c.GetString("traceId"))

		go socket.ReadLoop()
	}
}

func (w *WebsocketServer) client(conn *gws.Conn) *WebsocketClient {
	v, ok := conn.Session().Load(sessionKeyClient)
	if !ok {
		return nil
	}
	c, _ := v.(*WebsocketClient)
	return c
}

func (w *WebsocketServer) OnOpen(conn *gws.Conn) {
	v, _ := conn.Session().Load(sessionKeyAuthorized)
	if ok, _ := v.(bool); !ok {
		w.logger.Warn("websocket unauthorized", zap.String("remoteAddr", conn.RemoteAddr().String()))
		conn.WriteClose(CloseUnauthorized, []byte("Unauthorized"))
		return
	}

	traceID := ""
	if t, ok := conn.Session().Load(sessionKeyTraceID); ok {
		traceID, _ = t.(string)
	}

	c := NewWebsocketClient(w.registry, &gwsPeer{conn: conn, logger: w.logger}, traceID)
	conn.Session().Store(sessionKeyClient, c)

	w.handler.OnConnect(c)
}

func (w *WebsocketServer) OnClose(conn *gws.Conn, err error) {
	c := w.client(conn)
	if c == nil {
		return
	}
	conn.Session().Delete(sessionKeyClient)
	w.registry.Unregister(c.ID)

	var code uint16
	if ce, ok := err.(*gws.CloseError); ok {
		code = ce.Code
	}
	w.logger.Info("websocket closed", zap.String("clientId", c.ID), zap.Uint16("code", code))
	w.handler.OnDisconnect(c)
}

func (w *WebsocketServer) OnPing(conn *gws.Conn, payload []byte) {
	if c := w.client(conn); c != nil {
		c.Touch()
	}
	_ = conn.WritePong(payload)
}

func (w *WebsocketServer) OnPong(conn *gws.Conn, payload []byte) {
	if c := w.client(conn); c != nil {
		c.Touch()
	}
}

func (w *WebsocketServer) OnMessage(conn *gws.Conn, message *gws.Message) {
	defer message.Close()

	c := w.client(conn)
	if c == nil {
		return
	}
	c.Touch()

	if message.Opcode != gws.OpcodeText {
		w.logger.Warn("websocket non-text frame dropped", zap.String("clientId", c.ID))
		return
	}
	w.handler.OnMessage(c, message.Bytes())
}
