package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/qiao/pkg/logger"
)

// EncodingHeader 压缩协商结果写入的响应头
const EncodingHeader = "X-Stream-Encoding"

// Handlers 一个 WebSocket 端点的业务回调集合
// Decode、Encode 与 OnMessage 必填，其余可选
type Handlers[I, O any] struct {
	// Decode 解码一帧入站数据，binary 标记帧类型
	Decode func(data []byte, binary bool) (I, error)
	// Encode 编码一条出站消息
	Encode func(out O) ([]byte, error)
	// OnMessage 处理一条解码后的入站消息
	OnMessage func(p *Pusher[I, O], input I)
	// OnClose 连接进入终态后触发恰好一次
	// last 为最后一条成功处理的输入，ok 为 false 表示从未有过输入
	OnClose func(auth any, last I, ok bool)
	// OnError 错误恢复指令，见 ErrorHandler
	OnError ErrorHandler
	// Auth 升级前认证，返回的上下文贯穿连接生命周期
	Auth func(r *http.Request) (any, error)
}

// Validate 校验必填回调
func (h *Handlers[I, O]) Validate() error {
	if h == nil {
		return ErrMissingHandler
	}
	if h.Decode == nil {
		return fmt.Errorf("%w: Decode", ErrMissingHandler)
	}
	if h.Encode == nil {
		return fmt.Errorf("%w: Encode", ErrMissingHandler)
	}
	if h.OnMessage == nil {
		return fmt.Errorf("%w: OnMessage", ErrMissingHandler)
	}
	return nil
}

// Server 一个 WebSocket 端点的服务端
// 每个升级成功的请求对应一条独立连接与一组协程
type Server[I, O any] struct {
	cfg      *Config
	handlers *Handlers[I, O]
	upgrader websocket.Upgrader
	conns    sync.Map // id -> *Conn[I, O]
	count    atomic.Int64
	closed   atomic.Bool
	log      logger.Logger
	metrics  Metrics
}

// NewServer 创建服务端
func NewServer[I, O any](handlers *Handlers[I, O], opts ...Option) (*Server[I, O], error) {
	if err := handlers.Validate(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		if len(cfg.AllowedOrigins) > 0 {
			checkOrigin = whitelistChecker(cfg.AllowedOrigins)
		} else {
			checkOrigin = defaultCheckOrigin
		}
	}

	return &Server[I, O]{
		cfg:      cfg,
		handlers: handlers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
			CheckOrigin:      checkOrigin,
		},
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Handle 认证并升级一个 HTTP 请求，随后启动连接协程
// 认证失败回 401 且不升级，服务端已关闭回 503
func (s *Server[I, O]) Handle(w http.ResponseWriter, r *http.Request) error {
	if s.closed.Load() {
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return ErrServerClosed
	}

	var auth any
	if s.handlers.Auth != nil {
		a, err := s.handlers.Auth(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return fmt.Errorf("%w: %v", ErrAuthRejected, err)
		}
		auth = a
	}

	// 压缩协商在升级前完成，结果随握手响应头告知客户端
	codec := Negotiate(r.Header.Get("Accept-Encoding"), s.cfg.Encodings)
	var respHeader http.Header
	if codec != nil {
		respHeader = http.Header{EncodingHeader: []string{codec.Name()}}
	}

	sock, err := s.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		return fmt.Errorf("ws: upgrade: %w", err)
	}

	c := newConn(uuid.NewString(), sock, s.cfg, s.handlers, codec)
	s.conns.Store(c.ID(), c)
	s.count.Add(1)
	s.metrics.ConnectionOpened()
	s.log.Info("connection accepted",
		zap.String("conn_id", c.ID()),
		zap.String("remote", sock.RemoteAddr().String()),
		zap.String("encoding", c.Encoding()),
	)

	// connect 事件先于读泵启动入列，保证先于任何数据帧被消费
	c.post(event{kind: evConnect, auth: auth})

	go c.run()
	go c.readPump()
	go c.writePump()
	go func() {
		<-c.Done()
		s.conns.Delete(c.ID())
		s.count.Add(-1)
	}()

	return nil
}

// Count 当前连接数
func (s *Server[I, O]) Count() int {
	return int(s.count.Load())
}

// Shutdown 关闭所有连接并等待其退出
func (s *Server[I, O]) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var conns []*Conn[I, O]
	s.conns.Range(func(_, v any) bool {
		conns = append(conns, v.(*Conn[I, O]))
		return true
	})
	for _, c := range conns {
		c.Close()
	}
	for _, c := range conns {
		select {
		case <-c.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
