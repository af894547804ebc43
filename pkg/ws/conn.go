package ws

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/qiao/pkg/errors"
	"github.com/tokmz/qiao/pkg/logger"
)

// Conn 单个 WebSocket 连接
// 所有事件经邮箱由单协程顺序消费，状态与会话字段只在该协程内变更；
// 读写各一个泵协程，读泵把对端帧与错误转成事件，写泵把出站缓冲落盘
type Conn[I, O any] struct {
	id       string
	sock     *websocket.Conn // 单元测试下可为 nil
	cfg      *Config
	handlers *Handlers[I, O]
	codec    Codec // 压缩协商结果，nil 表示不压缩

	state atomic.Int32

	// 会话字段，仅事件协程访问
	auth      any
	lastInput I
	hasInput  bool
	closed    bool

	mailbox  chan event
	out      *outbox
	done     chan struct{} // 进入 Closed 后关闭
	sockOnce sync.Once

	log     logger.Logger
	metrics Metrics
}

func newConn[I, O any](id string, sock *websocket.Conn, cfg *Config, handlers *Handlers[I, O], codec Codec) *Conn[I, O] {
	return &Conn[I, O]{
		id:       id,
		sock:     sock,
		cfg:      cfg,
		handlers: handlers,
		codec:    codec,
		mailbox:  make(chan event, cfg.MailboxSize),
		out:      newOutbox(cfg.SendBuffer),
		done:     make(chan struct{}),
		log:      cfg.Logger.With(zap.String("conn_id", id)),
		metrics:  cfg.Metrics,
	}
}

// ID 返回连接标识
func (c *Conn[I, O]) ID() string {
	return c.id
}

// State 返回当前状态
func (c *Conn[I, O]) State() State {
	return State(c.state.Load())
}

// Done 连接进入 Closed 后关闭
func (c *Conn[I, O]) Done() <-chan struct{} {
	return c.done
}

// Encoding 返回协商到的压缩编码，未压缩返回空串
func (c *Conn[I, O]) Encoding() string {
	if c.codec == nil {
		return ""
	}
	return c.codec.Name()
}

// Close 请求关闭连接，可多次调用
func (c *Conn[I, O]) Close() {
	c.post(event{kind: evClose})
}

// post 投递事件，连接已关闭时丢弃
func (c *Conn[I, O]) post(ev event) {
	select {
	case <-c.done:
		if ev.kind == evData {
			c.metrics.MessageDropped()
		}
		return
	default:
	}
	select {
	case c.mailbox <- ev:
	case <-c.done:
		if ev.kind == evData {
			c.metrics.MessageDropped()
		}
	}
}

// run 事件循环
func (c *Conn[I, O]) run() {
	for {
		select {
		case ev := <-c.mailbox:
			c.handleEvent(ev)
			if c.closed {
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleEvent 按状态分派单个事件
func (c *Conn[I, O]) handleEvent(ev event) {
	switch c.State() {
	case StateAwaitingConnect:
		c.handleAwaiting(ev)
	case StateOpen:
		c.handleOpen(ev)
	default:
		// 终态丢弃一切
		if ev.kind == evData {
			c.metrics.MessageDropped()
		}
	}
}

// handleAwaiting 等待 connect 事件
// 除 connect、关闭与流错误外，其余事件丢弃
func (c *Conn[I, O]) handleAwaiting(ev event) {
	switch ev.kind {
	case evConnect:
		c.auth = ev.auth
		c.state.Store(int32(StateOpen))
		c.log.Debug("connection open")
	case evPeerClose, evClose:
		c.toClosed()
	case evFailure:
		c.log.Warn("stream failure before connect", zap.Error(ev.err))
		c.toClosed()
	default:
		c.metrics.MessageDropped()
		c.log.Debug("frame before connect dropped")
	}
}

// handleOpen 正常收发状态
func (c *Conn[I, O]) handleOpen(ev event) {
	switch ev.kind {
	case evData:
		c.handleData(ev)
	case evFailure:
		c.streamFailure(ev.err)
	case evPeerClose, evClose:
		c.toClosed()
	case evConnect:
		c.log.Debug("duplicate connect dropped")
	}
}

// handleData 解码入站帧并交给业务逻辑，随后记录为最后输入
func (c *Conn[I, O]) handleData(ev event) {
	payload := ev.data
	if c.codec != nil && ev.binary {
		decoded, err := c.codec.Decode(payload)
		if err != nil {
			c.metrics.DecodeError()
			c.streamFailure(errors.Wrap(errors.KindDecode, err, "decompress inbound frame"))
			return
		}
		payload = decoded
	}

	input, err := c.handlers.Decode(payload, ev.binary)
	if err != nil {
		c.metrics.DecodeError()
		c.streamFailure(errors.Wrap(errors.KindDecode, err, "decode inbound frame"))
		return
	}

	c.metrics.MessageReceived()

	// Pusher 绑定本条输入与此刻的最后输入快照
	p := &Pusher[I, O]{conn: c, input: input, last: c.lastInput, hasLast: c.hasInput}
	c.invoke(p, input)

	// 处理期间连接可能已进入终态，之后不再更新会话
	if !c.closed {
		c.lastInput = input
		c.hasInput = true
	}
}

// invoke 调用业务逻辑，panic 按流错误处理
func (c *Conn[I, O]) invoke(p *Pusher[I, O], input I) {
	defer func() {
		if r := recover(); r != nil {
			c.streamFailure(fmt.Errorf("ws: message handler panic: %v", r))
		}
	}()
	c.handlers.OnMessage(p, input)
}

// streamFailure 流错误处理：指令缺失或未匹配时关闭连接
func (c *Conn[I, O]) streamFailure(err error) {
	d, matched := c.consult(err)
	if !matched {
		c.log.Warn("unhandled stream failure, closing",
			zap.Error(err),
			zap.String("origin", errors.Origin(err)),
		)
		c.toClosed()
		return
	}

	switch d {
	case Resume:
		c.log.Debug("stream failure resumed", zap.Error(err))
	case Restart:
		// 单个连接不可重启，降级为恢复
		c.log.Warn("restart directive on connection, resuming", zap.Error(err))
	case Stop:
		c.toClosed()
	default:
		c.toClosed()
	}
}

// replyFailure 回复错误处理：指令缺失或未匹配时记录后继续
func (c *Conn[I, O]) replyFailure(err error) {
	d, matched := c.consult(err)
	if !matched {
		c.log.Warn("unhandled reply failure, resuming",
			zap.Error(err),
			zap.String("origin", errors.Origin(err)),
		)
		return
	}

	switch d {
	case Stop:
		c.Close()
	case Restart:
		c.log.Warn("restart directive on connection, resuming", zap.Error(err))
	default:
		c.log.Debug("reply failure resumed", zap.Error(err))
	}
}

func (c *Conn[I, O]) consult(err error) (Directive, bool) {
	if c.handlers.OnError == nil {
		return 0, false
	}
	return c.handlers.OnError(err)
}

// toClosed 进入终态：触发 onClose 恰好一次并释放资源
func (c *Conn[I, O]) toClosed() {
	if c.closed {
		return
	}
	c.closed = true
	c.state.Store(int32(StateClosed))

	if c.handlers.OnClose != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("close callback panic", zap.Any("panic", r))
				}
			}()
			c.handlers.OnClose(c.auth, c.lastInput, c.hasInput)
		}()
	}

	dropped := c.out.droppedCount()
	c.out.close()
	close(c.done)
	c.closeSocket()
	c.metrics.ConnectionClosed()
	c.log.Info("connection closed", zap.Uint64("dropped_replies", dropped))
}

// closeSocket 底层连接只关一次，尽力发送关闭帧
func (c *Conn[I, O]) closeSocket() {
	if c.sock == nil {
		return
	}
	c.sockOnce.Do(func() {
		deadline := time.Now().Add(c.cfg.WriteWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.sock.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.sock.Close()
	})
}

// send 消息写入出站缓冲，返回是否触发丢弃最旧
func (c *Conn[I, O]) send(data []byte) bool {
	dropped := c.out.push(data)
	if dropped {
		c.metrics.ReplyDropped()
		c.log.Warn("send buffer full, oldest message dropped")
	}
	return dropped
}

// encodeOutput 业务编码后按需压缩
func (c *Conn[I, O]) encodeOutput(out O) ([]byte, error) {
	data, err := c.handlers.Encode(out)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, err, "encode outbound message")
	}
	if c.codec == nil {
		return data, nil
	}
	compressed, err := c.codec.Encode(data)
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, err, "compress outbound message")
	}
	return compressed, nil
}

// readPump 读协程：对端帧与错误转为事件
func (c *Conn[I, O]) readPump() {
	c.sock.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.sock.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.post(event{kind: evFailure, err: err})
		return
	}
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		mt, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.post(event{kind: evPeerClose})
			} else {
				c.post(event{kind: evFailure, err: err})
			}
			return
		}
		switch mt {
		case websocket.TextMessage:
			c.post(event{kind: evData, data: data})
		case websocket.BinaryMessage:
			c.post(event{kind: evData, data: data, binary: true})
		}
	}
}

// writePump 写协程：出站缓冲落到 socket，兼发心跳
func (c *Conn[I, O]) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.closeSocket()
	}()

	for {
		select {
		case <-c.done:
			return
		case <-c.out.signal:
			for {
				data, ok := c.out.pop()
				if !ok {
					break
				}
				if err := c.writeFrame(data); err != nil {
					c.post(event{kind: evFailure, err: err})
					return
				}
			}
		case <-ticker.C:
			if err := c.sock.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.post(event{kind: evFailure, err: err})
				return
			}
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.post(event{kind: evFailure, err: err})
				return
			}
		}
	}
}

// writeFrame 压缩流走二进制帧，未压缩走文本帧
func (c *Conn[I, O]) writeFrame(data []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	mt := websocket.TextMessage
	if c.codec != nil {
		mt = websocket.BinaryMessage
	}
	return c.sock.WriteMessage(mt, data)
}
