package ws

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/tokmz/qiao/pkg/errors"
)

// recordingMetrics 记录各计数器供断言
type recordingMetrics struct {
	opened       int
	closed       int
	received     int
	dropped      int
	replyDropped int
	decodeErrors int
}

func (m *recordingMetrics) ConnectionOpened() { m.opened++ }
func (m *recordingMetrics) ConnectionClosed() { m.closed++ }
func (m *recordingMetrics) MessageReceived()  { m.received++ }
func (m *recordingMetrics) MessageDropped()   { m.dropped++ }
func (m *recordingMetrics) ReplyDropped()     { m.replyDropped++ }
func (m *recordingMetrics) DecodeError()      { m.decodeErrors++ }

type closeRecord struct {
	auth any
	last string
	ok   bool
}

// newTestConn 构造无底层 socket 的连接，直接驱动 handleEvent
func newTestConn(t *testing.T, mutate func(h *Handlers[string, string])) (*Conn[string, string], *recordingMetrics, *[]closeRecord) {
	t.Helper()

	metrics := &recordingMetrics{}
	closes := &[]closeRecord{}

	h := &Handlers[string, string]{
		Decode: func(data []byte, binary bool) (string, error) {
			return string(data), nil
		},
		Encode: func(out string) ([]byte, error) {
			return []byte(out), nil
		},
		OnMessage: func(p *Pusher[string, string], input string) {},
		OnClose: func(auth any, last string, ok bool) {
			*closes = append(*closes, closeRecord{auth: auth, last: last, ok: ok})
		},
	}
	if mutate != nil {
		mutate(h)
	}

	cfg := DefaultConfig()
	cfg.Metrics = metrics
	return newConn("conn-test", nil, cfg, h, nil), metrics, closes
}

func TestConnLifecycle(t *testing.T) {
	c, metrics, closes := newTestConn(t, nil)
	assert.Equal(t, StateAwaitingConnect, c.State())

	c.handleEvent(event{kind: evConnect, auth: "user-1"})
	assert.Equal(t, StateOpen, c.State())

	c.handleEvent(event{kind: evData, data: []byte("hello")})
	assert.Equal(t, 1, metrics.received)

	c.handleEvent(event{kind: evPeerClose})
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, metrics.closed)

	require.Len(t, *closes, 1)
	rec := (*closes)[0]
	assert.Equal(t, "user-1", rec.auth)
	assert.Equal(t, "hello", rec.last)
	assert.True(t, rec.ok)

	select {
	case <-c.Done():
	default:
		t.Fatal("done should be closed after the connection closes")
	}
}

func TestConnDataBeforeConnectDropped(t *testing.T) {
	var handled int
	c, metrics, _ := newTestConn(t, func(h *Handlers[string, string]) {
		h.OnMessage = func(p *Pusher[string, string], input string) { handled++ }
	})

	c.handleEvent(event{kind: evData, data: []byte("early")})

	assert.Equal(t, StateAwaitingConnect, c.State())
	assert.Zero(t, handled)
	assert.Equal(t, 1, metrics.dropped)
	assert.Zero(t, metrics.received)
}

func TestConnCloseBeforeConnect(t *testing.T) {
	c, _, closes := newTestConn(t, nil)

	c.handleEvent(event{kind: evClose})

	assert.Equal(t, StateClosed, c.State())
	require.Len(t, *closes, 1)
	assert.Nil(t, (*closes)[0].auth)
	assert.False(t, (*closes)[0].ok, "never saw any input")
}

func TestConnFailureBeforeConnect(t *testing.T) {
	c, _, closes := newTestConn(t, nil)

	c.handleEvent(event{kind: evFailure, err: errors.New("socket gone")})

	assert.Equal(t, StateClosed, c.State())
	require.Len(t, *closes, 1)
	assert.False(t, (*closes)[0].ok)
}

func TestConnOnCloseExactlyOnce(t *testing.T) {
	c, metrics, closes := newTestConn(t, nil)

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evClose})
	c.handleEvent(event{kind: evClose})
	c.handleEvent(event{kind: evPeerClose})

	assert.Len(t, *closes, 1)
	assert.Equal(t, 1, metrics.closed)
}

func TestConnClosedStateDropsData(t *testing.T) {
	c, metrics, _ := newTestConn(t, nil)

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evClose})
	c.handleEvent(event{kind: evData, data: []byte("late")})

	assert.Equal(t, 1, metrics.dropped)
	assert.Zero(t, metrics.received)
}

func TestConnDuplicateConnectIgnored(t *testing.T) {
	var got any
	c, _, _ := newTestConn(t, func(h *Handlers[string, string]) {
		h.OnMessage = func(p *Pusher[string, string], input string) { got = p.Auth() }
	})

	c.handleEvent(event{kind: evConnect, auth: "first"})
	c.handleEvent(event{kind: evConnect, auth: "second"})
	c.handleEvent(event{kind: evData, data: []byte("m")})

	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, "first", got)
}

func TestConnDecodeFailureDirectives(t *testing.T) {
	tests := []struct {
		name      string
		handler   ErrorHandler
		wantState State
	}{
		{name: "no handler closes", handler: nil, wantState: StateClosed},
		{name: "unmatched closes", handler: func(error) (Directive, bool) { return 0, false }, wantState: StateClosed},
		{name: "resume keeps open", handler: func(error) (Directive, bool) { return Resume, true }, wantState: StateOpen},
		{name: "restart treated as resume", handler: func(error) (Directive, bool) { return Restart, true }, wantState: StateOpen},
		{name: "stop closes", handler: func(error) (Directive, bool) { return Stop, true }, wantState: StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, metrics, _ := newTestConn(t, func(h *Handlers[string, string]) {
				h.Decode = func([]byte, bool) (string, error) { return "", errors.New("bad frame") }
				h.OnError = tt.handler
			})

			c.handleEvent(event{kind: evConnect})
			c.handleEvent(event{kind: evData, data: []byte("junk")})

			assert.Equal(t, tt.wantState, c.State())
			assert.Equal(t, 1, metrics.decodeErrors)
			assert.Zero(t, metrics.received)
		})
	}
}

func TestConnDecodeFailureErrorKind(t *testing.T) {
	var seen error
	c, _, _ := newTestConn(t, func(h *Handlers[string, string]) {
		h.Decode = func([]byte, bool) (string, error) { return "", errors.New("bad frame") }
		h.OnError = func(err error) (Directive, bool) {
			seen = err
			return Resume, true
		}
	})

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: []byte("junk")})

	require.Error(t, seen)
	assert.True(t, qerrors.IsKind(seen, qerrors.KindDecode))
}

func TestConnHandlerPanicCloses(t *testing.T) {
	c, _, closes := newTestConn(t, func(h *Handlers[string, string]) {
		h.OnMessage = func(p *Pusher[string, string], input string) {
			if input == "boom" {
				panic("kaboom")
			}
		}
	})

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: []byte("ok-1")})
	c.handleEvent(event{kind: evData, data: []byte("boom")})

	assert.Equal(t, StateClosed, c.State())
	require.Len(t, *closes, 1)
	// 触发崩溃的消息不会成为最后输入
	assert.Equal(t, "ok-1", (*closes)[0].last)
	assert.True(t, (*closes)[0].ok)
}

func TestConnHandlerPanicResume(t *testing.T) {
	var snaps []string
	c, _, _ := newTestConn(t, func(h *Handlers[string, string]) {
		h.OnMessage = func(p *Pusher[string, string], input string) {
			last, _ := p.LastInput()
			snaps = append(snaps, last)
			if input == "boom" {
				panic("kaboom")
			}
		}
		h.OnError = func(error) (Directive, bool) { return Resume, true }
	})

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: []byte("ok-1")})
	c.handleEvent(event{kind: evData, data: []byte("boom")})
	c.handleEvent(event{kind: evData, data: []byte("ok-2")})

	assert.Equal(t, StateOpen, c.State())
	// 恢复后的崩溃消息仍记录为最后输入
	assert.Equal(t, []string{"", "ok-1", "boom"}, snaps)
}

func TestConnLastInputSnapshot(t *testing.T) {
	type snap struct {
		input string
		last  string
		has   bool
	}
	var snaps []snap

	c, _, _ := newTestConn(t, func(h *Handlers[string, string]) {
		h.OnMessage = func(p *Pusher[string, string], input string) {
			last, ok := p.LastInput()
			snaps = append(snaps, snap{input: p.Input(), last: last, has: ok})
		}
	})

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: []byte("first")})
	c.handleEvent(event{kind: evData, data: []byte("second")})

	require.Len(t, snaps, 2)
	assert.Equal(t, snap{input: "first", last: "", has: false}, snaps[0])
	assert.Equal(t, snap{input: "second", last: "first", has: true}, snaps[1])
}

func TestConnReplyBuffersMessage(t *testing.T) {
	c, _, _ := newTestConn(t, func(h *Handlers[string, string]) {
		h.OnMessage = func(p *Pusher[string, string], input string) {
			assert.NoError(t, p.Reply(input+"/pong"))
		}
	})

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: []byte("ping")})

	data, ok := c.out.pop()
	require.True(t, ok)
	assert.Equal(t, "ping/pong", string(data))
}

func TestConnReplyDropOldest(t *testing.T) {
	metrics := &recordingMetrics{}
	h := &Handlers[string, string]{
		Decode: func(data []byte, binary bool) (string, error) { return string(data), nil },
		Encode: func(out string) ([]byte, error) { return []byte(out), nil },
		OnMessage: func(p *Pusher[string, string], input string) {
			for i := 1; i <= 3; i++ {
				assert.NoError(t, p.Reply(fmt.Sprintf("r%d", i)))
			}
		},
	}
	cfg := DefaultConfig()
	cfg.SendBuffer = 2
	cfg.Metrics = metrics
	c := newConn("conn-test", nil, cfg, h, nil)

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: []byte("go")})

	assert.Equal(t, 2, c.out.len())
	assert.Equal(t, 1, metrics.replyDropped)

	// r1 被挤掉，留下 r2、r3
	first, ok := c.out.pop()
	require.True(t, ok)
	assert.Equal(t, "r2", string(first))
}

func TestConnReplyFailureResumes(t *testing.T) {
	encodeErr := errors.New("encode broken")
	var replyErr error

	c, _, _ := newTestConn(t, func(h *Handlers[string, string]) {
		h.Encode = func(string) ([]byte, error) { return nil, encodeErr }
		h.OnMessage = func(p *Pusher[string, string], input string) {
			replyErr = p.Reply("x")
		}
	})

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: []byte("m")})

	require.Error(t, replyErr)
	assert.ErrorIs(t, replyErr, encodeErr)
	assert.True(t, qerrors.IsKind(replyErr, qerrors.KindInternal))
	// 回复失败不影响连接
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, 0, c.out.len())
}

func TestConnReplyFailureStopDirective(t *testing.T) {
	c, _, _ := newTestConn(t, func(h *Handlers[string, string]) {
		h.Encode = func(string) ([]byte, error) { return nil, errors.New("encode broken") }
		h.OnMessage = func(p *Pusher[string, string], input string) {
			_ = p.Reply("x")
		}
		h.OnError = func(error) (Directive, bool) { return Stop, true }
	})

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: []byte("m")})

	// Stop 作为 close 事件入列，异步生效
	assert.Equal(t, StateOpen, c.State())
	c.handleEvent(<-c.mailbox)
	assert.Equal(t, StateClosed, c.State())
}

func TestConnPusherStop(t *testing.T) {
	c, _, closes := newTestConn(t, func(h *Handlers[string, string]) {
		h.OnMessage = func(p *Pusher[string, string], input string) {
			if input == "quit" {
				p.Stop()
			}
		}
	})

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: []byte("quit")})

	assert.Equal(t, StateOpen, c.State())
	c.handleEvent(<-c.mailbox)
	assert.Equal(t, StateClosed, c.State())

	require.Len(t, *closes, 1)
	// 关闭请求在输入记录之后生效
	assert.Equal(t, "quit", (*closes)[0].last)
	assert.True(t, (*closes)[0].ok)
}

func TestConnCompressedFrames(t *testing.T) {
	codec, ok := lookupCodec(EncodingGzip)
	require.True(t, ok)

	metrics := &recordingMetrics{}
	h := &Handlers[string, string]{
		Decode: func(data []byte, binary bool) (string, error) { return string(data), nil },
		Encode: func(out string) ([]byte, error) { return []byte(out), nil },
		OnMessage: func(p *Pusher[string, string], input string) {
			assert.NoError(t, p.Reply(input+"/pong"))
		},
	}
	cfg := DefaultConfig()
	cfg.Metrics = metrics
	c := newConn("conn-test", nil, cfg, h, codec)

	compressed, err := codec.Encode([]byte("ping"))
	require.NoError(t, err)

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: compressed, binary: true})

	assert.Equal(t, 1, metrics.received)

	// 出站同样走压缩
	data, popped := c.out.pop()
	require.True(t, popped)
	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "ping/pong", string(decoded))
}

func TestConnCorruptCompressedFrame(t *testing.T) {
	codec, ok := lookupCodec(EncodingGzip)
	require.True(t, ok)

	metrics := &recordingMetrics{}
	var closed int
	h := &Handlers[string, string]{
		Decode:    func(data []byte, binary bool) (string, error) { return string(data), nil },
		Encode:    func(out string) ([]byte, error) { return []byte(out), nil },
		OnMessage: func(p *Pusher[string, string], input string) {},
		OnClose:   func(any, string, bool) { closed++ },
	}
	cfg := DefaultConfig()
	cfg.Metrics = metrics
	c := newConn("conn-test", nil, cfg, h, codec)

	c.handleEvent(event{kind: evConnect})
	c.handleEvent(event{kind: evData, data: []byte("not gzip"), binary: true})

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, metrics.decodeErrors)
	assert.Equal(t, 1, closed)
}

func TestConnRunLoop(t *testing.T) {
	c, _, closes := newTestConn(t, nil)
	go c.run()

	c.post(event{kind: evConnect, auth: "a"})
	c.post(event{kind: evData, data: []byte("x")})
	c.post(event{kind: evClose})

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("connection did not close")
	}

	assert.Equal(t, StateClosed, c.State())
	require.Len(t, *closes, 1)
	assert.Equal(t, "x", (*closes)[0].last)
}
