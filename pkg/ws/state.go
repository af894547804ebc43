package ws

// State 连接状态
// 状态只向前推进：AwaitingConnect → Open → Closed
type State int32

const (
	// StateAwaitingConnect 升级完成，等待服务端投递 connect 事件
	StateAwaitingConnect State = iota
	// StateOpen 正常收发
	StateOpen
	// StateClosed 终态，onClose 已触发
	StateClosed
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateAwaitingConnect:
		return "awaiting_connect"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Directive 错误处理指令
type Directive int

const (
	// Resume 忽略错误继续处理后续事件
	Resume Directive = iota
	// Stop 关闭连接
	Stop
	// Restart 连接不可重启，等价于 Resume 并记录告警
	Restart
)

// String 返回指令名称
func (d Directive) String() string {
	switch d {
	case Resume:
		return "resume"
	case Stop:
		return "stop"
	case Restart:
		return "restart"
	default:
		return "unknown"
	}
}

// ErrorHandler 错误处理函数
// 返回 (指令, true) 表示错误已匹配；返回 false 表示未匹配，
// 此时流错误关闭连接，回复错误记录后继续
type ErrorHandler func(err error) (Directive, bool)

// eventKind 连接事件类别
type eventKind uint8

const (
	evConnect   eventKind = iota // 服务端握手完成后投递，携带认证上下文
	evData                       // 对端数据帧
	evPeerClose                  // 对端正常关闭
	evFailure                    // 读取或解码等流错误
	evClose                      // 本端主动关闭
)

// event 投递到连接邮箱的事件
type event struct {
	kind   eventKind
	data   []byte
	binary bool
	auth   any
	err    error
}
