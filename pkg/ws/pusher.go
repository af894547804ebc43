package ws

// Pusher 绑定单条入站消息的回复句柄
// 业务逻辑经由它向连接回写或主动关闭，方法可跨协程调用
type Pusher[I, O any] struct {
	conn    *Conn[I, O]
	input   I
	last    I
	hasLast bool
}

// Reply 编码并投递一条出站消息
// 编码失败按回复错误指令处理并返回原错误，
// 发送缓冲写满时静默丢弃缓冲内最旧的一条
func (p *Pusher[I, O]) Reply(out O) error {
	data, err := p.conn.encodeOutput(out)
	if err != nil {
		p.conn.replyFailure(err)
		return err
	}
	p.conn.send(data)
	return nil
}

// Stop 请求关闭连接
func (p *Pusher[I, O]) Stop() {
	p.conn.Close()
}

// Input 返回本次绑定的入站消息
func (p *Pusher[I, O]) Input() I {
	return p.input
}

// LastInput 返回本条消息处理开始时刻的最后输入快照
// ok 为 false 表示此前没有任何成功处理的输入
func (p *Pusher[I, O]) LastInput() (I, bool) {
	return p.last, p.hasLast
}

// Auth 返回连接的认证上下文
func (p *Pusher[I, O]) Auth() any {
	return p.conn.auth
}

// ID 返回连接标识
func (p *Pusher[I, O]) ID() string {
	return p.conn.id
}
