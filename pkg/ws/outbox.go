package ws

import "sync"

// outbox 出站消息缓冲
// 固定容量，写满时丢弃最旧一条给新消息腾位；慢消费者只会丢历史，
// 不会阻塞投递方
type outbox struct {
	mu       sync.Mutex
	buf      [][]byte
	capacity int
	signal   chan struct{} // 容量 1，提示写协程有数据
	closed   bool
	dropped  uint64
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		buf:      make([][]byte, 0, capacity),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

// push 追加一条消息
// 缓冲已满时丢弃最旧一条并返回 true；缓冲已关闭时消息直接丢弃
func (o *outbox) push(data []byte) (dropped bool) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	if len(o.buf) == o.capacity {
		copy(o.buf, o.buf[1:])
		o.buf[len(o.buf)-1] = data
		o.dropped++
		dropped = true
	} else {
		o.buf = append(o.buf, data)
	}
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
	return
}

// pop 取出最旧一条消息
func (o *outbox) pop() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.buf) == 0 {
		return nil, false
	}
	data := o.buf[0]
	o.buf = o.buf[1:]
	return data, true
}

// len 当前积压条数
func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buf)
}

// droppedCount 累计丢弃条数
func (o *outbox) droppedCount() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// close 关闭缓冲并清空积压
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.buf = nil
	o.mu.Unlock()
}
