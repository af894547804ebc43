package ws

import "github.com/prometheus/client_golang/prometheus"

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	ConnectionOpened()
	ConnectionClosed()

	// 消息指标
	MessageReceived()
	MessageDropped() // 非 Open 状态下丢弃的入站事件
	ReplyDropped()   // 出站缓冲写满丢弃的最旧消息

	// 错误指标
	DecodeError()
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) ConnectionOpened() {}
func (m *NoopMetrics) ConnectionClosed() {}
func (m *NoopMetrics) MessageReceived()  {}
func (m *NoopMetrics) MessageDropped()   {}
func (m *NoopMetrics) ReplyDropped()     {}
func (m *NoopMetrics) DecodeError()      {}

// PromMetrics Prometheus 实现
type PromMetrics struct {
	connections  prometheus.Gauge
	received     prometheus.Counter
	dropped      prometheus.Counter
	replyDropped prometheus.Counter
	decodeErrors prometheus.Counter
}

// NewPromMetrics 注册并返回 Prometheus 指标
// reg 为 nil 时使用默认注册表
func NewPromMetrics(reg prometheus.Registerer, namespace string) *PromMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PromMetrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Current number of open websocket connections.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_received_total",
			Help:      "Total inbound frames handed to business logic.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_dropped_total",
			Help:      "Total inbound events dropped outside the open state.",
		}),
		replyDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "replies_dropped_total",
			Help:      "Total outbound messages evicted from full send buffers.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "decode_errors_total",
			Help:      "Total inbound frames that failed to decode.",
		}),
	}

	reg.MustRegister(m.connections, m.received, m.dropped, m.replyDropped, m.decodeErrors)
	return m
}

func (m *PromMetrics) ConnectionOpened() { m.connections.Inc() }
func (m *PromMetrics) ConnectionClosed() { m.connections.Dec() }
func (m *PromMetrics) MessageReceived()  { m.received.Inc() }
func (m *PromMetrics) MessageDropped()   { m.dropped.Inc() }
func (m *PromMetrics) ReplyDropped()     { m.replyDropped.Inc() }
func (m *PromMetrics) DecodeError()      { m.decodeErrors.Inc() }
