package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tokmz/qiao/pkg/logger"
)

// Config WebSocket 连接配置
type Config struct {
	// 缓冲配置
	SendBuffer  int // 出站缓冲容量（默认 30），写满丢弃最旧
	MailboxSize int // 连接事件邮箱容量（默认 32）

	// 连接配置
	ReadBufferSize   int           // 读缓冲区大小
	WriteBufferSize  int           // 写缓冲区大小
	HandshakeTimeout time.Duration // 握手超时时间
	MaxMessageSize   int64         // 最大消息大小

	// 心跳配置
	PingInterval time.Duration // 心跳间隔
	PongWait     time.Duration // 心跳超时
	WriteWait    time.Duration // 单次写超时

	// 压缩配置：服务端偏好顺序，取客户端 Accept-Encoding 的第一个交集
	Encodings []string

	// Origin 校验
	CheckOrigin    func(*http.Request) bool
	AllowedOrigins []string // CheckOrigin 为空时按白名单校验

	// 可观测性
	Logger  logger.Logger
	Metrics Metrics
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		SendBuffer:       30,
		MailboxSize:      32,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   512 * 1024, // 512KB
		PingInterval:     30 * time.Second,
		PongWait:         90 * time.Second,
		WriteWait:        10 * time.Second,
		Encodings:        DefaultEncodings(),
		Logger:           logger.Nop(),
		Metrics:          &NoopMetrics{},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.SendBuffer <= 0 {
		return fmt.Errorf("%w: SendBuffer must be positive, got %d", ErrInvalidConfig, c.SendBuffer)
	}
	if c.MailboxSize <= 0 {
		return fmt.Errorf("%w: MailboxSize must be positive, got %d", ErrInvalidConfig, c.MailboxSize)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: ReadBufferSize must be positive, got %d", ErrInvalidConfig, c.ReadBufferSize)
	}
	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: WriteBufferSize must be positive, got %d", ErrInvalidConfig, c.WriteBufferSize)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: HandshakeTimeout must be positive, got %v", ErrInvalidConfig, c.HandshakeTimeout)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: MaxMessageSize must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("%w: PingInterval must be positive, got %v", ErrInvalidConfig, c.PingInterval)
	}
	if c.PongWait <= c.PingInterval {
		return fmt.Errorf("%w: PongWait (%v) must be greater than PingInterval (%v)",
			ErrInvalidConfig, c.PongWait, c.PingInterval)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("%w: WriteWait must be positive, got %v", ErrInvalidConfig, c.WriteWait)
	}
	if err := validateEncodings(c.Encodings); err != nil {
		return err
	}
	return nil
}

// setDefaults 填充未设置的字段
func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
}

// Option 配置选项
type Option func(*Config)

// WithSendBuffer 设置出站缓冲容量
func WithSendBuffer(n int) Option {
	return func(c *Config) {
		c.SendBuffer = n
	}
}

// WithEncodings 设置服务端压缩偏好顺序，传空禁用压缩
func WithEncodings(names ...string) Option {
	return func(c *Config) {
		c.Encodings = names
	}
}

// WithMaxMessageSize 设置最大消息大小
func WithMaxMessageSize(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithHeartbeat 设置心跳间隔与超时
func WithHeartbeat(interval, wait time.Duration) Option {
	return func(c *Config) {
		c.PingInterval = interval
		c.PongWait = wait
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.CheckOrigin = fn
	}
}

// WithAllowedOrigins 设置 Origin 白名单
func WithAllowedOrigins(origins ...string) Option {
	return func(c *Config) {
		c.AllowedOrigins = origins
	}
}

// WithAllowAllOrigins 允许所有来源（仅用于开发环境）
func WithAllowAllOrigins() Option {
	return func(c *Config) {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics 设置监控
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// defaultCheckOrigin 默认 Origin 检查（同源策略）
// 拒绝空 Origin；如需允许非浏览器客户端使用 WithAllowAllOrigins
func defaultCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// whitelistChecker 创建白名单检查器
func whitelistChecker(allowed []string) func(*http.Request) bool {
	whitelist := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		whitelist[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		return whitelist[origin]
	}
}
