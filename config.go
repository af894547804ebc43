package qiao

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/qiao/pkg/cache"
	"github.com/tokmz/qiao/pkg/logger"
	"github.com/tokmz/qiao/pkg/tracing"
	"github.com/tokmz/qiao/pkg/ws"
)

// ServerConfig 服务器配置
type ServerConfig struct {
	// Addr 监听地址，默认 ":8080"
	Addr string

	// ReadTimeout 读取超时
	ReadTimeout time.Duration

	// WriteTimeout 写入超时
	WriteTimeout time.Duration

	// IdleTimeout 空闲超时
	IdleTimeout time.Duration

	// MaxHeaderBytes 最大请求头字节数
	MaxHeaderBytes int
}

// ShutdownConfig 关机配置
type ShutdownConfig struct {
	// Timeout 关机超时时间，默认 10 秒
	Timeout time.Duration

	// BeforeShutdown 关机前回调
	BeforeShutdown func()

	// AfterShutdown 关机后回调
	AfterShutdown func()
}

// Config 网关配置
// 路由相关选项（模式、日志、CORS、缓存、追踪）在 NewRegistry 时生效，
// 服务器与关机选项在 New/Run 时生效
type Config struct {
	// Mode 运行模式：debug, release, test
	Mode string

	// Server 服务器配置
	Server ServerConfig

	// Shutdown 关机配置
	Shutdown ShutdownConfig

	// TrustedProxies 信任的代理 IP
	TrustedProxies []string

	// InternalPrefix 运维端点与内部路由的挂载前缀，默认 "/internal"
	InternalPrefix string

	// DispatchTimeout 命令派发默认超时，可被 Endpoint.Timeout 逐路由覆盖
	DispatchTimeout time.Duration

	// MaxBodyBytes 请求体大小上限（字节），超出返回 413
	MaxBodyBytes int64

	// CORS 启用跨域的路由使用的策略，nil 时使用默认策略
	CORS *CORSConfig

	// Logger 日志实例，nil 时使用默认开发日志
	Logger logger.Logger

	// Tracing 链路追踪配置，nil 表示不启用
	Tracing *tracing.Config

	// ReplyCache 回复缓存后端，nil 表示不启用
	// 仅对 CacheTTL > 0 的 GET 端点生效
	ReplyCache cache.Cache

	// Gzip 响应压缩配置，nil 表示不启用
	Gzip *GzipConfig

	// RateLimit 限流配置，nil 表示不启用
	RateLimit *RateLimitConfig

	// WSMetrics websocket 会话指标，经 Mount 挂载的 ws 服务器共用，
	// nil 时 WebsocketMetrics() 返回空实现
	WSMetrics ws.Metrics
}

// Option 配置选项函数
type Option func(*Config)

// defaultConfig 返回默认配置
func defaultConfig() *Config {
	return &Config{
		Mode: gin.DebugMode,
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1MB
		},
		Shutdown: ShutdownConfig{
			Timeout: 10 * time.Second,
		},
		InternalPrefix:  "/internal",
		DispatchTimeout: 5 * time.Second,
		MaxBodyBytes:    4 << 20, // 4MB
	}
}

// WithMode 设置运行模式
func WithMode(mode string) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithAddr 设置监听地址
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Server.Addr = addr
	}
}

// WithReadTimeout 设置读取超时
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.ReadTimeout = timeout
	}
}

// WithWriteTimeout 设置写入超时
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = timeout
	}
}

// WithIdleTimeout 设置空闲超时
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.IdleTimeout = timeout
	}
}

// WithMaxHeaderBytes 设置最大请求头字节数
func WithMaxHeaderBytes(size int) Option {
	return func(c *Config) {
		c.Server.MaxHeaderBytes = size
	}
}

// WithShutdownTimeout 设置关机超时时间
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Shutdown.Timeout = timeout
	}
}

// WithBeforeShutdown 设置关机前回调
func WithBeforeShutdown(fn func()) Option {
	return func(c *Config) {
		c.Shutdown.BeforeShutdown = fn
	}
}

// WithAfterShutdown 设置关机后回调
func WithAfterShutdown(fn func()) Option {
	return func(c *Config) {
		c.Shutdown.AfterShutdown = fn
	}
}

// WithTrustedProxies 设置信任的代理
func WithTrustedProxies(proxies ...string) Option {
	return func(c *Config) {
		c.TrustedProxies = proxies
	}
}

// WithInternalPrefix 设置运维端点与内部路由的挂载前缀
func WithInternalPrefix(prefix string) Option {
	return func(c *Config) {
		c.InternalPrefix = prefix
	}
}

// WithDispatchTimeout 设置命令派发默认超时
func WithDispatchTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.DispatchTimeout = timeout
	}
}

// WithMaxBodyBytes 设置请求体大小上限
func WithMaxBodyBytes(size int64) Option {
	return func(c *Config) {
		c.MaxBodyBytes = size
	}
}

// WithCORS 设置跨域策略
func WithCORS(cfg *CORSConfig) Option {
	return func(c *Config) {
		c.CORS = cfg
	}
}

// WithLogger 设置日志实例
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithTracing 启用链路追踪
func WithTracing(cfg *tracing.Config) Option {
	return func(c *Config) {
		c.Tracing = cfg
	}
}

// WithReplyCache 启用回复缓存
func WithReplyCache(store cache.Cache) Option {
	return func(c *Config) {
		c.ReplyCache = store
	}
}

// WithGzip 启用响应压缩，nil 使用默认配置
func WithGzip(cfg *GzipConfig) Option {
	return func(c *Config) {
		if cfg == nil {
			cfg = DefaultGzipConfig()
		}
		c.Gzip = cfg
	}
}

// WithRateLimit 启用请求限流，nil 使用默认配置
func WithRateLimit(cfg *RateLimitConfig) Option {
	return func(c *Config) {
		if cfg == nil {
			cfg = DefaultRateLimitConfig()
		}
		c.RateLimit = cfg
	}
}

// WithWebsocketMetrics 设置 websocket 会话指标实现
func WithWebsocketMetrics(m ws.Metrics) Option {
	return func(c *Config) {
		c.WSMetrics = m
	}
}
