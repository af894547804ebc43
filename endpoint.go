package qiao

import (
	stderrors "errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/qiao/pkg/cache"
	"github.com/tokmz/qiao/pkg/command"
	"github.com/tokmz/qiao/pkg/errors"
	"github.com/tokmz/qiao/pkg/logger"
	"github.com/tokmz/qiao/pkg/ws"
)

// EndpointType 端点挂载类别
type EndpointType uint8

const (
	EndpointInternal  EndpointType = iota // 挂载在内部前缀下
	EndpointExternal                      // 挂载在根路径下
	EndpointWebsocket                     // 不支持经注册表注册
)

// String 返回类别名称
func (t EndpointType) String() string {
	switch t {
	case EndpointExternal:
		return "external"
	case EndpointWebsocket:
		return "websocket"
	default:
		return "internal"
	}
}

// ErrWebsocketEndpoint websocket 端点不经注册表注册
// 连接生命周期由 pkg/ws 直接管理，Bind 收到该类别时明确拒绝
var ErrWebsocketEndpoint = stderrors.New("websocket endpoints are served via pkg/ws, not the registry")

// Endpoint 端点描述
type Endpoint struct {
	// Name 端点名，同时作为命令派发的路由键
	Name string

	// Path 路径模板，如 /account/$accountGuid/report/$reportId
	Path string

	// Method 该端点应答的单一 HTTP 方法
	Method string

	// Type 挂载类别，默认 EndpointInternal
	Type EndpointType

	// Timeout 命令派发超时，0 表示使用注册表默认值
	Timeout time.Duration

	// EnableCORS 是否为该路由启用跨域
	EnableCORS bool

	// DefaultHeaders 无论成功失败都附加的响应头
	DefaultHeaders map[string]string

	// AccessLogID 访问日志关联 ID 提取器，结果只进日志不进响应
	AccessLogID func(*RequestContext) string

	// Auth 认证上下文提取器，nil 表示不提取
	Auth func(*http.Request) (any, error)

	// CacheTTL 回复缓存时长，仅 GET 端点且注册表配置了缓存后端时生效
	// 只应在对所有调用方返回相同结果的端点上开启
	CacheTTL time.Duration
}

// bindableMethods Bind 接受的 HTTP 方法
// OPTIONS 预留给跨域预检，不作为业务方法开放
var bindableMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodHead:   true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// validate 校验端点描述
func (ep *Endpoint) validate() error {
	if ep.Name == "" {
		return errors.Configuration("endpoint name is required")
	}
	if ep.Path == "" {
		return errors.Configurationf("endpoint %q has no path template", ep.Name)
	}
	if !bindableMethods[ep.Method] {
		return errors.Configurationf("endpoint %q method %q is not bindable", ep.Name, ep.Method)
	}
	if ep.Type == EndpointWebsocket {
		return errors.Wrap(errors.KindConfiguration, ErrWebsocketEndpoint, "endpoint "+ep.Name)
	}
	return nil
}

// preflightMethods 同一路径下已注册预检方法的聚合
// 注册期单线程写入，冻结后只读
type preflightMethods struct {
	methods []string
}

func (p *preflightMethods) add(method string) {
	p.methods = append(p.methods, method)
}

func (p *preflightMethods) list() []string {
	return p.methods
}

// Registry 路由注册表
// 显式创建、注册期填充、交给 Engine 后冻结，没有任何进程级全局状态
type Registry struct {
	cfg    *Config
	cmd    command.Commander
	engine *gin.Engine

	internal *gin.RouterGroup
	external *gin.RouterGroup

	cors      *corsPolicy
	preflight map[string]*preflightMethods

	store *cache.Singleflight // 回复缓存，nil 表示未启用

	log    logger.Logger
	frozen atomic.Bool

	startedAt time.Time
	shutdown  func() // Engine 在冻结时注入
}

// NewRegistry 创建注册表
// 传输引擎与全局中间件在此一次性装配，路由相关选项必须在这里给出
func NewRegistry(cmd command.Commander, opts ...Option) (*Registry, error) {
	if cmd == nil {
		return nil, errors.Configuration("registry requires a command backend")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
		cfg.Logger = log
	}

	pol, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}

	// gin.SetMode 是全局操作，多次调用会相互覆盖
	// 建议一个进程只创建一个注册表
	if gin.Mode() == gin.DebugMode || cfg.Mode != gin.DebugMode {
		gin.SetMode(cfg.Mode)
	}
	silenceGin()

	engine := gin.New()
	engine.Use(recovery(log))
	if cfg.RateLimit != nil {
		engine.Use(rateLimitMiddleware(cfg.RateLimit, log))
	}
	if cfg.Tracing != nil && cfg.Tracing.Enabled {
		engine.Use(traceMiddleware())
	}
	if cfg.Gzip != nil {
		if err := cfg.Gzip.validate(); err != nil {
			return nil, err
		}
		engine.Use(gzipMiddleware(cfg.Gzip))
	}
	engine.Use(accessLogger(log))

	if cfg.TrustedProxies != nil {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("set trusted proxies", zap.Error(err))
		}
	}

	r := &Registry{
		cfg:       cfg,
		cmd:       cmd,
		engine:    engine,
		internal:  engine.Group(cfg.InternalPrefix),
		external:  &engine.RouterGroup,
		cors:      pol,
		preflight: make(map[string]*preflightMethods),
		log:       log,
	}

	if cfg.ReplyCache != nil {
		r.store = cache.WithSingleflight(cfg.ReplyCache)
	}

	r.mountOps(r.internal)
	return r, nil
}

// Bind 注册一条类型化路由
// requestHandler 做请求期变换（如鉴权），结果经命令后端派发，
// responseHandler 渲染成功结果，rejectionHandler 将失败原因映射为响应
// （返回 nil 或整体为 nil 视为未匹配）。注册失败只影响本条路由
func Bind[T, V any](r *Registry, ep *Endpoint, requestHandler func(*RequestContext) (T, error), responseHandler func(V) *Reply, rejectionHandler func(*RequestContext, error) *Reply) error {
	if err := r.bindable(ep); err != nil {
		r.logBindFailure(ep, err)
		return err
	}
	if requestHandler == nil || responseHandler == nil {
		err := errors.Configurationf("endpoint %q requires request and response handlers", ep.Name)
		r.logBindFailure(ep, err)
		return err
	}

	tpl, err := ParseTemplate(ep.Path)
	if err != nil {
		r.logBindFailure(ep, err)
		return err
	}

	rt := &route[T, V]{
		reg:      r,
		ep:       ep,
		tpl:      tpl,
		request:  requestHandler,
		response: responseHandler,
		reject:   rejectionHandler,
		timeout:  ep.Timeout,
	}
	if rt.timeout <= 0 {
		rt.timeout = r.cfg.DispatchTimeout
	}

	if err := r.install(ep, tpl, rt.handle); err != nil {
		r.logBindFailure(ep, err)
		return err
	}

	r.log.Info("route registered",
		zap.String("endpoint", ep.Name),
		zap.String("method", ep.Method),
		zap.String("path", tpl.ginPath),
		zap.String("type", ep.Type.String()),
	)
	return nil
}

// bindable 检查注册表状态与端点描述
func (r *Registry) bindable(ep *Endpoint) error {
	if r.frozen.Load() {
		return errors.Configuration("registry is frozen, register endpoints before Run")
	}
	if ep == nil {
		return errors.Configuration("nil endpoint")
	}
	return ep.validate()
}

// install 将处理器装入对应容器，按需包上跨域处理
func (r *Registry) install(ep *Endpoint, tpl *Template, h gin.HandlerFunc) error {
	group := r.container(ep.Type)

	if ep.EnableCORS {
		inner := h
		pol := r.cors
		h = func(c *gin.Context) {
			pol.apply(c)
			inner(c)
		}
	}

	if err := r.register(group, ep.Method, tpl.ginPath, h); err != nil {
		return err
	}

	if ep.EnableCORS {
		r.registerPreflight(group, ep, tpl)
	}
	return nil
}

// register 向 gin 注册一条路由
// gin 对重复或冲突的路由会 panic，这里收编为配置错误，
// 保证失败只影响本条路由，已注册的路由不受波及
func (r *Registry) register(group *gin.RouterGroup, method, path string, h gin.HandlerFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Configurationf("register %s %s: %v", method, path, rec)
		}
	}()
	group.Handle(method, path, h)
	return nil
}

// registerPreflight 为路径注册一次 OPTIONS 预检
// 同一路径后续启用跨域的方法只追加进应答列表
func (r *Registry) registerPreflight(group *gin.RouterGroup, ep *Endpoint, tpl *Template) {
	key := ep.Type.String() + ":" + tpl.ginPath
	entry, ok := r.preflight[key]
	if !ok {
		entry = &preflightMethods{}
		if err := r.register(group, http.MethodOptions, tpl.ginPath, r.cors.preflight(entry.list)); err != nil {
			r.log.Warn("preflight registration failed",
				zap.String("endpoint", ep.Name),
				zap.String("path", tpl.ginPath),
				zap.Error(err),
			)
			return
		}
		r.preflight[key] = entry
	}
	entry.add(ep.Method)
}

// container 返回端点类别对应的路由容器
func (r *Registry) container(t EndpointType) *gin.RouterGroup {
	if t == EndpointExternal {
		return r.external
	}
	return r.internal
}

// logBindFailure 记录注册失败并继续，失败的路由被跳过
func (r *Registry) logBindFailure(ep *Endpoint, err error) {
	fields := []zap.Field{zap.Error(err)}
	if ep != nil {
		fields = append(fields,
			zap.String("endpoint", ep.Name),
			zap.String("method", ep.Method),
			zap.String("path", ep.Path),
		)
	}
	r.log.Warn("route registration failed", fields...)
}

// freeze 冻结注册表并注入关机触发器，Engine 在启动时调用
// 冻结后的 Bind 一律失败，路由表进入只读状态
func (r *Registry) freeze(shutdown func()) {
	if r.frozen.Load() {
		return
	}
	// 先写字段再置冻结位，读到冻结位即可见关机触发器
	r.shutdown = shutdown
	r.startedAt = time.Now()
	r.frozen.Store(true)
}

// Mount 在外部容器挂载一个不经命令派发管线的原始处理器
// websocket 升级器经由此进入网关，路径模板语法与 Bind 一致
func (r *Registry) Mount(method, path string, h http.Handler) error {
	if r.frozen.Load() {
		return errors.Configuration("registry is frozen, register endpoints before Run")
	}
	if h == nil {
		return errors.Configuration("nil handler")
	}
	if !bindableMethods[method] {
		return errors.Configurationf("method %q is not bindable", method)
	}

	tpl, err := ParseTemplate(path)
	if err != nil {
		return err
	}
	if err := r.register(r.external, method, tpl.ginPath, gin.WrapH(h)); err != nil {
		return err
	}

	r.log.Info("raw route mounted",
		zap.String("method", method),
		zap.String("path", tpl.ginPath),
	)
	return nil
}

// WebsocketMetrics 返回配置的 websocket 指标实现，未配置时为空实现
func (r *Registry) WebsocketMetrics() ws.Metrics {
	if r.cfg.WSMetrics != nil {
		return r.cfg.WSMetrics
	}
	return &ws.NoopMetrics{}
}

// Handler 返回底层 HTTP 处理器，用于测试或嵌入既有服务器
func (r *Registry) Handler() http.Handler {
	return r.engine
}

// Routes 返回当前已注册的路由表
func (r *Registry) Routes() gin.RoutesInfo {
	return r.engine.Routes()
}
