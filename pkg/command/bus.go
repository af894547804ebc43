package command

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/qiao/pkg/logger"
)

// 服务状态
const (
	stateRunning int32 = iota
	stateStopped
)

// BusConfig 进程内命令总线配置
type BusConfig struct {
	MailboxSize    int           // 每个服务的邮箱容量（默认 64）
	DefaultTimeout time.Duration // Execute 未指定超时时的默认值（默认 15s）
	Logger         logger.Logger // 日志（默认丢弃）
}

// DefaultBusConfig 返回默认配置
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		MailboxSize:    64,
		DefaultTimeout: 15 * time.Second,
		Logger:         logger.Nop(),
	}
}

// setDefaults 填充零值字段
func (c *BusConfig) setDefaults() {
	if c.MailboxSize <= 0 {
		c.MailboxSize = 64
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
}

// BusOption 总线配置选项
type BusOption func(*BusConfig)

// WithMailboxSize 设置每个服务的邮箱容量
func WithMailboxSize(n int) BusOption {
	return func(c *BusConfig) {
		c.MailboxSize = n
	}
}

// WithDefaultTimeout 设置默认执行超时
func WithDefaultTimeout(d time.Duration) BusOption {
	return func(c *BusConfig) {
		c.DefaultTimeout = d
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) BusOption {
	return func(c *BusConfig) {
		c.Logger = l
	}
}

// Handler 服务处理函数
type Handler func(ctx context.Context, req any) (any, error)

// envelope 投递到服务邮箱的请求信封
type envelope struct {
	ctx  context.Context
	req  any
	resp chan response // 容量 1，消费者非阻塞写入
}

type response struct {
	res *Result
	err error
}

// service 单个服务：一个邮箱加一个消费协程
type service struct {
	name      string
	handler   Handler
	mailbox   chan *envelope
	quit      chan struct{} // 关闭后拒绝新请求并让消费协程退出
	done      chan struct{} // 消费协程退出后关闭
	stopOnce  sync.Once
	startedAt time.Time
	restarts  int
	handled   atomic.Uint64
	state     atomic.Int32
}

// stop 幂等关闭 quit
func (s *service) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

// Bus 进程内命令总线
// 每个注册的路由键对应一个服务：单消费协程顺序处理其邮箱中的请求
type Bus struct {
	cfg      *BusConfig
	mu       sync.RWMutex
	services map[string]*service
	closed   atomic.Bool
	wg       sync.WaitGroup
	log      logger.Logger
}

// NewBus 创建进程内命令总线
func NewBus(opts ...BusOption) *Bus {
	cfg := DefaultBusConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.setDefaults()

	return &Bus{
		cfg:      cfg,
		services: make(map[string]*service),
		log:      cfg.Logger,
	}
}

// Register 注册服务
// route 为路由键，h 在该服务的消费协程中顺序执行
func (b *Bus) Register(route string, h Handler) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if route == "" {
		return fmt.Errorf("command: empty route")
	}
	if h == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.services[route]; ok {
		return ErrServiceExists
	}

	s := b.newService(route, h)
	b.services[route] = s
	b.spawn(s)

	b.log.Debug("command service registered", zap.String("service", route))
	return nil
}

func (b *Bus) newService(name string, h Handler) *service {
	return &service{
		name:      name,
		handler:   h,
		mailbox:   make(chan *envelope, b.cfg.MailboxSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
}

func (b *Bus) spawn(s *service) {
	b.wg.Add(1)
	go b.consume(s)
}

// consume 服务消费循环：顺序处理邮箱，退出前排空积压
func (b *Bus) consume(s *service) {
	defer b.wg.Done()
	defer close(s.done)
	defer s.state.Store(stateStopped)

	for {
		select {
		case env := <-s.mailbox:
			b.handle(s, env)
		case <-s.quit:
			b.drain(s)
			return
		}
	}
}

// handle 执行单个请求，panic 转为错误返回
func (b *Bus) handle(s *service, env *envelope) {
	// 调用方已放弃的请求不再执行
	if err := env.ctx.Err(); err != nil {
		env.resp <- response{err: err}
		return
	}

	res, err := b.invoke(s, env)
	s.handled.Add(1)
	env.resp <- response{res: res, err: err}
}

func (b *Bus) invoke(s *service, env *envelope) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("command handler panic",
				zap.String("service", s.name),
				zap.Any("panic", r),
			)
			res = nil
			err = fmt.Errorf("command: handler panic: %v", r)
		}
	}()

	v, err := s.handler(env.ctx, env.req)
	if err != nil {
		return nil, err
	}
	return NewResult(v), nil
}

// drain 服务停止后，对残留请求统一回复停止错误
func (b *Bus) drain(s *service) {
	for {
		select {
		case env := <-s.mailbox:
			env.resp <- response{err: ErrServiceStopped}
		default:
			return
		}
	}
}

// Execute 实现 Commander
// timeout <= 0 时使用默认超时；投递与等待共用同一截止时间
func (b *Bus) Execute(ctx context.Context, route string, req any, timeout time.Duration) (*Result, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	b.mu.RLock()
	s := b.services[route]
	b.mu.RUnlock()
	if s == nil {
		return nil, ErrServiceNotFound
	}

	if timeout <= 0 {
		timeout = b.cfg.DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := &envelope{ctx: cctx, req: req, resp: make(chan response, 1)}

	select {
	case s.mailbox <- env:
	case <-s.quit:
		return nil, ErrServiceStopped
	case <-cctx.Done():
		return nil, deadlineErr(cctx)
	}

	select {
	case r := <-env.resp:
		return r.res, r.err
	case <-cctx.Done():
		return nil, deadlineErr(cctx)
	}
}

// deadlineErr 区分超时与上游取消
func deadlineErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	return ctx.Err()
}

// Services 实现 Lister，按名称排序返回服务快照
func (b *Bus) Services() []ServiceInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ServiceInfo, 0, len(b.services))
	for _, s := range b.services {
		out = append(out, ServiceInfo{
			Name:      s.name,
			State:     stateName(s.state.Load()),
			StartedAt: s.startedAt,
			Restarts:  s.restarts,
			Handled:   s.handled.Load(),
			Backlog:   len(s.mailbox),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func stateName(s int32) string {
	if s == stateRunning {
		return "running"
	}
	return "stopped"
}

// Restart 实现 Restarter
// 停止旧消费协程（排空积压后退出），以新邮箱重启服务
func (b *Bus) Restart(name string) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.Lock()
	old := b.services[name]
	b.mu.Unlock()
	if old == nil {
		return ErrServiceNotFound
	}

	old.stop()
	<-old.done

	ns := b.newService(name, old.handler)
	ns.restarts = old.restarts + 1

	b.mu.Lock()
	// Close 可能在停旧起新的间隙到达
	if b.closed.Load() {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.services[name] = ns
	b.mu.Unlock()
	b.spawn(ns)

	b.log.Info("command service restarted",
		zap.String("service", name),
		zap.Int("restarts", ns.restarts),
	)
	return nil
}

// Close 停止所有服务并等待消费协程退出
// 多次调用幂等；ctx 到期仍未退出时返回 ctx 错误
func (b *Bus) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	for _, s := range b.services {
		s.stop()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
