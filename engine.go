package qiao

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/tokmz/qiao/pkg/logger"
	"github.com/tokmz/qiao/pkg/tracing"
)

// Engine HTTP 服务器生命周期
// 持有注册表、负责启动、信号处理与优雅关机；注册表在启动时冻结
type Engine struct {
	cfg    *Config
	reg    *Registry
	server *http.Server
	log    logger.Logger

	tp *sdktrace.TracerProvider

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

// New 基于注册表创建 Engine
// 这里的选项只应调整服务器与关机配置，路由相关选项在 NewRegistry 时已生效
func New(reg *Registry, opts ...Option) *Engine {
	for _, opt := range opts {
		opt(reg.cfg)
	}

	return &Engine{
		cfg:  reg.cfg,
		reg:  reg,
		log:  reg.log,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run 启动 HTTP 服务器，阻塞直至退出，支持优雅关机
func (e *Engine) Run(addr ...string) error {
	address := e.cfg.Server.Addr
	if len(addr) > 0 && addr[0] != "" {
		address = addr[0]
	}

	if err := e.prepare(); err != nil {
		return err
	}

	e.server = e.newServer(address)
	e.printBanner(address)

	return e.serve(func() error {
		return e.server.ListenAndServe()
	})
}

// RunTLS 启动 HTTPS 服务器，阻塞直至退出，支持优雅关机
func (e *Engine) RunTLS(addr, certFile, keyFile string) error {
	if err := e.prepare(); err != nil {
		return err
	}

	e.server = e.newServer(addr)
	e.printBanner(addr)

	return e.serve(func() error {
		return e.server.ListenAndServeTLS(certFile, keyFile)
	})
}

// prepare 装配链路追踪并冻结注册表
func (e *Engine) prepare() error {
	if e.reg.traced() {
		tp, err := tracing.Setup(context.Background(), e.cfg.Tracing)
		if err != nil {
			return err
		}
		e.tp = tp
	}
	e.reg.freeze(e.TriggerShutdown)
	return nil
}

// newServer 构建 HTTP Server
func (e *Engine) newServer(addr string) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        e.reg.engine,
		ReadTimeout:    e.cfg.Server.ReadTimeout,
		WriteTimeout:   e.cfg.Server.WriteTimeout,
		IdleTimeout:    e.cfg.Server.IdleTimeout,
		MaxHeaderBytes: e.cfg.Server.MaxHeaderBytes,
	}
}

// serve 统一的启动与优雅关机循环
func (e *Engine) serve(start func() error) error {
	defer close(e.done)

	errChan := make(chan error, 1)
	go func() {
		if err := start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errChan:
		return err
	case s := <-sig:
		e.log.Info("signal received, shutting down", zap.String("signal", s.String()))
	case <-e.quit:
		e.log.Info("shutdown triggered, shutting down")
	}

	return e.gracefulShutdown()
}

// gracefulShutdown 等待在途请求完成后退出，超时强制关闭
func (e *Engine) gracefulShutdown() error {
	if e.cfg.Shutdown.BeforeShutdown != nil {
		e.cfg.Shutdown.BeforeShutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Shutdown.Timeout)
	defer cancel()

	err := e.server.Shutdown(ctx)
	if err != nil {
		e.log.Error("forced server close", zap.Error(err))
	}

	if e.tp != nil {
		if terr := e.tp.Shutdown(ctx); terr != nil {
			e.log.Warn("tracer provider shutdown", zap.Error(terr))
		}
	}

	if e.cfg.Shutdown.AfterShutdown != nil {
		e.cfg.Shutdown.AfterShutdown()
	}

	e.log.Info("server exited")
	_ = e.log.Sync()
	return err
}

// TriggerShutdown 触发优雅关机，幂等
// POST <内部前缀>/shutdown 与业务代码都经由此入口
func (e *Engine) TriggerShutdown() {
	e.quitOnce.Do(func() {
		close(e.quit)
	})
}

// Shutdown 触发优雅关机并等待退出完成或 ctx 到期
// 只应在 Run/RunTLS 已启动后调用
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}

	e.TriggerShutdown()
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry 返回关联的注册表
func (e *Engine) Registry() *Registry {
	return e.reg
}
