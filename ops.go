package qiao

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tokmz/qiao/pkg/command"
	"github.com/tokmz/qiao/pkg/errors"
)

// mountOps 挂载运维端点，与动态注册的路由同住内部容器
func (r *Registry) mountOps(group *gin.RouterGroup) {
	group.GET("/ping", r.handlePing)
	group.GET("/health", r.handleHealth)
	group.GET("/health/lb", r.handleHealthLB)
	group.GET("/health/monitor", r.handleHealthMonitor)
	group.GET("/metrics", gin.WrapH(promhttp.Handler()))
	group.GET("/services", r.handleServices)
	group.POST("/services/:name/restart", r.handleServiceRestart)
	group.POST("/shutdown", r.handleShutdown)
}

// handlePing 存活探针
func (r *Registry) handlePing(c *gin.Context) {
	render(c, OK(gin.H{"status": "ok"}))
}

// handleHealth 完整健康信息
func (r *Registry) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"version": Version,
		"mode":    r.cfg.Mode,
	}
	if !r.startedAt.IsZero() {
		body["uptime"] = time.Since(r.startedAt).Round(time.Second).String()
	}
	if l, ok := r.cmd.(command.Lister); ok {
		body["services"] = len(l.Services())
	}
	render(c, OK(body))
}

// handleHealthLB 负载均衡探针，响应体最小化
func (r *Registry) handleHealthLB(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// handleHealthMonitor 监控探针，附带运行时数据
func (r *Registry) handleHealthMonitor(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	render(c, OK(gin.H{
		"status":       "ok",
		"go_version":   runtime.Version(),
		"goroutines":   runtime.NumGoroutine(),
		"heap_alloc":   m.HeapAlloc,
		"heap_objects": m.HeapObjects,
		"num_gc":       m.NumGC,
	}))
}

// handleServices 列出命令后端的服务
// 后端不支持枚举时返回 501
func (r *Registry) handleServices(c *gin.Context) {
	l, ok := r.cmd.(command.Lister)
	if !ok {
		render(c, Fail(http.StatusNotImplemented, "command backend does not list services"))
		return
	}
	render(c, OK(l.Services()))
}

// handleServiceRestart 重启命令后端的单个服务
func (r *Registry) handleServiceRestart(c *gin.Context) {
	rs, ok := r.cmd.(command.Restarter)
	if !ok {
		render(c, Fail(http.StatusNotImplemented, "command backend does not support restart"))
		return
	}

	name := c.Param("name")
	if err := rs.Restart(name); err != nil {
		if errors.Is(err, command.ErrServiceNotFound) {
			render(c, Fail(http.StatusNotFound, "service not found: "+name))
			return
		}
		r.log.Warn("service restart failed", zap.String("service", name), zap.Error(err))
		render(c, Fail(http.StatusInternalServerError, "restart failed"))
		return
	}

	r.log.Info("service restarted", zap.String("service", name))
	render(c, OK(gin.H{"status": "restarted", "service": name}))
}

// handleShutdown 触发优雅关机
// 只是触发：响应先行返回，Engine 随后等待在途请求完成
func (r *Registry) handleShutdown(c *gin.Context) {
	// 冻结位是发布屏障，读到冻结位即可见关机触发器
	if !r.frozen.Load() || r.shutdown == nil {
		render(c, Fail(http.StatusServiceUnavailable, "engine is not running"))
		return
	}
	fn := r.shutdown

	r.log.Info("shutdown requested via operational endpoint")
	fn()
	render(c, &Reply{
		Status: http.StatusAccepted,
		Body:   gin.H{"status": "shutting down"},
	})
}
