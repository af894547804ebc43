// Package command 提供命令执行后端：路由键定位服务，请求经邮箱投递、
// 异步执行并带超时等待结果。Bus 为进程内实现，AMQP 为跨进程实现。
package command

import (
	"context"
	"fmt"
	"time"
)

// Result 命令执行结果
// Kind 记录结果值的动态类型标识，调用方在读取 Value 前应先核对
type Result struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

// NewResult 包装结果值并记录其动态类型
func NewResult(v any) *Result {
	return &Result{
		Kind:  fmt.Sprintf("%T", v),
		Value: v,
	}
}

// Commander 命令执行后端
// Execute 将请求投递给 route 对应的服务并等待结果，超时或投递失败返回错误
type Commander interface {
	Execute(ctx context.Context, route string, req any, timeout time.Duration) (*Result, error)
}

// ServiceInfo 服务运行信息快照
type ServiceInfo struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Restarts  int       `json:"restarts"`
	Handled   uint64    `json:"handled"`
	Backlog   int       `json:"backlog"` // 邮箱当前积压
}

// Lister 可枚举服务的后端
type Lister interface {
	Services() []ServiceInfo
}

// Restarter 可重启单个服务的后端
type Restarter interface {
	Restart(name string) error
}
