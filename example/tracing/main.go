package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tokmz/qiao"
	"github.com/tokmz/qiao/pkg/command"
	"github.com/tokmz/qiao/pkg/tracing"
)

// Report 报表视图
type Report struct {
	Account string    `json:"account"`
	Rows    int       `json:"rows"`
	BuiltAt time.Time `json:"built_at"`
}

func main() {
	// 1. 注册服务：每次派发都在当前追踪上下文里展开业务 Span
	bus := command.NewBus()
	if err := bus.Register("report.build", func(ctx context.Context, req any) (any, error) {
		account := req.(string)

		ctx, span := tracing.StartSpan(ctx, "build-report")
		defer span.End()

		rows, err := countRows(ctx, account)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}

		return &Report{Account: account, Rows: rows, BuiltAt: time.Now()}, nil
	}); err != nil {
		log.Fatalf("register report.build: %v", err)
	}

	// 2. 启用链路追踪，stdout 导出器便于本地观察
	// 生产环境改用 otlp-http/otlp-grpc 并指定 Endpoint
	cfg := tracing.DefaultConfig()
	cfg.ServiceName = "qiao-tracing-example"

	reg, err := qiao.NewRegistry(bus, qiao.WithTracing(cfg))
	if err != nil {
		log.Fatalf("new registry: %v", err)
	}

	err = qiao.Bind(reg, &qiao.Endpoint{
		Name:   "report.build",
		Path:   "/report/$account",
		Method: http.MethodGet,
		Type:   qiao.EndpointExternal,
	}, func(rc *qiao.RequestContext) (string, error) {
		return rc.Var("account"), nil
	}, func(r *Report) *qiao.Reply {
		return qiao.OK(r)
	}, nil)
	if err != nil {
		log.Fatalf("bind report.build: %v", err)
	}

	fmt.Println("Server starting on :8080")
	fmt.Println("Try:")
	fmt.Println("  curl http://localhost:8080/report/acme   # 控制台输出本次请求的 Span")

	if err := qiao.New(reg).Run(":8080"); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// countRows 模拟一次带子 Span 的下游查询
func countRows(ctx context.Context, account string) (int, error) {
	_, span := tracing.StartSpan(ctx, "count-rows")
	defer span.End()

	time.Sleep(20 * time.Millisecond)
	return len(account) * 7, nil
}
