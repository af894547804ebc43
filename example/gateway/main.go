package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tokmz/qiao"
	"github.com/tokmz/qiao/pkg/command"
	"github.com/tokmz/qiao/pkg/errors"
)

// Order 订单模型
type Order struct {
	ID     string  `json:"id"`
	Item   string  `json:"item"`
	Amount float64 `json:"amount"`
	Status string  `json:"status"`
}

// CreateOrderReq 创建订单请求
type CreateOrderReq struct {
	Item   string  `json:"item"`
	Amount float64 `json:"amount"`
}

// 模拟订单存储
var orderDB = map[string]*Order{
	"o-1001": {ID: "o-1001", Item: "keyboard", Amount: 249.00, Status: "paid"},
	"o-1002": {ID: "o-1002", Item: "monitor", Amount: 1299.00, Status: "shipped"},
}

var errOrderNotFound = fmt.Errorf("order not found")

func main() {
	// 1. 命令总线：每个服务一个串行邮箱
	bus := command.NewBus(command.WithDefaultTimeout(3 * time.Second))

	if err := bus.Register("order.get", func(ctx context.Context, req any) (any, error) {
		order, ok := orderDB[req.(string)]
		if !ok {
			return nil, errOrderNotFound
		}
		return order, nil
	}); err != nil {
		log.Fatalf("register order.get: %v", err)
	}

	if err := bus.Register("order.create", func(ctx context.Context, req any) (any, error) {
		in := req.(CreateOrderReq)
		order := &Order{
			ID:     fmt.Sprintf("o-%d", time.Now().UnixMilli()),
			Item:   in.Item,
			Amount: in.Amount,
			Status: "created",
		}
		orderDB[order.ID] = order
		return order, nil
	}); err != nil {
		log.Fatalf("register order.create: %v", err)
	}

	// 2. 注册表：跨域、压缩、限流一次配齐
	reg, err := qiao.NewRegistry(bus,
		qiao.WithCORS(qiao.DefaultCORSConfig()),
		qiao.WithGzip(qiao.DefaultGzipConfig()),
		qiao.WithRateLimit(qiao.DefaultRateLimitConfig()),
		qiao.WithBeforeShutdown(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = bus.Close(ctx)
		}),
	)
	if err != nil {
		log.Fatalf("new registry: %v", err)
	}

	// 3. 查询路由：未命中映射为 404，其余错误走默认 500
	err = qiao.Bind(reg, &qiao.Endpoint{
		Name:       "order.get",
		Path:       "/order/$orderId",
		Method:     http.MethodGet,
		Type:       qiao.EndpointExternal,
		EnableCORS: true,
	}, func(rc *qiao.RequestContext) (string, error) {
		return rc.Var("orderId"), nil
	}, func(o *Order) *qiao.Reply {
		return qiao.OK(o)
	}, func(rc *qiao.RequestContext, err error) *qiao.Reply {
		if strings.Contains(err.Error(), "not found") {
			return qiao.Fail(http.StatusNotFound, "order not found")
		}
		return nil
	})
	if err != nil {
		log.Fatalf("bind order.get: %v", err)
	}

	// 4. 创建路由：Bearer 认证 + 请求体解码
	err = qiao.Bind(reg, &qiao.Endpoint{
		Name:       "order.create",
		Path:       "/order",
		Method:     http.MethodPost,
		Type:       qiao.EndpointExternal,
		EnableCORS: true,
		Auth: func(r *http.Request) (any, error) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token != "demo-token" {
				return nil, errors.Authentication("invalid token")
			}
			return token, nil
		},
	}, func(rc *qiao.RequestContext) (CreateOrderReq, error) {
		var in CreateOrderReq
		if err := json.Unmarshal(rc.Payload, &in); err != nil {
			return in, errors.Wrap(errors.KindDecode, err, "decode order")
		}
		return in, nil
	}, func(o *Order) *qiao.Reply {
		return qiao.OK(o)
	}, nil)
	if err != nil {
		log.Fatalf("bind order.create: %v", err)
	}

	fmt.Println("Server starting on :8080")
	fmt.Println("Try:")
	fmt.Println("  curl http://localhost:8080/order/o-1001")
	fmt.Println("  curl http://localhost:8080/order/o-9999                    # 404")
	fmt.Println("  curl -X POST http://localhost:8080/order -H 'Authorization: Bearer demo-token' -d '{\"item\":\"mouse\",\"amount\":99}'")
	fmt.Println("  curl -X POST http://localhost:8080/order -d '{}'           # 401")
	fmt.Println("  curl http://localhost:8080/internal/health")

	if err := qiao.New(reg).Run(":8080"); err != nil {
		log.Fatalf("server: %v", err)
	}
}
