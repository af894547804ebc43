package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tokmz/qiao"
	"github.com/tokmz/qiao/pkg/cache"
	"github.com/tokmz/qiao/pkg/command"
)

// Quote 行情快照
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetched_at"`
}

func main() {
	// 1. 创建缓存实例（内存驱动，生产环境可换 cache.WithRedis）
	c, err := cache.NewWithOptions(
		cache.WithMemory(cache.DefaultMemoryConfig()),
		cache.WithKeyPrefix("quotes:"),
		cache.WithDefaultTTL(time.Minute),
	)
	if err != nil {
		log.Fatalf("create cache: %v", err)
	}
	defer c.Close()

	// 2. 注册服务：模拟慢速行情源，Remember 模式在服务层缓存源数据
	bus := command.NewBus()
	if err := bus.Register("quote.get", func(ctx context.Context, req any) (any, error) {
		symbol := req.(string)
		return cache.Remember(ctx, c, "source:"+symbol, time.Minute, func() (*Quote, error) {
			time.Sleep(200 * time.Millisecond) // 模拟上游延迟
			return &Quote{Symbol: symbol, Price: 42.42, FetchedAt: time.Now()}, nil
		})
	}); err != nil {
		log.Fatalf("register quote.get: %v", err)
	}

	// 3. 注册表启用回复缓存，命中时整条响应不经过派发管线
	reg, err := qiao.NewRegistry(bus, qiao.WithReplyCache(c))
	if err != nil {
		log.Fatalf("new registry: %v", err)
	}

	err = qiao.Bind(reg, &qiao.Endpoint{
		Name:     "quote.get",
		Path:     "/quote/$symbol",
		Method:   http.MethodGet,
		Type:     qiao.EndpointExternal,
		CacheTTL: 30 * time.Second,
	}, func(rc *qiao.RequestContext) (string, error) {
		return rc.Var("symbol"), nil
	}, func(q *Quote) *qiao.Reply {
		return qiao.OK(q)
	}, nil)
	if err != nil {
		log.Fatalf("bind quote.get: %v", err)
	}

	fmt.Println("Server starting on :8080")
	fmt.Println("Try:")
	fmt.Println("  curl http://localhost:8080/quote/ACME   # 首次约 200ms，30 秒内重复请求命中回复缓存")

	if err := qiao.New(reg).Run(":8080"); err != nil {
		log.Fatalf("server: %v", err)
	}
}
