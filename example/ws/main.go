package main

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/tokmz/qiao"
	"github.com/tokmz/qiao/pkg/command"
	"github.com/tokmz/qiao/pkg/ws"
)

func main() {
	// 1. websocket 指标注册到默认 Prometheus 注册表，/internal/metrics 可见
	metrics := ws.NewPromMetrics(nil, "qiao_example")

	reg, err := qiao.NewRegistry(command.NewBus(), qiao.WithWebsocketMetrics(metrics))
	if err != nil {
		log.Fatalf("new registry: %v", err)
	}

	// 2. 构建回显服务器，文本帧原样回传
	srv, err := ws.NewServer(&ws.Handlers[string, string]{
		Decode:    func(data []byte, binary bool) (string, error) { return string(data), nil },
		Encode:    func(out string) ([]byte, error) { return []byte(out), nil },
		OnMessage: func(p *ws.Pusher[string, string], input string) { _ = p.Reply(strings.ToUpper(input)) },
	}, ws.WithAllowAllOrigins(), ws.WithMetrics(reg.WebsocketMetrics()))
	if err != nil {
		log.Fatalf("new ws server: %v", err)
	}

	// 3. 升级器以原始处理器挂载，不经命令派发管线
	err = reg.Mount(http.MethodGet, "/ws/echo", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = srv.Handle(w, r)
	}))
	if err != nil {
		log.Fatalf("mount ws: %v", err)
	}

	fmt.Println("Server starting on :8080")
	fmt.Println("Try:")
	fmt.Println("  websocat ws://localhost:8080/ws/echo     # 输入任意文本，回显大写")
	fmt.Println("  curl http://localhost:8080/internal/metrics | grep qiao_example_ws")

	if err := qiao.New(reg).Run(":8080"); err != nil {
		log.Fatalf("server: %v", err)
	}
}
