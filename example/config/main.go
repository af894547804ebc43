package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/tokmz/qiao"
	"github.com/tokmz/qiao/pkg/command"
)

func main() {
	path := "example/config/qiao.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1. 加载配置文件，QIAO_ 前缀的环境变量覆盖同名配置
	// 如 QIAO_SERVER_ADDR=:9090 覆盖 server.addr
	fc, err := qiao.LoadConfig(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	opts, err := fc.Options()
	if err != nil {
		log.Fatalf("build options: %v", err)
	}

	// 2. 注册命令服务
	bus := command.NewBus()
	if err := bus.Register("echo", func(ctx context.Context, req any) (any, error) {
		return req, nil
	}); err != nil {
		log.Fatalf("register echo: %v", err)
	}

	// 3. 文件配置转为引擎选项后构建注册表
	reg, err := qiao.NewRegistry(bus, opts...)
	if err != nil {
		log.Fatalf("new registry: %v", err)
	}

	err = qiao.Bind(reg, &qiao.Endpoint{
		Name:   "echo",
		Path:   "/echo/$word",
		Method: http.MethodGet,
		Type:   qiao.EndpointExternal,
	}, func(rc *qiao.RequestContext) (string, error) {
		return rc.Var("word"), nil
	}, func(v string) *qiao.Reply {
		return qiao.OK(v)
	}, nil)
	if err != nil {
		log.Fatalf("bind echo: %v", err)
	}

	fmt.Printf("Config loaded from %s\n", path)
	fmt.Println("Try:")
	fmt.Println("  curl http://localhost:8080/echo/hi")
	fmt.Println("  curl http://localhost:8080/internal/health")

	if err := qiao.New(reg).Run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
