package main

import (
	"context"
	"log"
	"net/http"

	"github.com/tokmz/qiao"
	"github.com/tokmz/qiao/pkg/command"
)

func main() {
	// 注册命令服务
	bus := command.NewBus()
	if err := bus.Register("greet", func(ctx context.Context, req any) (any, error) {
		return "hello " + req.(string), nil
	}); err != nil {
		log.Fatalf("register greet: %v", err)
	}

	// 构建注册表并绑定路由
	reg, err := qiao.NewRegistry(bus)
	if err != nil {
		log.Fatalf("new registry: %v", err)
	}

	err = qiao.Bind(reg, &qiao.Endpoint{
		Name:   "greet",
		Path:   "/greet/$name",
		Method: http.MethodGet,
		Type:   qiao.EndpointExternal,
	}, func(rc *qiao.RequestContext) (string, error) {
		return rc.Var("name"), nil
	}, func(v string) *qiao.Reply {
		return qiao.OK(v)
	}, nil)
	if err != nil {
		log.Fatalf("bind greet: %v", err)
	}

	// curl http://localhost:8080/greet/qiao
	if err := qiao.New(reg).Run(":8080"); err != nil {
		log.Fatalf("server: %v", err)
	}
}
