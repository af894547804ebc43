package qiao

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/qiao/pkg/cache"
	"github.com/tokmz/qiao/pkg/command"
	"github.com/tokmz/qiao/pkg/errors"
	"github.com/tokmz/qiao/pkg/tracing"
)

// gin 上下文键，供访问日志中间件读取
const (
	ctxKeyRequestID = "qiao.request_id"
	ctxKeyAccessID  = "qiao.access_id"
)

// route 编译后的类型化路由
// 模板与处理器在注册期装配完成，请求期只读，可安全并发
type route[T, V any] struct {
	reg      *Registry
	ep       *Endpoint
	tpl      *Template
	request  func(*RequestContext) (T, error)
	response func(V) *Reply
	reject   func(*RequestContext, error) *Reply
	timeout  time.Duration
}

// handle 按序执行请求管线，每个请求恰好渲染一个响应
func (rt *route[T, V]) handle(c *gin.Context) {
	// 默认响应头，成功失败一视同仁
	for k, v := range rt.ep.DefaultHeaders {
		c.Header(k, v)
	}

	rc, err := buildRequestContext(c, rt.tpl, rt.ep.Auth, rt.reg.cfg.MaxBodyBytes)
	c.Set(ctxKeyRequestID, rc.ID)

	var rep *Reply
	if err != nil {
		rep = rt.fail(rc, err)
	} else {
		if rt.ep.AccessLogID != nil {
			// 关联 ID 只进访问日志，不进响应
			c.Set(ctxKeyAccessID, rt.ep.AccessLogID(rc))
		}
		rep = rt.process(c.Request.Context(), rc, c.Request.URL.RequestURI())
	}
	render(c, rep)
}

// process 请求变换与命令派发，处理器恐慌收编为失败结果
func (rt *route[T, V]) process(ctx context.Context, rc *RequestContext, uri string) (rep *Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			rep = rt.fail(rc, errors.Internalf("route handler panic: %v", rec))
		}
	}()

	req, err := rt.request(rc)
	if err != nil {
		return rt.fail(rc, err)
	}

	if rt.cacheable() {
		key := rt.ep.Name + ":" + uri
		cached, err := cache.Cached(ctx, rt.reg.store, key, rt.ep.CacheTTL, func() (*Reply, error) {
			return rt.dispatch(ctx, rc, req)
		})
		if err != nil {
			return rt.fail(rc, err)
		}
		return cached
	}

	out, err := rt.dispatch(ctx, rc, req)
	if err != nil {
		return rt.fail(rc, err)
	}
	return out
}

// dispatch 派发命令并核对结果的类型标识，匹配后才交给响应处理器
func (rt *route[T, V]) dispatch(ctx context.Context, rc *RequestContext, req T) (*Reply, error) {
	if rt.reg.traced() {
		var span trace.Span
		ctx, span = tracing.StartSpan(ctx, "dispatch "+rt.ep.Name,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("command.route", rt.ep.Name),
				attribute.String("request.id", rc.ID),
			),
		)
		defer span.End()
	}

	res, err := rt.reg.cmd.Execute(ctx, rt.ep.Name, req, rt.timeout)
	if err != nil {
		var qe *errors.Error
		if errors.Is(err, command.ErrTimeout) {
			qe = errors.Wrap(errors.KindInternal, err, "command dispatch timed out")
		} else {
			qe = errors.Wrap(errors.KindInternal, err, "command dispatch failed")
		}
		tracing.RecordError(trace.SpanFromContext(ctx), qe)
		return nil, qe
	}

	v, ok := res.Value.(V)
	if !ok {
		qe := errors.Internalf("command %q returned %s, route expects %T", rt.ep.Name, res.Kind, v)
		tracing.RecordError(trace.SpanFromContext(ctx), qe)
		return nil, qe
	}
	return rt.response(v), nil
}

// fail 失败归一化
// 先询问拒绝处理器；未匹配时认证/鉴权/解码类错误按类别映射状态码，
// 其余一律通用 500，原因连同创建点只进服务端日志，不回给客户端
func (rt *route[T, V]) fail(rc *RequestContext, cause error) *Reply {
	if rt.reject != nil {
		if rep := rt.reject(rc, cause); rep != nil {
			return rep
		}
	}

	var qe *errors.Error
	if errors.As(cause, &qe) {
		switch qe.Kind {
		case errors.KindAuthentication, errors.KindAuthorization, errors.KindDecode:
			return ReplyError(qe)
		}
	}

	rt.reg.log.Warn("unhandled route failure",
		zap.String("endpoint", rt.ep.Name),
		zap.String("request_id", rc.ID),
		zap.String("method", rc.Method),
		zap.String("path", rc.Path),
		zap.String("origin", errors.Origin(cause)),
		zap.Error(cause),
	)
	return genericFailure()
}

// cacheable 仅 GET 端点且配置了缓存后端时启用回复缓存
func (rt *route[T, V]) cacheable() bool {
	return rt.reg.store != nil && rt.ep.CacheTTL > 0 && rt.ep.Method == http.MethodGet
}

// traced 链路追踪是否启用
func (r *Registry) traced() bool {
	return r.cfg.Tracing != nil && r.cfg.Tracing.Enabled
}
