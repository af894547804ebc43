package qiao

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/qiao/pkg/errors"
)

// Reply 一次请求的最终渲染结果
// 字段带 json 标签以便回复缓存序列化
type Reply struct {
	Status  int               `json:"status"`            // HTTP 状态码
	Headers map[string]string `json:"headers,omitempty"` // 附加响应头
	Body    any               `json:"body,omitempty"`    // 响应体，JSON 序列化；nil 表示无响应体
}

// ErrorBody 失败响应体
type ErrorBody struct {
	Code    int    `json:"code"`    // 业务错误码
	Message string `json:"message"` // 错误信息
}

// OK 创建 200 响应
func OK(v any) *Reply {
	return &Reply{Status: http.StatusOK, Body: v}
}

// NoContent 创建 204 响应（无响应体）
func NoContent() *Reply {
	return &Reply{Status: http.StatusNoContent}
}

// Fail 创建失败响应
func Fail(status int, message string) *Reply {
	return &Reply{
		Status: status,
		Body:   ErrorBody{Code: status, Message: message},
	}
}

// ReplyError 按错误类别渲染失败响应
// *errors.Error 使用其 HttpCode 与业务码，其余错误一律 500
func ReplyError(err error) *Reply {
	var e *errors.Error
	if errors.As(err, &e) {
		return &Reply{
			Status: e.HttpCode,
			Body:   ErrorBody{Code: e.Code, Message: e.Message},
		}
	}
	return genericFailure()
}

// WithHeader 附加响应头（就地修改并返回自身，便于链式调用）
func (r *Reply) WithHeader(key, value string) *Reply {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// genericFailure 通用 500 响应，不携带任何内部细节
func genericFailure() *Reply {
	return ReplyError(errors.Internal("internal server error"))
}

// render 将 Reply 写入响应，每个请求恰好渲染一次
func render(c *gin.Context, rep *Reply) {
	if rep == nil {
		rep = genericFailure()
	}
	for k, v := range rep.Headers {
		c.Header(k, v)
	}
	if rep.Body == nil {
		c.Status(rep.Status)
		return
	}
	c.JSON(rep.Status, rep.Body)
}
