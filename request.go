package qiao

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tokmz/qiao/pkg/errors"
)

// RequestContext 单次请求的结构化快照，构建后不可修改
// 生命周期与请求一致，管线结束即废弃，不得跨请求持有
type RequestContext struct {
	ID         string            // 请求唯一标识
	Path       string            // 实际请求路径
	Method     string            // HTTP 方法
	Vars       Vars              // 路径变量值，按模板声明顺序
	Headers    map[string]string // 请求头，键为小写，多值按逗号拼接
	Query      map[string]string // 查询参数，重复键取最后一个值
	Auth       any               // 认证上下文，由注册的提取器产生
	Payload    []byte            // 请求体，仅 POST/PUT/PATCH 填充
	ReceivedAt time.Time         // 构建时刻

	varNames []string // 与 Vars 对应的变量名
}

// Var 按名称取路径变量值，未声明的变量返回空串
func (rc *RequestContext) Var(name string) string {
	for i, n := range rc.varNames {
		if n == name {
			return rc.Vars.At(i)
		}
	}
	return ""
}

// Header 按小写键取请求头
func (rc *RequestContext) Header(name string) string {
	return rc.Headers[strings.ToLower(name)]
}

// hasBody 判断方法是否携带请求体
func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// buildRequestContext 从传输层提取请求快照
// 失败时仍返回已填充的部分快照，供拒绝处理器使用
func buildRequestContext(c *gin.Context, tpl *Template, auth func(*http.Request) (any, error), maxBody int64) (*RequestContext, error) {
	rc := &RequestContext{
		ID:         uuid.NewString(),
		Path:       c.Request.URL.Path,
		Method:     c.Request.Method,
		ReceivedAt: time.Now(),
		varNames:   tpl.varNames,
	}

	vars, err := tpl.Capture(c.Params)
	if err != nil {
		return rc, err
	}
	rc.Vars = vars

	rc.Headers = make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		rc.Headers[strings.ToLower(key)] = strings.Join(values, ",")
	}

	query := c.Request.URL.Query()
	rc.Query = make(map[string]string, len(query))
	for key, values := range query {
		rc.Query[key] = values[len(values)-1]
	}

	if hasBody(rc.Method) && c.Request.Body != nil {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody+1))
		if err != nil {
			return rc, errors.Wrap(errors.KindDecode, err, "read request body")
		}
		if int64(len(body)) > maxBody {
			return rc, errors.Decodef("request body exceeds %d bytes", maxBody).
				WithStatus(http.StatusRequestEntityTooLarge)
		}
		rc.Payload = body
	}

	if auth != nil {
		v, err := auth(c.Request)
		if err != nil {
			var qe *errors.Error
			if errors.As(err, &qe) {
				return rc, qe
			}
			return rc, errors.Wrap(errors.KindAuthentication, err, "authentication failed")
		}
		rc.Auth = v
	}

	return rc, nil
}
