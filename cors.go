package qiao

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/qiao/pkg/errors"
)

// CORSConfig 跨域策略
// 允许的方法不在此配置：每条路由只放行自己注册的方法，
// 预检响应聚合同一路径下所有启用跨域的方法
type CORSConfig struct {
	// AllowOrigins 允许的源列表（默认 ["*"]）
	// 支持精确匹配和通配符，如 "https://*.example.com"
	AllowOrigins []string

	// AllowHeaders 允许的请求头
	AllowHeaders []string

	// ExposeHeaders 允许前端访问的响应头
	ExposeHeaders []string

	// AllowCredentials 是否允许携带凭证（Cookie 等）
	// 注意：为 true 时 AllowOrigins 不能为 ["*"]
	AllowCredentials bool

	// MaxAge 预检请求缓存时间（默认 12 小时）
	MaxAge time.Duration
}

// DefaultCORSConfig 返回默认策略（允许所有源）
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
		},
		MaxAge: 12 * time.Hour,
	}
}

// corsPolicy 预计算后的跨域策略，注册表持有一份并在路由间共享
type corsPolicy struct {
	allowAll      bool
	exact         map[string]bool
	wildcards     []string
	allowHeaders  string
	exposeHeaders string
	allowCreds    bool
	maxAge        string
}

// newCORSPolicy 编译跨域策略
func newCORSPolicy(cfg *CORSConfig) (*corsPolicy, error) {
	if cfg == nil {
		cfg = DefaultCORSConfig()
	}

	p := &corsPolicy{
		allowAll:      len(cfg.AllowOrigins) == 1 && cfg.AllowOrigins[0] == "*",
		exact:         make(map[string]bool),
		allowHeaders:  strings.Join(cfg.AllowHeaders, ", "),
		exposeHeaders: strings.Join(cfg.ExposeHeaders, ", "),
		allowCreds:    cfg.AllowCredentials,
		maxAge:        strconv.Itoa(int(cfg.MaxAge.Seconds())),
	}

	if p.allowCreds && p.allowAll {
		return nil, errors.Configuration(`CORS AllowCredentials cannot be used with AllowOrigins ["*"]`)
	}

	if !p.allowAll {
		for _, origin := range cfg.AllowOrigins {
			if strings.Contains(origin, "*") {
				p.wildcards = append(p.wildcards, origin)
			} else {
				p.exact[origin] = true
			}
		}
	}

	return p, nil
}

// allowed 检查源是否在允许列表内
func (p *corsPolicy) allowed(origin string) bool {
	if p.allowAll {
		return true
	}
	if p.exact[origin] {
		return true
	}
	for _, pattern := range p.wildcards {
		if matchWildcardOrigin(origin, pattern) {
			return true
		}
	}
	return false
}

// apply 为实际请求设置跨域响应头
// 源缺失或不在允许列表时不设置任何头，由浏览器拦截
func (p *corsPolicy) apply(c *gin.Context) {
	origin := c.GetHeader("Origin")
	if origin == "" || !p.allowed(origin) {
		return
	}

	if p.allowAll {
		c.Header("Access-Control-Allow-Origin", "*")
	} else {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Vary", "Origin")
	}
	if p.allowCreds {
		c.Header("Access-Control-Allow-Credentials", "true")
	}
	if p.exposeHeaders != "" {
		c.Header("Access-Control-Expose-Headers", p.exposeHeaders)
	}
}

// preflight 构建预检处理器
// methods 延迟取值：同一路径后续注册的方法会进入已有预检响应
func (p *corsPolicy) preflight(methods func() []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !p.allowed(origin) {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if p.allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin, Access-Control-Request-Method, Access-Control-Request-Headers")
		}
		if p.allowCreds {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", strings.Join(methods(), ", "))
		c.Header("Access-Control-Allow-Headers", p.allowHeaders)
		c.Header("Access-Control-Max-Age", p.maxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// matchWildcardOrigin 通配符匹配，支持 "https://*.example.com" 格式
func matchWildcardOrigin(origin, pattern string) bool {
	parts := strings.SplitN(pattern, "*", 2)
	if len(parts) != 2 {
		return origin == pattern
	}

	prefix, suffix := parts[0], parts[1]
	if !strings.HasPrefix(origin, prefix) || !strings.HasSuffix(origin, suffix) {
		return false
	}
	// 中间部分不能为空
	return len(origin) > len(prefix)+len(suffix)
}
