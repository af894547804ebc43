package qiao

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/qiao/pkg/errors"
)

// GzipConfig 响应压缩配置
type GzipConfig struct {
	// Level 压缩级别，默认 gzip.DefaultCompression
	Level int

	// MinLength 启用压缩的最小响应体字节数，默认 256
	// 不足阈值的响应原样输出
	MinLength int

	// ExcludePaths 不压缩的路径
	ExcludePaths []string
}

// DefaultGzipConfig 返回默认压缩配置
func DefaultGzipConfig() *GzipConfig {
	return &GzipConfig{
		Level:     gzip.DefaultCompression,
		MinLength: 256,
	}
}

// validate 校验压缩级别
func (g *GzipConfig) validate() error {
	if g.Level < gzip.HuffmanOnly || g.Level > gzip.BestCompression {
		return errors.Configurationf("gzip level %d out of range", g.Level)
	}
	return nil
}

// gzipWriter 包装 gin.ResponseWriter
// 先缓冲到阈值再决定压缩与否，压缩头必须在首次落盘前写入
type gzipWriter struct {
	gin.ResponseWriter
	gz          *gzip.Writer
	minLength   int
	buf         []byte
	decided     bool
	compressing bool
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	if !g.decided {
		g.buf = append(g.buf, data...)
		if len(g.buf) < g.minLength {
			return len(data), nil
		}
		g.decided = true
		g.compressing = true
		g.Header().Set("Content-Encoding", "gzip")
		g.Header().Set("Vary", "Accept-Encoding")
		g.Header().Del("Content-Length")
		if _, err := g.gz.Write(g.buf); err != nil {
			return 0, err
		}
		g.buf = nil
		return len(data), nil
	}
	if g.compressing {
		return g.gz.Write(data)
	}
	return g.ResponseWriter.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

// finish 结束本次响应：不足阈值的缓冲原样写出，压缩流收尾
func (g *gzipWriter) finish() {
	if !g.decided {
		g.decided = true
		if len(g.buf) > 0 {
			_, _ = g.ResponseWriter.Write(g.buf)
			g.buf = nil
		}
		return
	}
	if g.compressing {
		_ = g.gz.Close()
	}
}

// gzipMiddleware 响应压缩中间件
// 客户端声明 gzip 支持且响应体达到阈值时压缩
func gzipMiddleware(cfg *GzipConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		skip[p] = true
	}

	pool := &sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(io.Discard, cfg.Level)
			return w
		},
	}

	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") || skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		gz := pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)

		gw := &gzipWriter{
			ResponseWriter: c.Writer,
			gz:             gz,
			minLength:      cfg.MinLength,
		}
		c.Writer = gw

		c.Next()

		gw.finish()
		gz.Reset(io.Discard)
		pool.Put(gz)
	}
}
