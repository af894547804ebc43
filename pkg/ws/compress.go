package ws

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
)

// Codec 出入站帧压缩编解码器
type Codec interface {
	Name() string
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// 支持的编码名称
const (
	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
)

// DefaultEncodings 服务端默认压缩偏好顺序
func DefaultEncodings() []string {
	return []string{EncodingGzip, EncodingDeflate}
}

// lookupCodec 按名称取编解码器
func lookupCodec(name string) (Codec, bool) {
	switch name {
	case EncodingGzip:
		return gzipCodec{}, true
	case EncodingDeflate:
		return deflateCodec{}, true
	default:
		return nil, false
	}
}

// Negotiate 压缩协商
// 解析客户端 Accept-Encoding，按服务端偏好顺序取双方都支持的第一个编码；
// 客户端接受 * 时取服务端首选；无交集返回 nil（不压缩）
func Negotiate(acceptEncoding string, preferred []string) Codec {
	if acceptEncoding == "" || len(preferred) == 0 {
		return nil
	}

	accepted := make(map[string]bool, 4)
	for _, part := range strings.Split(acceptEncoding, ",") {
		token := strings.TrimSpace(part)
		// 去掉 ;q= 等参数
		if i := strings.IndexByte(token, ';'); i >= 0 {
			token = strings.TrimSpace(token[:i])
		}
		if token != "" {
			accepted[strings.ToLower(token)] = true
		}
	}

	for _, name := range preferred {
		if accepted[name] {
			c, _ := lookupCodec(name)
			return c
		}
	}
	if accepted["*"] {
		c, _ := lookupCodec(preferred[0])
		return c
	}
	return nil
}

// validateEncodings 校验偏好列表中的编码都可用
func validateEncodings(names []string) error {
	for _, name := range names {
		if _, ok := lookupCodec(name); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
		}
	}
	return nil
}

// gzipCodec gzip 编解码
type gzipCodec struct{}

func (gzipCodec) Name() string { return EncodingGzip }

func (gzipCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decode(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// deflateCodec deflate 编解码
type deflateCodec struct{}

func (deflateCodec) Name() string { return EncodingDeflate }

func (deflateCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (deflateCodec) Decode(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}
