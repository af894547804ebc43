package ws

import "errors"

// 错误定义
var (
	// 连接相关错误
	ErrConnectionClosed = errors.New("ws: connection closed")
	ErrServerClosed     = errors.New("ws: server closed")

	// 握手相关错误
	ErrAuthRejected = errors.New("ws: authentication rejected")

	// 配置相关错误
	ErrInvalidConfig   = errors.New("ws: invalid config")
	ErrMissingHandler  = errors.New("ws: missing required handler")
	ErrUnknownEncoding = errors.New("ws: unknown encoding")
)
