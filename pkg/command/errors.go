package command

import "errors"

// 错误定义
var (
	// 投递相关错误
	ErrTimeout         = errors.New("command: execute timed out")
	ErrServiceNotFound = errors.New("command: service not found")
	ErrServiceStopped  = errors.New("command: service stopped")

	// 注册相关错误
	ErrServiceExists = errors.New("command: service already registered")
	ErrNilHandler    = errors.New("command: nil handler")

	// 生命周期相关错误
	ErrBusClosed        = errors.New("command: bus closed")
	ErrConnectionClosed = errors.New("command: connection closed")
)
