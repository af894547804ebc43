package config

import "errors"

// 预定义错误
var (
	// ErrNotFound 配置文件未找到
	ErrNotFound = errors.New("config: file not found")
	// ErrReadFailed 配置读取失败
	ErrReadFailed = errors.New("config: read failed")
)
