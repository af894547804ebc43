package cache

import "errors"

// 预定义错误
var (
	ErrNotFound      = errors.New("cache: key not found")
	ErrInvalidConfig = errors.New("cache: invalid config")
	ErrSerialization = errors.New("cache: serialization failed")
	ErrOperation     = errors.New("cache: operation failed")
)
