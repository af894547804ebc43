// Package cache 提供回复缓存的统一抽象
// 内存与 Redis 两种后端，配合 Singleflight 防止并发回源击穿
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache 缓存接口
type Cache interface {
	// Get 读取并反序列化到 value，未命中返回 ErrNotFound
	Get(ctx context.Context, key string, value any) error
	// Set 序列化并写入，ttl 为 0 时使用默认 TTL
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete 删除一个或多个键
	Delete(ctx context.Context, keys ...string) error
	// Ping 探活
	Ping(ctx context.Context) error
	// Close 释放资源
	Close() error
}

// Serializer 序列化接口
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer JSON 序列化器（默认）
type JSONSerializer struct{}

// Marshal 序列化
func (s *JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal 反序列化
func (s *JSONSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
