package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Singleflight 防击穿装饰器
// 同一 key 的并发未命中只回源一次，其余请求共享结果
type Singleflight struct {
	Cache
	group singleflight.Group
}

// WithSingleflight 包装底层缓存
func WithSingleflight(c Cache) *Singleflight {
	return &Singleflight{Cache: c}
}

// Forget 清除 key 的合并状态，下次请求强制回源
func (s *Singleflight) Forget(key string) {
	s.group.Forget(key)
}

// Cached 读穿缓存（防击穿）
// 命中直接返回；未命中时同一 key 的并发请求只执行一次 fn，
// 结果写回缓存后共享给所有等待方
func Cached[T any](ctx context.Context, sf *Singleflight, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	v, err, _ := sf.group.Do(key, func() (any, error) {
		var cached T
		if err := sf.Cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
		fresh, err := fn()
		if err != nil {
			return nil, err
		}
		_ = sf.Cache.Set(ctx, key, fresh, ttl)
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	result, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: unexpected singleflight value %T", ErrOperation, v)
	}
	return result, nil
}

// Remember 读穿缓存（不防击穿）
// 适合低频数据，未命中各自回源
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	var result T
	if err := c.Get(ctx, key, &result); err == nil {
		return result, nil
	}
	result, err := fn()
	if err != nil {
		return result, err
	}
	_ = c.Set(ctx, key, result, ttl)
	return result, nil
}
