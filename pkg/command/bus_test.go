package command

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, opts ...BusOption) *Bus {
	t.Helper()
	b := NewBus(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return b
}

// TestBusExecute 测试注册与执行
func TestBusExecute(t *testing.T) {
	b := newTestBus(t)

	require.NoError(t, b.Register("echo", func(ctx context.Context, req any) (any, error) {
		return "echo:" + req.(string), nil
	}))

	res, err := b.Execute(context.Background(), "echo", "hi", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "string", res.Kind)
	assert.Equal(t, "echo:hi", res.Value)
}

// TestBusExecuteUnknownRoute 测试未注册路由
func TestBusExecuteUnknownRoute(t *testing.T) {
	b := newTestBus(t)

	_, err := b.Execute(context.Background(), "nope", nil, time.Second)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

// TestBusRegisterValidation 测试注册校验
func TestBusRegisterValidation(t *testing.T) {
	b := newTestBus(t)

	ok := func(ctx context.Context, req any) (any, error) { return nil, nil }

	assert.Error(t, b.Register("", ok))
	assert.ErrorIs(t, b.Register("svc", nil), ErrNilHandler)

	require.NoError(t, b.Register("svc", ok))
	assert.ErrorIs(t, b.Register("svc", ok), ErrServiceExists)
}

// TestBusHandlerError 测试业务错误透传
func TestBusHandlerError(t *testing.T) {
	b := newTestBus(t)

	boom := fmt.Errorf("boom")
	require.NoError(t, b.Register("fail", func(ctx context.Context, req any) (any, error) {
		return nil, boom
	}))

	res, err := b.Execute(context.Background(), "fail", nil, time.Second)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

// TestBusHandlerPanic 测试 panic 转错误且服务存活
func TestBusHandlerPanic(t *testing.T) {
	b := newTestBus(t)

	calls := 0
	require.NoError(t, b.Register("flaky", func(ctx context.Context, req any) (any, error) {
		calls++
		if calls == 1 {
			panic("first call explodes")
		}
		return calls, nil
	}))

	_, err := b.Execute(context.Background(), "flaky", nil, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")

	// 同一个服务继续可用
	res, err := b.Execute(context.Background(), "flaky", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Value)
}

// TestBusExecuteTimeout 测试超时
func TestBusExecuteTimeout(t *testing.T) {
	b := newTestBus(t)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, b.Register("slow", func(ctx context.Context, req any) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	}))

	start := time.Now()
	_, err := b.Execute(context.Background(), "slow", nil, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

// TestBusExecuteCanceled 测试上游取消与超时区分
func TestBusExecuteCanceled(t *testing.T) {
	b := newTestBus(t)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, b.Register("slow", func(ctx context.Context, req any) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := b.Execute(ctx, "slow", nil, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

// TestBusSequentialConsumer 测试单消费协程顺序处理
func TestBusSequentialConsumer(t *testing.T) {
	b := newTestBus(t, WithMailboxSize(128))

	// 非原子计数，只有单消费协程才不会竞争
	count := 0
	require.NoError(t, b.Register("counter", func(ctx context.Context, req any) (any, error) {
		count++
		return count, nil
	}))

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := b.Execute(context.Background(), "counter", nil, 5*time.Second)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, count)
}

// TestBusServices 测试服务快照
func TestBusServices(t *testing.T) {
	b := newTestBus(t)

	ok := func(ctx context.Context, req any) (any, error) { return "ok", nil }
	require.NoError(t, b.Register("zebra", ok))
	require.NoError(t, b.Register("alpha", ok))

	_, err := b.Execute(context.Background(), "alpha", nil, time.Second)
	require.NoError(t, err)

	infos := b.Services()
	require.Len(t, infos, 2)
	// 按名称排序
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "zebra", infos[1].Name)
	assert.Equal(t, "running", infos[0].State)
	assert.Equal(t, uint64(1), infos[0].Handled)
	assert.Equal(t, uint64(0), infos[1].Handled)
	assert.False(t, infos[0].StartedAt.IsZero())
}

// TestBusRestart 测试服务重启
func TestBusRestart(t *testing.T) {
	b := newTestBus(t)

	require.NoError(t, b.Register("svc", func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	}))

	assert.ErrorIs(t, b.Restart("missing"), ErrServiceNotFound)

	require.NoError(t, b.Restart("svc"))

	res, err := b.Execute(context.Background(), "svc", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Value)

	infos := b.Services()
	require.Len(t, infos, 1)
	assert.Equal(t, 1, infos[0].Restarts)
	// 重启后计数清零再累计
	assert.Equal(t, uint64(1), infos[0].Handled)
}

// TestBusClose 测试关闭
func TestBusClose(t *testing.T) {
	b := NewBus()

	require.NoError(t, b.Register("svc", func(ctx context.Context, req any) (any, error) {
		return nil, nil
	}))

	require.NoError(t, b.Close(context.Background()))
	// 幂等
	require.NoError(t, b.Close(context.Background()))

	_, err := b.Execute(context.Background(), "svc", nil, time.Second)
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.ErrorIs(t, b.Register("other", func(ctx context.Context, req any) (any, error) { return nil, nil }), ErrBusClosed)
	assert.ErrorIs(t, b.Restart("svc"), ErrBusClosed)
}

// TestBusCloseTimeout 测试关闭等待超时
func TestBusCloseTimeout(t *testing.T) {
	b := NewBus()

	release := make(chan struct{})
	require.NoError(t, b.Register("hung", func(ctx context.Context, req any) (any, error) {
		<-release
		return nil, nil
	}))

	go func() {
		_, _ = b.Execute(context.Background(), "hung", nil, time.Minute)
	}()
	// 等请求进入处理
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Close(ctx), context.DeadlineExceeded)

	close(release)
}

// TestNewResultKind 测试结果类型标识
func TestNewResultKind(t *testing.T) {
	type widget struct{ N int }

	assert.Equal(t, "string", NewResult("x").Kind)
	assert.Equal(t, "int", NewResult(1).Kind)
	assert.Equal(t, "*command.widget", NewResult(&widget{}).Kind)
	assert.Equal(t, "command.widget", NewResult(widget{}).Kind)
	assert.Equal(t, "<nil>", NewResult(nil).Kind)
}
