package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestNew 测试创建 Logger
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: false,
		},
		{
			name: "console output",
			config: &Config{
				Level:   InfoLevel,
				Format:  JSONFormat,
				Console: true,
			},
			wantErr: false,
		},
		{
			name: "file output",
			config: &Config{
				Level:  InfoLevel,
				Format: JSONFormat,
				File:   filepath.Join(t.TempDir(), "test.log"),
			},
			wantErr: false,
		},
		{
			name: "rotate output",
			config: &Config{
				Level:  InfoLevel,
				Format: JSONFormat,
				Rotate: &RotateConfig{
					Filename: filepath.Join(t.TempDir(), "rotate.log"),
				},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer l.Sync()
			l.Info("hello")
		})
	}
}

// TestNewWithOptions 测试使用 Options 创建 Logger
func TestNewWithOptions(t *testing.T) {
	l, err := NewWithOptions(
		WithLevel(DebugLevel),
		WithFormat(ConsoleFormat),
		WithConsoleOutput(),
		WithCaller(true),
	)
	require.NoError(t, err)
	defer l.Sync()

	assert.Equal(t, DebugLevel, l.Level())
}

// TestNewProduction 测试创建生产环境 Logger
func TestNewProduction(t *testing.T) {
	l, err := NewProduction()
	require.NoError(t, err)
	defer l.Sync()

	assert.Equal(t, InfoLevel, l.Level())
}

// TestSetLevel 测试动态调整级别
func TestSetLevel(t *testing.T) {
	l, err := NewWithOptions(WithLevel(InfoLevel), WithConsoleOutput())
	require.NoError(t, err)
	defer l.Sync()

	assert.Equal(t, InfoLevel, l.Level())

	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())

	// 子 Logger 共享级别控制
	child := l.With(zap.String("module", "route"))
	assert.Equal(t, DebugLevel, child.Level())
	child.SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, l.Level())
}

// TestFileOutput 测试文件输出
func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")

	l, err := NewWithOptions(
		WithLevel(InfoLevel),
		WithFormat(JSONFormat),
		WithFileOutput(path),
	)
	require.NoError(t, err)

	l.Info("test file output", zap.String("key", "value"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test file output")
	assert.Contains(t, string(data), `"key":"value"`)
}

// TestContextMethods 测试带 Context 的日志方法
func TestContextMethods(t *testing.T) {
	l, err := NewWithOptions(WithLevel(DebugLevel), WithConsoleOutput())
	require.NoError(t, err)
	defer l.Sync()

	// 无 span 的 context 不应 panic
	ctx := context.Background()
	l.DebugContext(ctx, "debug")
	l.InfoContext(ctx, "info", zap.Int("count", 1))
	l.WarnContext(ctx, "warn")
	l.ErrorContext(ctx, "error")
}

// TestNop 测试空 Logger
func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded")
	assert.NoError(t, l.Sync())
}

// TestParseLevel 测试级别解析
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

// TestLevelString 测试级别名称
func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{DebugLevel, "debug"},
		{InfoLevel, "info"},
		{WarnLevel, "warn"},
		{ErrorLevel, "error"},
		{DPanicLevel, "dpanic"},
		{PanicLevel, "panic"},
		{FatalLevel, "fatal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

// TestFormat 测试日志格式
func TestFormat(t *testing.T) {
	assert.True(t, JSONFormat.IsValid())
	assert.True(t, ConsoleFormat.IsValid())
	assert.False(t, Format("invalid").IsValid())
}

// TestRotateConfigDefaults 测试轮转配置默认值
func TestRotateConfigDefaults(t *testing.T) {
	config := &RotateConfig{Filename: "x.log"}
	config.setDefaults()

	assert.Equal(t, 100, config.MaxSize)
	assert.Equal(t, 30, config.MaxAge)
	assert.Equal(t, 10, config.MaxBackups)
	assert.True(t, config.LocalTime)
}
