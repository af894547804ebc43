// Package tracing 提供紧凑的 OpenTelemetry 接入
// 一次 Setup 完成导出器、采样器、资源与全局 propagator 的装配
package tracing

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// 导出器类型
const (
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterNoop     = "noop"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("tracing: invalid config")

// Config 链路追踪配置
type Config struct {
	// ServiceName 服务名称（必填）
	ServiceName string
	// ServiceVersion 服务版本
	ServiceVersion string
	// Environment 部署环境（dev/staging/prod）
	Environment string

	// Exporter 导出器类型（stdout/otlp-http/otlp-grpc/noop）
	Exporter string
	// Endpoint 导出端点（OTLP Collector 地址）
	Endpoint string
	// Headers 导出请求头（认证）
	Headers map[string]string
	// Insecure 是否使用非 TLS 连接
	Insecure bool

	// SampleRate 采样率 0.0-1.0，父 Span 已采样时跟随父决策
	SampleRate float64

	// Enabled 是否启用，false 时退化为 noop 导出
	Enabled bool

	// Attributes 附加资源属性
	Attributes map[string]string
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "qiao",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Exporter:       ExporterStdout,
		SampleRate:     1.0,
		Enabled:        true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidConfig)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("%w: sample rate must be in [0, 1], got %v", ErrInvalidConfig, c.SampleRate)
	}
	switch c.Exporter {
	case ExporterStdout, ExporterOTLPHTTP, ExporterOTLPGRPC, ExporterNoop:
		return nil
	default:
		return fmt.Errorf("%w: unknown exporter %q", ErrInvalidConfig, c.Exporter)
	}
}

// Setup 装配 TracerProvider 并设为全局
// 返回的 provider 由调用方在退出时 Shutdown，确保批量导出落盘
func Setup(ctx context.Context, cfg *Config) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		cfg.Exporter = ExporterNoop
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(newSampler(cfg)),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// newExporter 根据配置创建导出器
func newExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())

	case ExporterOTLPHTTP:
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)

	case ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.New(ctx, opts...)

	case ExporterNoop:
		return noopExporter{}, nil

	default:
		return nil, fmt.Errorf("%w: unknown exporter %q", ErrInvalidConfig, cfg.Exporter)
	}
}

// newSampler parent-based 比例采样
func newSampler(cfg *Config) sdktrace.Sampler {
	if cfg.SampleRate >= 1.0 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
}

// newResource 构建服务资源信息
func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	kvs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		kvs = append(kvs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	for k, v := range cfg.Attributes {
		kvs = append(kvs, attribute.String(k, v))
	}

	return resource.New(ctx,
		resource.WithAttributes(kvs...),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
}

// noopExporter 丢弃一切 Span
type noopExporter struct{}

func (noopExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	return nil
}

func (noopExporter) Shutdown(ctx context.Context) error {
	return nil
}
