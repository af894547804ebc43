package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "negative sample rate", mutate: func(c *Config) { c.SampleRate = -0.1 }, wantErr: true},
		{name: "sample rate above one", mutate: func(c *Config) { c.SampleRate = 1.5 }, wantErr: true},
		{name: "unknown exporter", mutate: func(c *Config) { c.Exporter = "jaeger" }, wantErr: true},
		{name: "otlp http", mutate: func(c *Config) { c.Exporter = ExporterOTLPHTTP }, wantErr: false},
		{name: "otlp grpc", mutate: func(c *Config) { c.Exporter = ExporterOTLPGRPC }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetupNoop(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Exporter = ExporterNoop

	tp, err := Setup(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	spanCtx, span := StartSpan(ctx, "test-op")
	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span, SpanFromContext(spanCtx))

	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()
}

func TestSetupDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	tp, err := Setup(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, tp.Shutdown(ctx))
}

func TestSetupRejectsBadConfig(t *testing.T) {
	_, err := Setup(context.Background(), &Config{Exporter: "zipkin", ServiceName: "x", SampleRate: 1, Enabled: true})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSamplerSelection(t *testing.T) {
	full := newSampler(&Config{SampleRate: 1.0})
	partial := newSampler(&Config{SampleRate: 0.25})
	assert.NotEqual(t, full.Description(), partial.Description())
}
