package qiao

import (
	"strings"
	"time"

	"github.com/tokmz/qiao/pkg/config"
	"github.com/tokmz/qiao/pkg/errors"
	"github.com/tokmz/qiao/pkg/logger"
	"github.com/tokmz/qiao/pkg/tracing"
)

// FileConfig 文件化的网关配置
// 经 pkg/config 从配置文件与 QIAO_ 前缀的环境变量加载，
// 零值字段不覆盖默认配置
type FileConfig struct {
	Mode string `mapstructure:"mode"`

	Server struct {
		Addr           string        `mapstructure:"addr"`
		ReadTimeout    time.Duration `mapstructure:"read_timeout"`
		WriteTimeout   time.Duration `mapstructure:"write_timeout"`
		IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
		MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	} `mapstructure:"server"`

	Shutdown struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"shutdown"`

	Internal struct {
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"internal"`

	Dispatch struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"dispatch"`

	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   string `mapstructure:"file"`
	} `mapstructure:"log"`

	Tracing struct {
		Enabled     bool    `mapstructure:"enabled"`
		Exporter    string  `mapstructure:"exporter"`
		Endpoint    string  `mapstructure:"endpoint"`
		Insecure    bool    `mapstructure:"insecure"`
		SampleRate  float64 `mapstructure:"sample_rate"`
		ServiceName string  `mapstructure:"service_name"`
		Environment string  `mapstructure:"environment"`
	} `mapstructure:"tracing"`
}

// newLoader 构建网关配置加载器
func newLoader(path string, opts ...config.Option) *config.Config {
	base := []config.Option{
		config.WithConfigFile(path),
		config.WithEnvPrefix("QIAO"),
		config.WithEnvKeyReplacer(strings.NewReplacer(".", "_")),
	}
	return config.New(append(base, opts...)...)
}

// LoadConfig 从文件加载网关配置
func LoadConfig(path string) (*FileConfig, error) {
	loader := newLoader(path)
	if err := loader.Load(); err != nil {
		return nil, err
	}

	fc := &FileConfig{}
	if err := loader.Unmarshal(fc); err != nil {
		return nil, err
	}
	return fc, nil
}

// WatchConfig 加载网关配置并监听文件变更
// onChange 在每次成功重载后收到新快照；监听句柄由调用方 Close
func WatchConfig(path string, onChange func(*FileConfig)) (*FileConfig, *config.Config, error) {
	loader := newLoader(path,
		config.WithAutoWatch(true),
		config.WithOnChange(func(c *config.Config) {
			fc := &FileConfig{}
			if err := c.Unmarshal(fc); err != nil {
				return
			}
			onChange(fc)
		}),
	)
	if err := loader.Load(); err != nil {
		return nil, nil, err
	}

	fc := &FileConfig{}
	if err := loader.Unmarshal(fc); err != nil {
		loader.Close()
		return nil, nil, err
	}
	return fc, loader, nil
}

// Options 将文件配置转换为引擎选项
// 日志与追踪小节在此实例化，失败返回配置错误
func (fc *FileConfig) Options() ([]Option, error) {
	var opts []Option

	if fc.Mode != "" {
		opts = append(opts, WithMode(fc.Mode))
	}
	if fc.Server.Addr != "" {
		opts = append(opts, WithAddr(fc.Server.Addr))
	}
	if fc.Server.ReadTimeout > 0 {
		opts = append(opts, WithReadTimeout(fc.Server.ReadTimeout))
	}
	if fc.Server.WriteTimeout > 0 {
		opts = append(opts, WithWriteTimeout(fc.Server.WriteTimeout))
	}
	if fc.Server.IdleTimeout > 0 {
		opts = append(opts, WithIdleTimeout(fc.Server.IdleTimeout))
	}
	if fc.Server.MaxHeaderBytes > 0 {
		opts = append(opts, WithMaxHeaderBytes(fc.Server.MaxHeaderBytes))
	}
	if fc.Shutdown.Timeout > 0 {
		opts = append(opts, WithShutdownTimeout(fc.Shutdown.Timeout))
	}
	if fc.Internal.Prefix != "" {
		opts = append(opts, WithInternalPrefix(fc.Internal.Prefix))
	}
	if fc.Dispatch.Timeout > 0 {
		opts = append(opts, WithDispatchTimeout(fc.Dispatch.Timeout))
	}
	if fc.MaxBodyBytes > 0 {
		opts = append(opts, WithMaxBodyBytes(fc.MaxBodyBytes))
	}

	if fc.Log.Level != "" || fc.Log.Format != "" || fc.Log.File != "" {
		log, err := fc.buildLogger()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLogger(log))
	}

	if fc.Tracing.Enabled {
		opts = append(opts, WithTracing(fc.buildTracing()))
	}

	return opts, nil
}

// buildLogger 按日志小节构建日志实例
func (fc *FileConfig) buildLogger() (logger.Logger, error) {
	var lopts []logger.Option

	if fc.Log.Level != "" {
		lopts = append(lopts, logger.WithLevel(logger.ParseLevel(fc.Log.Level)))
	}
	if fc.Log.Format != "" {
		format := logger.Format(fc.Log.Format)
		if !format.IsValid() {
			return nil, errors.Configurationf("unknown log format %q", fc.Log.Format)
		}
		lopts = append(lopts, logger.WithFormat(format))
	}
	if fc.Log.File != "" {
		lopts = append(lopts, logger.WithFileOutput(fc.Log.File))
	} else {
		lopts = append(lopts, logger.WithConsoleOutput())
	}

	log, err := logger.NewWithOptions(lopts...)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfiguration, err, "build logger from file config")
	}
	return log, nil
}

// buildTracing 按追踪小节构建追踪配置
func (fc *FileConfig) buildTracing() *tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.ServiceVersion = Version

	if fc.Tracing.ServiceName != "" {
		cfg.ServiceName = fc.Tracing.ServiceName
	}
	if fc.Tracing.Environment != "" {
		cfg.Environment = fc.Tracing.Environment
	}
	if fc.Tracing.Exporter != "" {
		cfg.Exporter = fc.Tracing.Exporter
	}
	if fc.Tracing.Endpoint != "" {
		cfg.Endpoint = fc.Tracing.Endpoint
	}
	if fc.Tracing.SampleRate > 0 {
		cfg.SampleRate = fc.Tracing.SampleRate
	}
	cfg.Insecure = fc.Tracing.Insecure
	return cfg
}
