package config

import (
	"github.com/fsnotify/fsnotify"
)

// startWatch 注册变更回调并启动底层监控
// 调用方必须持有 mu
func (c *Config) startWatch() {
	if c.watching {
		return
	}

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.mu.RLock()
		watching := c.watching
		onChange := c.onChange
		c.mu.RUnlock()

		if !watching || onChange == nil {
			return
		}
		onChange(c)
	})
	c.viper.WatchConfig()
	c.watching = true
}

// StartWatch 开始监控配置文件变更，重复调用无副作用
func (c *Config) StartWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startWatch()
}

// StopWatch 停止响应配置变更
// viper 未提供停止底层 fsnotify watcher 的方法，这里仅令回调失效
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// OnChange 设置配置变更回调
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}
