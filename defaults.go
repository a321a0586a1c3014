package netthrottle

// 此文件包含所有默认配置选项

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultClock 配置使用系统时钟
var DefaultClock = func(cfg *Config) error {
	return cfg.Apply(WithClock(clock.New()))
}

// DefaultPrometheusRegisterer 配置使用默认的 Prometheus 注册器
var DefaultPrometheusRegisterer = func(cfg *Config) error {
	return cfg.Apply(PrometheusRegisterer(prometheus.DefaultRegisterer))
}

// defaults 定义了默认选项的完整列表以及何时使用它们
// 请不要以其他方式指定默认选项
var defaults = []struct {
	fallback func(cfg *Config) bool // 回退条件函数
	opt      Option                 // 选项
}{
	{
		fallback: func(cfg *Config) bool { return cfg.Clock == nil },
		opt:      DefaultClock,
	},
	{
		fallback: func(cfg *Config) bool { return !cfg.DisableMetrics && cfg.PrometheusRegisterer == nil },
		opt:      DefaultPrometheusRegisterer,
	},
}

// FallbackDefaults 只为未配置的项应用默认选项
var FallbackDefaults Option = func(cfg *Config) error {
	for _, def := range defaults {
		if !def.fallback(cfg) {
			continue
		}
		if err := cfg.Apply(def.opt); err != nil {
			return err
		}
	}
	return nil
}
