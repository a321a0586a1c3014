package netthrottle

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/netthrottle/core/throttle"
	nthrottle "github.com/dep2p/netthrottle/p2p/net/throttle"
)

// Latency 设置模拟的往返延迟
// 参数:
//   - mean: time.Duration 平均延迟
//   - max: time.Duration 最大延迟
//
// 返回:
//   - Option: 配置函数
func Latency(mean, max time.Duration) Option {
	return func(cfg *Config) error {
		if mean < 0 || max < 0 || mean > max {
			log.Errorf("延迟配置无效: mean=%s max=%s", mean, max)
			return fmt.Errorf("%w: mean=%s max=%s", throttle.ErrInvalidLatency, mean, max)
		}
		cfg.ThrottleData.LatencyMean = mean
		cfg.ThrottleData.LatencyMax = max
		return nil
	}
}

// DownloadBandwidth 设置下载带宽,单位为字节每秒
// 参数:
//   - mean: int64 平均每秒字节数
//   - max: int64 最大每秒字节数
//
// 返回:
//   - Option: 配置函数
func DownloadBandwidth(mean, max int64) Option {
	return func(cfg *Config) error {
		if err := checkBandwidth(mean, max); err != nil {
			return fmt.Errorf("下载: %w", err)
		}
		cfg.ThrottleData.DownloadBPSMean = mean
		cfg.ThrottleData.DownloadBPSMax = max
		return nil
	}
}

// UploadBandwidth 设置上传带宽,单位为字节每秒
// 参数:
//   - mean: int64 平均每秒字节数
//   - max: int64 最大每秒字节数
//
// 返回:
//   - Option: 配置函数
func UploadBandwidth(mean, max int64) Option {
	return func(cfg *Config) error {
		if err := checkBandwidth(mean, max); err != nil {
			return fmt.Errorf("上传: %w", err)
		}
		cfg.ThrottleData.UploadBPSMean = mean
		cfg.ThrottleData.UploadBPSMax = max
		return nil
	}
}

// checkBandwidth 检查一个方向的带宽配置
func checkBandwidth(mean, max int64) error {
	if mean < 0 || max < 0 || mean > max {
		log.Errorf("带宽配置无效: mean=%d max=%d", mean, max)
		return fmt.Errorf("%w: mean=%d max=%d", throttle.ErrInvalidBandwidth, mean, max)
	}
	return nil
}

// WithThrottleData 一次性设置全部限速配置
// 参数:
//   - data: nthrottle.ThrottleData 限速配置
//
// 返回:
//   - Option: 配置函数
func WithThrottleData(data nthrottle.ThrottleData) Option {
	return func(cfg *Config) error {
		if err := data.Validate(); err != nil {
			log.Errorf("限速配置无效: %v", err)
			return err
		}
		cfg.ThrottleData = data
		return nil
	}
}

// WithClock 配置队列使用的时钟
// 参数:
//   - c: clock.Clock 时钟实现
//
// 返回:
//   - Option: 配置函数
func WithClock(c clock.Clock) Option {
	return func(cfg *Config) error {
		if c == nil {
			log.Errorf("时钟不能为空")
			return errors.New("时钟不能为空")
		}
		if cfg.Clock != nil {
			log.Errorf("时钟已设置")
			return errors.New("时钟已设置")
		}
		cfg.Clock = c
		return nil
	}
}

// WithRandSource 配置采样延迟与带宽时使用的随机数来源
// 参数:
//   - r: nthrottle.RandSource 随机数来源
//
// 返回:
//   - Option: 配置函数
func WithRandSource(r nthrottle.RandSource) Option {
	return func(cfg *Config) error {
		if r == nil {
			log.Errorf("随机数来源不能为空")
			return errors.New("随机数来源不能为空")
		}
		cfg.RandSource = r
		return nil
	}
}

// WithWindow 配置统计已放行字节的滑动窗口长度
// 参数:
//   - w: time.Duration 窗口长度
//
// 返回:
//   - Option: 配置函数
func WithWindow(w time.Duration) Option {
	return func(cfg *Config) error {
		if w <= 0 {
			log.Errorf("滑动窗口必须为正数")
			return errors.New("滑动窗口必须为正数")
		}
		cfg.Window = w
		return nil
	}
}

// DisableMetrics 禁用 prometheus 指标
// 返回:
//   - Option: 配置函数
func DisableMetrics() Option {
	return func(cfg *Config) error {
		cfg.DisableMetrics = true
		return nil
	}
}

// PrometheusRegisterer 配置使用 reg 作为指标注册器
// 参数:
//   - reg: prometheus 注册器
//
// 返回:
//   - Option: 配置函数
func PrometheusRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *Config) error {
		if cfg.DisableMetrics {
			log.Errorf("指标被禁用时不能设置注册器")
			return errors.New("指标被禁用时不能设置注册器")
		}
		if cfg.PrometheusRegisterer != nil {
			log.Errorf("注册器已设置")
			return errors.New("注册器已设置")
		}
		if reg == nil {
			log.Errorf("注册器不能为空")
			return errors.New("注册器不能为空")
		}
		cfg.PrometheusRegisterer = reg
		return nil
	}
}

// WithFxOption 添加用户提供的 fx.Option 到构造函数中
// 参数:
//   - opts: ...fx.Option fx 选项列表
//
// 返回:
//   - Option: 配置函数
func WithFxOption(opts ...fx.Option) Option {
	return func(cfg *Config) error {
		cfg.UserFxOptions = append(cfg.UserFxOptions, opts...)
		return nil
	}
}
