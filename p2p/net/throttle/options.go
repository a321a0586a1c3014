package throttle

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultWindow 是队列统计已发送字节的滑动窗口长度
const DefaultWindow = time.Second

// config 是限速队列与管理器共用的配置
type config struct {
	// 队列名称,用于日志和指标
	name string
	// 内部时钟实现
	clock clock.Clock
	// 随机数来源
	rand RandSource
	// 指标跟踪器,为 nil 时不上报指标
	metricsTracer MetricsTracer
	// 滑动窗口长度
	window time.Duration
}

// defaultConfig 返回默认配置
func defaultConfig() *config {
	return &config{
		clock:  clock.New(),
		rand:   defaultRandSource,
		window: DefaultWindow,
	}
}

// apply 依次应用配置选项
func (cfg *config) apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			log.Errorf("应用限速配置选项失败: %v", err)
			return err
		}
	}
	return nil
}

// Option 表示限速队列和管理器的配置选项函数
// 参数:
//   - *config: 配置对象指针
//
// 返回值:
//   - error: 配置错误信息
type Option func(*config) error

// WithClock 设置内部时钟实现
// 参数:
//   - c: clock.Clock 时钟实现对象
//
// 返回值:
//   - Option: 配置选项函数
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c == nil {
			return errors.New("时钟不能为空")
		}
		cfg.clock = c
		return nil
	}
}

// WithRandSource 设置采样延迟与带宽时使用的随机数来源,测试时可提供确定的值
// 参数:
//   - r: RandSource 随机数来源
//
// 返回值:
//   - Option: 配置选项函数
func WithRandSource(r RandSource) Option {
	return func(cfg *config) error {
		if r == nil {
			return errors.New("随机数来源不能为空")
		}
		cfg.rand = r
		return nil
	}
}

// WithMetricsTracer 设置指标跟踪器
// 参数:
//   - mt: MetricsTracer 指标跟踪器
//
// 返回值:
//   - Option: 配置选项函数
func WithMetricsTracer(mt MetricsTracer) Option {
	return func(cfg *config) error {
		cfg.metricsTracer = mt
		return nil
	}
}

// WithWindow 设置统计已发送字节的滑动窗口长度
// 参数:
//   - w: time.Duration 窗口长度
//
// 返回值:
//   - Option: 配置选项函数
func WithWindow(w time.Duration) Option {
	return func(cfg *config) error {
		if w <= 0 {
			log.Debugf("滑动窗口必须是正值")
			return errors.New("滑动窗口必须是正值")
		}
		cfg.window = w
		return nil
	}
}

// WithName 设置队列名称
// 参数:
//   - name: string 队列名称
//
// 返回值:
//   - Option: 配置选项函数
func WithName(name string) Option {
	return func(cfg *config) error {
		cfg.name = name
		return nil
	}
}
