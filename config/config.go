package config

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	nthrottle "github.com/dep2p/netthrottle/p2p/net/throttle"
)

// Config 描述了一个限速管理器的全部设置
//
// 不要直接构造它,请使用 netthrottle.New 并传入选项
type Config struct {
	ThrottleData nthrottle.ThrottleData // 限速配置

	Clock      clock.Clock          // 队列使用的时钟
	RandSource nthrottle.RandSource // 采样延迟与带宽的随机数来源
	Window     time.Duration        // 统计已放行字节的滑动窗口长度

	DisableMetrics       bool                  // 是否禁用指标
	PrometheusRegisterer prometheus.Registerer // 指标注册器

	UserFxOptions []fx.Option // 用户自定义的 fx 选项
}

// managerParams 是构造限速管理器的依赖
type managerParams struct {
	fx.In

	Lifecycle     fx.Lifecycle
	Clock         clock.Clock
	MetricsTracer nthrottle.MetricsTracer `optional:"true"`
}

// managerOptions 根据配置生成队列选项
// 参数:
//   - p: managerParams 注入的依赖
//
// 返回:
//   - []nthrottle.Option: 队列选项列表
func (cfg *Config) managerOptions(p managerParams) []nthrottle.Option {
	opts := []nthrottle.Option{nthrottle.WithClock(p.Clock)}
	if p.MetricsTracer != nil {
		opts = append(opts, nthrottle.WithMetricsTracer(p.MetricsTracer))
	}
	if cfg.RandSource != nil {
		opts = append(opts, nthrottle.WithRandSource(cfg.RandSource))
	}
	if cfg.Window > 0 {
		opts = append(opts, nthrottle.WithWindow(cfg.Window))
	}
	return opts
}

// NewManager 根据配置构造限速管理器
// 返回:
//   - *Manager: 新创建的限速管理器
//   - error: 创建过程中的错误
func (cfg *Config) NewManager() (*Manager, error) {
	if err := cfg.ThrottleData.Validate(); err != nil {
		log.Errorf("限速配置无效: %v", err)
		return nil, err
	}

	fxopts := []fx.Option{
		// 使用包日志记录器输出 fx 日志
		fx.WithLogger(func() fxevent.Logger { return getFXLogger() }),
		// 提供时钟
		fx.Provide(func() clock.Clock {
			if cfg.Clock == nil {
				return clock.New()
			}
			return cfg.Clock
		}),
		// 提供限速管理器,应用停止时关闭它
		fx.Provide(func(p managerParams) (*nthrottle.Manager, error) {
			m, err := nthrottle.NewManager(cfg.ThrottleData, cfg.managerOptions(p)...)
			if err != nil {
				log.Errorf("创建限速管理器失败: %v", err)
				return nil, err
			}
			p.Lifecycle.Append(fx.StopHook(m.Close))
			return m, nil
		}),
	}

	// 提供指标跟踪器
	if !cfg.DisableMetrics {
		fxopts = append(fxopts, fx.Provide(func() nthrottle.MetricsTracer {
			return nthrottle.NewMetricsTracer(nthrottle.WithRegisterer(cfg.PrometheusRegisterer))
		}))
	}

	// 保存管理器引用
	var m *nthrottle.Manager
	fxopts = append(fxopts, fx.Invoke(func(mgr *nthrottle.Manager) { m = mgr }))

	// 添加用户自定义选项
	fxopts = append(fxopts, cfg.UserFxOptions...)

	app := fx.New(fxopts...)
	if err := app.Start(context.Background()); err != nil {
		log.Errorf("启动应用失败: %v", err)
		return nil, err
	}
	return &Manager{App: app, Manager: m}, nil
}

// Option 是一个函数类型,用于配置限速管理器
// 参数:
//   - cfg: 配置对象指针
//
// 返回:
//   - error: 配置错误
type Option func(cfg *Config) error

// Apply 应用一组配置选项
// 参数:
//   - opts: 配置选项列表
//
// 返回:
//   - error: 应用配置时的错误
func (cfg *Config) Apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			log.Errorf("应用配置选项失败: %v", err)
			return err
		}
	}
	return nil
}
