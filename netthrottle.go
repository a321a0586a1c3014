// Package netthrottle 模拟受限的网络环境:为一组网络请求注入延迟,并限制下载与上传带宽。
//
// 使用 New 并传入选项构造一个限速管理器,例如:
//
//	m, err := netthrottle.New(netthrottle.Profile("Regular 3G"))
//
// 然后把 m 交给 p2p/http/throttle 的 Transport,或者直接对实现了
// core/throttle.Channel 的通道调用 m.Manage。
package netthrottle

import (
	logging "github.com/dep2p/log"

	"github.com/dep2p/netthrottle/config"
)

var log = logging.Logger("netthrottle")

// Config 描述了限速管理器的一组设置
type Config = config.Config

// Option 是一个限速配置选项,可以传递给构造函数 (`netthrottle.New`)
type Option = config.Option

// Manager 是由 New 构造的限速管理器
type Manager = config.Manager

// ChainOptions 将多个选项链接成单个选项
// 参数:
//   - opts: ...Option 要链接的选项列表
//
// 返回:
//   - Option: 链接后的单个选项函数
func ChainOptions(opts ...Option) Option {
	return func(cfg *Config) error {
		for _, opt := range opts {
			if opt == nil {
				continue
			}
			if err := opt(cfg); err != nil {
				log.Errorf("应用选项失败: %s", err)
				return err
			}
		}
		return nil
	}
}

// New 使用给定选项构造一个新的限速管理器,如果没有提供某些选项则使用合理的默认值
// 默认值包括:
// - 如果未提供时钟,使用系统时钟
// - 如果未禁用指标且未提供注册器,使用 prometheus 默认注册器
//
// 未设置任何带宽时两个方向都不限速,只模拟延迟也需要至少设置一个方向的带宽。
//
// 参数:
//   - opts: ...Option 配置选项列表
//
// 返回:
//   - *Manager: 新创建的限速管理器
//   - error: 如果发生错误则返回错误信息
func New(opts ...Option) (*Manager, error) {
	return NewWithoutDefaults(append(opts, FallbackDefaults)...)
}

// NewWithoutDefaults 使用给定选项构造新的限速管理器,但不使用默认值
//
// 参数:
//   - opts: ...Option 配置选项列表
//
// 返回:
//   - *Manager: 新创建的限速管理器
//   - error: 如果发生错误则返回错误信息
func NewWithoutDefaults(opts ...Option) (*Manager, error) {
	var cfg Config
	if err := cfg.Apply(opts...); err != nil {
		log.Errorf("应用选项失败: %s", err)
		return nil, err
	}
	return cfg.NewManager()
}
