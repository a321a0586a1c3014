package throttlehttp

import (
	"errors"
	"net/http"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/netthrottle/core/throttle"
	nthrottle "github.com/dep2p/netthrottle/p2p/net/throttle"
)

// TransportOption 表示 Transport 的配置选项函数
// 参数:
//   - *Transport: 要配置的 Transport
//
// 返回值:
//   - error: 配置错误信息
type TransportOption func(*Transport) error

// WithThrottleData 设置初始的限速配置
// 参数:
//   - data: nthrottle.ThrottleData 限速配置
//
// 返回值:
//   - TransportOption: 配置选项函数
func WithThrottleData(data nthrottle.ThrottleData) TransportOption {
	return func(t *Transport) error {
		if err := data.Validate(); err != nil {
			return err
		}
		t.data = &data
		return nil
	}
}

// WithManagerOptions 设置创建限速管理器时使用的选项
// 参数:
//   - opts: ...nthrottle.Option 管理器选项
//
// 返回值:
//   - TransportOption: 配置选项函数
func WithManagerOptions(opts ...nthrottle.Option) TransportOption {
	return func(t *Transport) error {
		t.managerOpts = append(t.managerOpts, opts...)
		return nil
	}
}

// WithClock 设置 Transport 与限速管理器使用的时钟
// 参数:
//   - c: clock.Clock 时钟实现
//
// 返回值:
//   - TransportOption: 配置选项函数
func WithClock(c clock.Clock) TransportOption {
	return func(t *Transport) error {
		if c == nil {
			return errors.New("时钟不能为空")
		}
		t.clock = c
		t.managerOpts = append(t.managerOpts, nthrottle.WithClock(c))
		return nil
	}
}

// WithIgnoreFunc 设置判断请求是否跳过限速的函数
// 参数:
//   - fn: func(*http.Request) bool 返回 true 时不限速
//
// 返回值:
//   - TransportOption: 配置选项函数
func WithIgnoreFunc(fn func(*http.Request) bool) TransportOption {
	return func(t *Transport) error {
		t.ignore = fn
		return nil
	}
}

// WithActivityCallback 设置活动事件回调。限速时下载类事件会延迟到模拟的时间点发出
// 参数:
//   - cb: throttle.ActivityCallback 事件回调
//
// 返回值:
//   - TransportOption: 配置选项函数
func WithActivityCallback(cb throttle.ActivityCallback) TransportOption {
	return func(t *Transport) error {
		t.activity = cb
		return nil
	}
}
