package throttle

import "errors"

// ErrListenerNotAttached 在限速监听器尚未设置原始监听器时返回
var ErrListenerNotAttached = errors.New("限速监听器未设置原始监听器")

// ErrQueueClosed 在限速队列关闭后继续使用时返回
var ErrQueueClosed = errors.New("限速队列已关闭")

// ErrInvalidBandwidth 在带宽配置无效时返回
var ErrInvalidBandwidth = errors.New("无效的带宽配置")

// ErrInvalidLatency 在延迟配置无效时返回
var ErrInvalidLatency = errors.New("无效的延迟配置")

// ErrUnknownProfile 在找不到指定的限速配置档时返回
var ErrUnknownProfile = errors.New("未知的限速配置档")

// ErrShortRead 在数据源提供的字节少于声明的数量时返回
var ErrShortRead = errors.New("数据源字节数不足")
