// Package throttle 定义了网络限速层的核心接口。
//
// 限速层插在网络传输与响应流的真实消费者之间:
//   - StreamListener 描述一次交换的流回调(开始/数据/结束)
//   - Channel 允许把新的监听器拼接进消费者链
//   - ThrottledInputChannel 与 InputThrottleQueue 描述上传方向的限速
package throttle

import (
	"context"
	"io"
)

// Request 标识一次网络交换
type Request interface {
	// ID 返回在本次运行期间唯一标识此请求的字符串
	ID() string
}

// StreamListener 接收一次流式响应的三个生命周期回调。
// 限速监听器与真实消费者都实现此接口,因此限速监听器可以作为消费者的直接替代品安装。
type StreamListener interface {
	// OnStartRequest 在响应开始时调用
	// 参数:
	//   - req: Request 当前请求
	//
	// 返回值:
	//   - error: 消费者拒绝该请求时返回错误
	OnStartRequest(req Request) error

	// OnDataAvailable 在有数据可读时调用
	// 参数:
	//   - req: Request 当前请求
	//   - r: io.Reader 数据来源,仅在调用期间有效
	//   - offset: uint64 本块数据在整个响应中的偏移量
	//   - count: int 可从 r 读取的字节数
	//
	// 返回值:
	//   - error: 消费者处理失败时返回错误
	OnDataAvailable(req Request, r io.Reader, offset uint64, count int) error

	// OnStopRequest 在响应结束时调用
	// 参数:
	//   - req: Request 当前请求
	//   - status: error 结束状态,成功时为 nil
	OnStopRequest(req Request, status error)
}

// Channel 是可以替换其流消费者的网络通道
type Channel interface {
	// SetNewListener 安装新的直接消费者,并返回之前的消费者
	// 参数:
	//   - l: StreamListener 新的消费者
	//
	// 返回值:
	//   - StreamListener: 被替换的原始消费者
	SetNewListener(l StreamListener) StreamListener
}

// ThrottledInputChannel 是上传数据可以被限速的通道
type ThrottledInputChannel interface {
	// SetThrottleQueue 设置该通道上传方向使用的限速队列
	SetThrottleQueue(q InputThrottleQueue)
}

// InputThrottleQueue 对上传数据进行限速
type InputThrottleQueue interface {
	// Init 使用平均与最大每秒字节数初始化队列
	Init(meanBPS, maxBPS int64) error

	// Available 返回当前无需等待即可读取的字节数,不超过 remaining
	Available(remaining int) int

	// RecordRead 记录已经读取的字节数
	RecordRead(n int)

	// Wait 阻塞直到允许读取 n 个字节或 ctx 结束
	Wait(ctx context.Context, n int) error

	// WrapReader 返回一个按限速读取 r 的读取器
	WrapReader(ctx context.Context, r io.Reader) io.Reader
}
