package throttle

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/netthrottle/core/throttle"
)

// UploadQueue 使用令牌桶限制上传数据。
// 令牌补充速率为平均每秒字节数,桶容量为最大每秒字节数。
type UploadQueue struct {
	clock clock.Clock
	mt    MetricsTracer

	mu      sync.Mutex
	limiter *rate.Limiter
	burst   int
	closed  bool
}

var _ throttle.InputThrottleQueue = (*UploadQueue)(nil)

// NewUploadQueue 创建一个新的上传限速队列
// 参数:
//   - meanBPS: int64 平均每秒字节数
//   - maxBPS: int64 最大每秒字节数
//   - opts: ...Option 配置选项
//
// 返回值:
//   - *UploadQueue: 新创建的队列
//   - error: 配置无效时返回错误
func NewUploadQueue(meanBPS, maxBPS int64, opts ...Option) (*UploadQueue, error) {
	cfg := defaultConfig()
	if err := cfg.apply(opts...); err != nil {
		return nil, err
	}
	q := &UploadQueue{
		clock: cfg.clock,
		mt:    cfg.metricsTracer,
	}
	if err := q.Init(meanBPS, maxBPS); err != nil {
		return nil, err
	}
	return q, nil
}

// Init 使用平均与最大每秒字节数重新初始化令牌桶,桶初始为空
// 参数:
//   - meanBPS: int64 平均每秒字节数
//   - maxBPS: int64 最大每秒字节数
//
// 返回值:
//   - error: 两个值都不大于0时返回 ErrInvalidBandwidth
func (q *UploadQueue) Init(meanBPS, maxBPS int64) error {
	if meanBPS <= 0 && maxBPS <= 0 {
		log.Errorf("上传带宽必须为正值: mean=%d max=%d", meanBPS, maxBPS)
		return fmt.Errorf("%w: mean=%d max=%d", throttle.ErrInvalidBandwidth, meanBPS, maxBPS)
	}
	if meanBPS <= 0 {
		meanBPS = maxBPS
	}
	burst := maxBPS
	if burst < meanBPS {
		burst = meanBPS
	}

	limiter := rate.NewLimiter(rate.Limit(meanBPS), int(burst))
	// 清空令牌桶
	limiter.AllowN(q.clock.Now(), int(burst))

	q.mu.Lock()
	defer q.mu.Unlock()
	q.limiter = limiter
	q.burst = int(burst)
	return nil
}

// Available 返回当前无需等待即可读取的字节数
// 参数:
//   - remaining: int 调用方剩余要读取的字节数
//
// 返回值:
//   - int: 不超过 remaining 的可读字节数
func (q *UploadQueue) Available(remaining int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	tokens := int(q.limiter.TokensAt(q.clock.Now()))
	if tokens <= 0 {
		return 0
	}
	return min(tokens, remaining)
}

// RecordRead 记录已读取的字节数,令牌可以透支
// 参数:
//   - n: int 已读取的字节数
func (q *UploadQueue) RecordRead(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	for n > 0 {
		k := min(n, q.burst)
		q.limiter.ReserveN(now, k)
		n -= k
	}
}

// Wait 阻塞直到允许读取 n 个字节
// 参数:
//   - ctx: context.Context 上下文
//   - n: int 要读取的字节数
//
// 返回值:
//   - error: 上下文结束或队列关闭时返回错误
func (q *UploadQueue) Wait(ctx context.Context, n int) error {
	for n > 0 {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return throttle.ErrQueueClosed
		}
		k := min(n, q.burst)
		now := q.clock.Now()
		r := q.limiter.ReserveN(now, k)
		q.mu.Unlock()

		if !r.OK() {
			return fmt.Errorf("%w: 无法预留 %d 字节", throttle.ErrInvalidBandwidth, k)
		}
		if d := r.DelayFrom(now); d > 0 {
			if err := q.sleep(ctx, d); err != nil {
				r.CancelAt(q.clock.Now())
				return err
			}
			if q.mt != nil {
				q.mt.UploadWait(d)
			}
		}
		n -= k
	}
	return nil
}

// sleep 使用队列时钟等待 d
func (q *UploadQueue) sleep(ctx context.Context, d time.Duration) error {
	t := q.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WrapReader 返回按队列限速读取 r 的读取器
// 参数:
//   - ctx: context.Context 上下文,结束时读取返回错误
//   - r: io.Reader 原始读取器
//
// 返回值:
//   - io.Reader: 限速读取器
func (q *UploadQueue) WrapReader(ctx context.Context, r io.Reader) io.Reader {
	return &throttledReader{ctx: ctx, r: r, q: q}
}

// Close 关闭队列,之后 Wait 返回 ErrQueueClosed
// 返回值:
//   - error: 队列已关闭时返回 ErrQueueClosed
func (q *UploadQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return throttle.ErrQueueClosed
	}
	q.closed = true
	return nil
}

// throttledReader 在每次读取后等待令牌
type throttledReader struct {
	ctx context.Context
	r   io.Reader
	q   *UploadQueue
}

// Read 实现 io.Reader 接口,单次读取不超过令牌桶容量
func (t *throttledReader) Read(p []byte) (int, error) {
	t.q.mu.Lock()
	burst := t.q.burst
	t.q.mu.Unlock()
	if len(p) > burst {
		p = p[:burst]
	}

	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.q.Wait(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
