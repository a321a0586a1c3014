package throttle

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/netthrottle/core/throttle"
)

// 重新调度的最小间隔
const minPumpDelay = time.Millisecond

// sendRecord 记录一次调度放行的字节数
type sendRecord struct {
	when     time.Time // 调度时间
	numBytes int64     // 放行的字节数
}

// QueueStats 是队列的状态快照
type QueueStats struct {
	Pending      int   // 处于延迟等待阶段的监听器数量
	Ready        int   // 就绪队列中的条目数
	SentInWindow int64 // 当前窗口内已放行的字节数
}

// Queue 为一组相关的网络请求模拟带宽和延迟。
// 它持有全局的速率模型与延迟模型,并决定每一轮调度中各个就绪监听器可以发送多少字节。
type Queue struct {
	name        string
	meanBPS     int64
	maxBPS      int64
	latencyMean time.Duration
	latencyMax  time.Duration
	window      time.Duration
	clock       clock.Clock
	rand        RandSource
	mt          MetricsTracer

	mu sync.Mutex
	// 已开始且尚未转发结束标记的监听器
	active map[*Listener]struct{}
	// 处于延迟等待阶段的监听器及其定时器
	pending map[*Listener]*clock.Timer
	// 有数据可发送的监听器,每个待发送单元对应一个条目
	ready []*Listener
	// 最近一个窗口内的放行记录
	previousReads []sendRecord
	// 正在调度,嵌套或并发的调度请求只做标记
	pumping bool
	// 调度期间有新的调度请求
	repump bool
	// 下一轮调度的定时器
	timer  *clock.Timer
	closed bool
}

// NewQueue 创建一个新的限速队列
// 参数:
//   - meanBPS: int64 平均每秒字节数
//   - maxBPS: int64 最大每秒字节数
//   - latencyMean: time.Duration 平均延迟
//   - latencyMax: time.Duration 最大延迟
//   - opts: ...Option 配置选项
//
// 返回值:
//   - *Queue: 新创建的队列
//   - error: 配置错误
func NewQueue(meanBPS, maxBPS int64, latencyMean, latencyMax time.Duration, opts ...Option) (*Queue, error) {
	cfg := defaultConfig()
	if err := cfg.apply(opts...); err != nil {
		return nil, err
	}
	if latencyMean < 0 || latencyMax < 0 {
		log.Errorf("延迟不能为负值: mean=%s max=%s", latencyMean, latencyMax)
		return nil, fmt.Errorf("%w: mean=%s max=%s", throttle.ErrInvalidLatency, latencyMean, latencyMax)
	}

	return &Queue{
		name:        cfg.name,
		meanBPS:     meanBPS,
		maxBPS:      maxBPS,
		latencyMean: latencyMean,
		latencyMax:  latencyMax,
		window:      cfg.window,
		clock:       cfg.clock,
		rand:        cfg.rand,
		mt:          cfg.metricsTracer,
		active:      make(map[*Listener]struct{}),
		pending:     make(map[*Listener]*clock.Timer),
	}, nil
}

// Name 返回队列名称
func (q *Queue) Name() string {
	return q.name
}

// Start 注意到一个新的监听器。监听器先进入等待状态,直到模拟的往返时间结束
// 参数:
//   - l: *Listener 新的监听器
//
// 返回值:
//   - error: 队列已关闭时返回 ErrQueueClosed
func (q *Queue) Start(l *Listener) error {
	// 每个监听器单独采样一次延迟
	delay := sampleLatency(q.latencyMean, q.latencyMax, q.rand)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		log.Debugf("队列 %s 已关闭,拒绝新的监听器", q.name)
		return throttle.ErrQueueClosed
	}
	q.active[l] = struct{}{}
	// 延迟不大于0时没有定时器,下面立即放行
	q.pending[l] = nil
	if delay > 0 {
		q.pending[l] = q.clock.AfterFunc(delay, func() { q.allowDataFrom(l) })
	}
	q.mu.Unlock()

	if q.mt != nil {
		q.mt.ListenerStarted(q.name, delay)
	}
	if delay <= 0 {
		q.allowDataFrom(l)
	}
	return nil
}

// allowDataFrom 让监听器开始发送数据,在模拟延迟结束后调用
func (q *Queue) allowDataFrom(l *Listener) {
	// 队列关闭后等待中的监听器已被移除
	q.mu.Lock()
	_, ok := q.pending[l]
	q.mu.Unlock()
	if !ok {
		return
	}
	// 响应开始事件必须早于任何数据放行
	l.ResponseStart()

	q.mu.Lock()
	if _, ok := q.pending[l]; !ok {
		q.mu.Unlock()
		return
	}
	delete(q.pending, l)
	// 等待期间缓冲的每个单元各占一个就绪条目
	count := l.PendingCount()
	for i := 0; i < count; i++ {
		q.ready = append(q.ready, l)
	}
	q.mu.Unlock()

	if q.mt != nil {
		q.mt.ListenerReady(q.name)
	}
	q.pump()
}

// finished 在监听器转发结束标记后调用,之后关闭队列不再通知它
func (q *Queue) finished(l *Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, l)
}

// DataAvailable 通知队列监听器有新数据。每次有数据时监听器都会重新排队
// 参数:
//   - l: *Listener 有数据可发送的监听器
func (q *Queue) DataAvailable(l *Listener) {
	q.mu.Lock()
	// 仍在等待延迟的监听器会在放行时按缓冲数量一次性入队
	if _, ok := q.pending[l]; ok || q.closed {
		q.mu.Unlock()
		return
	}
	q.ready = append(q.ready, l)
	q.mu.Unlock()

	q.pump()
}

// pump 让就绪的监听器在当前窗口的预算内发送数据
func (q *Queue) pump() {
	q.mu.Lock()
	defer q.mu.Unlock()

	// 重定向会让两个限速监听器处于同一条监听链上,这里可能被递归调用
	if q.pumping {
		q.repump = true
		return
	}
	q.pumping = true

	// 调度期间有新的请求时再执行一轮
	for !q.closed {
		q.repump = false
		q.pumpOnceLocked()
		if !q.repump || len(q.ready) == 0 {
			break
		}
	}

	q.scheduleLocked()
	q.pumping = false
}

// pumpOnceLocked 执行一轮调度,调用方持有锁,转发数据时会临时释放锁
func (q *Queue) pumpOnceLocked() {
	now := q.clock.Now()
	cutoff := now.Add(-q.window)

	// 丢弃窗口之外的放行记录,恰好位于窗口边界的记录仍然计入
	for len(q.previousReads) > 0 && q.previousReads[0].when.Before(cutoff) {
		q.previousReads = q.previousReads[1:]
	}

	var totalBytes int64
	for _, r := range q.previousReads {
		totalBytes += r.numBytes
	}

	// 本轮的预算为采样带宽减去窗口内已放行的字节
	thisSliceBytes := sample(q.meanBPS, q.maxBPS, q.rand)
	if totalBytes >= thisSliceBytes {
		if q.mt != nil {
			q.mt.PumpRun(q.name, true)
		}
		return
	}

	thisSliceBytes -= totalBytes
	var readThisTime int64
	for thisSliceBytes > 0 && len(q.ready) > 0 && !q.closed {
		// 取出就绪队列头部
		l := q.ready[0]
		q.ready = q.ready[1:]

		// 转发数据时释放锁,消费者可能重入队列
		q.mu.Unlock()
		res, err := l.SendSomeData(int(thisSliceBytes))
		q.mu.Lock()

		if err != nil {
			log.Warnf("队列 %s 转发数据时消费者返回错误: %v", q.name, err)
			if q.mt != nil {
				q.mt.ConsumerError(q.name)
			}
		}
		thisSliceBytes -= int64(res.Length)
		readThisTime += int64(res.Length)
		// 头部单元没有发完,排到队尾让其他监听器先发送
		if !res.Done && !q.closed {
			q.ready = append(q.ready, l)
		}
	}
	q.previousReads = append(q.previousReads, sendRecord{when: now, numBytes: readThisTime})

	if q.mt != nil {
		q.mt.PumpRun(q.name, false)
		q.mt.BytesSent(q.name, readThisTime)
		q.mt.ReadyQueueLength(q.name, len(q.ready))
	}
}

// scheduleLocked 如果还有数据要发送,在最早一条放行记录满一个窗口时再次调度
func (q *Queue) scheduleLocked() {
	if q.closed || len(q.ready) == 0 {
		return
	}

	// 没有放行记录时等待一个完整窗口
	delay := q.window
	if len(q.previousReads) > 0 {
		delay = q.previousReads[0].when.Add(q.window).Sub(q.clock.Now())
	}
	if delay < minPumpDelay {
		delay = minPumpDelay
	}

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = q.clock.AfterFunc(delay, q.pump)
}

// Stats 返回队列的状态快照
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.clock.Now().Add(-q.window)
	var sent int64
	for _, r := range q.previousReads {
		if !r.when.Before(cutoff) {
			sent += r.numBytes
		}
	}
	return QueueStats{
		Pending:      len(q.pending),
		Ready:        len(q.ready),
		SentInWindow: sent,
	}
}

// Close 停止所有定时器,之后队列不再调度任何监听器。
// 尚未结束的监听器会以 ErrQueueClosed 向原始监听器转发结束事件。
// 返回值:
//   - error: 队列已经关闭时返回 ErrQueueClosed
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return throttle.ErrQueueClosed
	}
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	// 停止所有延迟定时器
	dropped := len(q.pending)
	for l, t := range q.pending {
		if t != nil {
			t.Stop()
		}
		delete(q.pending, l)
	}
	q.ready = nil
	// 取出所有未结束的监听器,释放锁后再通知
	active := make([]*Listener, 0, len(q.active))
	for l := range q.active {
		active = append(active, l)
		delete(q.active, l)
	}
	q.mu.Unlock()

	if q.mt != nil && dropped > 0 {
		q.mt.ListenersDropped(q.name, dropped)
	}
	log.Debugf("关闭队列 %s,终止 %d 个监听器", q.name, len(active))
	for _, l := range active {
		l.abort(throttle.ErrQueueClosed)
	}
	return nil
}
