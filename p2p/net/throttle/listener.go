package throttle

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/dep2p/netthrottle/core/throttle"
)

// pendingUnit 是监听器缓冲的一个单元:数据块或结束标记
type pendingUnit struct {
	req    throttle.Request // 所属请求
	data   []byte           // 尚未转发的数据,结束标记时为 nil
	stop   bool             // 是否为结束标记
	status error            // 结束状态
}

// activity 是等待重新发出的活动事件
type activity struct {
	cb throttle.ActivityCallback // 回调函数
	ev throttle.ActivityEvent    // 原始事件
}

// SendResult 是 SendSomeData 的结果
type SendResult struct {
	// Length 实际转发的字节数
	Length int
	// Done 表示队列头部的单元已处理完毕。
	// 一个监听器可能在就绪队列中出现多次,因此这并不意味着所有数据都已发送
	Done bool
}

// Listener 缓冲一次网络交换的所有数据,只在队列允许时才转发给原始监听器。
// 创建后必须调用 SetOriginalListener。
type Listener struct {
	queue *Queue

	mu              sync.Mutex
	original        throttle.StreamListener
	req             throttle.Request
	stopped         bool
	pending         []*pendingUnit
	offset          uint64
	pendingErr      error
	responseStarted bool
	totalSize       int64
	hasTotalSize    bool
	activities      map[throttle.ActivitySubtype]*activity
}

var _ throttle.StreamListener = (*Listener)(nil)

// NewListener 创建绑定到指定队列的限速监听器
// 参数:
//   - q: *Queue 接收状态变化通知的限速队列
//
// 返回值:
//   - *Listener: 新创建的监听器
func NewListener(q *Queue) *Listener {
	return &Listener{
		queue:      q,
		activities: make(map[throttle.ActivitySubtype]*activity),
	}
}

// SetOriginalListener 设置原始监听器,队列放行的数据都会转发给它
// 参数:
//   - original: throttle.StreamListener 通道原本的消费者
func (l *Listener) SetOriginalListener(original throttle.StreamListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.original = original
}

// originalListener 返回原始监听器
func (l *Listener) originalListener() (throttle.StreamListener, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.original == nil {
		return nil, throttle.ErrListenerNotAttached
	}
	return l.original, nil
}

// OnStartRequest 立即转发给原始监听器,然后让队列开始模拟延迟
// 参数:
//   - req: throttle.Request 当前请求
//
// 返回值:
//   - error: 原始监听器返回的错误,队列已关闭时返回 ErrQueueClosed
func (l *Listener) OnStartRequest(req throttle.Request) error {
	original, err := l.originalListener()
	if err != nil {
		log.Errorf("请求 %s 开始时未设置原始监听器", req.ID())
		return err
	}
	if err := original.OnStartRequest(req); err != nil {
		log.Debugf("原始监听器拒绝请求 %s: %v", req.ID(), err)
		return err
	}

	// 记录请求,队列关闭时用它转发结束事件
	l.mu.Lock()
	l.req = req
	l.mu.Unlock()

	if err := l.queue.Start(l); err != nil {
		log.Debugf("请求 %s 无法进入限速队列: %v", req.ID(), err)
		return err
	}
	return nil
}

// OnStopRequest 缓冲一个结束标记并通知队列
// 参数:
//   - req: throttle.Request 当前请求
//   - status: error 结束状态
func (l *Listener) OnStopRequest(req throttle.Request, status error) {
	l.mu.Lock()
	// 已经终止的监听器不再接收结束标记
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, &pendingUnit{req: req, stop: true, status: status})
	l.mu.Unlock()
	l.queue.DataAvailable(l)
}

// OnDataAvailable 从数据源复制 count 个字节到自有缓冲区并通知队列。
// 数据源在调用返回后不保证有效。
// 参数:
//   - req: throttle.Request 当前请求
//   - r: io.Reader 数据源
//   - offset: uint64 数据源偏移量,转发时会按已发送字节重新计算
//   - count: int 可读取的字节数
//
// 返回值:
//   - error: 之前锁存的消费者错误,或读取数据源失败的错误
func (l *Listener) OnDataAvailable(req throttle.Request, r io.Reader, offset uint64, count int) error {
	// 消费者已经失败时不再缓冲
	l.mu.Lock()
	if l.pendingErr != nil {
		err := l.pendingErr
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()

	// 数据源只在本次调用期间有效,复制到自有缓冲区
	data := make([]byte, count)
	if _, err := io.ReadFull(r, data); err != nil {
		log.Errorf("读取请求 %s 偏移 %d 处的 %d 字节失败: %v", req.ID(), offset, count, err)
		return fmt.Errorf("%w: %v", throttle.ErrShortRead, err)
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return throttle.ErrQueueClosed
	}
	l.pending = append(l.pending, &pendingUnit{req: req, data: data})
	l.mu.Unlock()
	l.queue.DataAvailable(l)
	return nil
}

// SendSomeData 允许把部分缓冲数据转发给原始监听器
// 参数:
//   - bytesPermitted: int 允许发送的最大字节数
//
// 返回值:
//   - SendResult: 实际转发的字节数以及头部单元是否处理完毕
//   - error: 消费者返回的错误,之后的调用会再次返回同一个错误
func (l *Listener) SendSomeData(bytesPermitted int) (SendResult, error) {
	l.mu.Lock()
	if len(l.pending) == 0 {
		// 不应该发生
		l.mu.Unlock()
		return SendResult{Done: true}, nil
	}

	head := l.pending[0]
	original := l.original
	if original == nil {
		l.mu.Unlock()
		return SendResult{Done: true}, throttle.ErrListenerNotAttached
	}

	// 结束标记不占用带宽
	if head.stop {
		l.popLocked()
		l.stopped = true
		l.mu.Unlock()
		original.OnStopRequest(head.req, head.status)
		l.queue.finished(l)
		return SendResult{Done: true}, nil
	}

	if l.pendingErr != nil {
		// 消费者已经失败,丢弃该数据块且不计入已发送字节
		err := l.pendingErr
		l.popLocked()
		l.mu.Unlock()
		return SendResult{Done: true}, err
	}

	// 不超过头部数据块剩余的字节数
	n := min(bytesPermitted, len(head.data))
	offset := l.offset
	l.mu.Unlock()

	// 转发时不持有锁,消费者可能回调到监听器

	err := original.OnDataAvailable(head.req, bytes.NewReader(head.data[:n]), offset, n)

	l.mu.Lock()
	if err != nil {
		log.Debugf("请求 %s 的消费者在偏移 %d 处失败: %v", head.req.ID(), offset, err)
		l.pendingErr = err
	}
	// 数据块发完则出队,否则原地缩小
	done := false
	if n == len(head.data) {
		l.popLocked()
		done = true
	} else {
		head.data = head.data[n:]
	}
	l.offset += uint64(n)
	// 转发字节数变化后可能有活动事件满足条件
	due := l.dueActivitiesLocked()
	l.mu.Unlock()

	l.emit(due)
	return SendResult{Length: n, Done: done}, err
}

// abort 丢弃所有缓冲单元,并以 err 向原始监听器转发结束事件。
// 已经转发过结束标记的监听器不受影响。
func (l *Listener) abort(err error) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.pending = nil
	// 之后上游继续送数据时直接返回错误
	if l.pendingErr == nil {
		l.pendingErr = err
	}
	original, req := l.original, l.req
	l.mu.Unlock()

	if original == nil || req == nil {
		return
	}
	log.Debugf("终止请求 %s 的限速监听器: %v", req.ID(), err)
	original.OnStopRequest(req, err)
}

// popLocked 移除头部单元,调用方必须持有锁
func (l *Listener) popLocked() {
	l.pending[0] = nil
	l.pending = l.pending[1:]
}

// PendingCount 返回缓冲的单元数量
func (l *Listener) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Offset 返回已转发给原始监听器的字节数
func (l *Listener) Offset() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offset
}

// AddActivityCallback 接收一个活动事件,并延迟到合适的时机再发出。
// 非下载类活动直接发出。
// 参数:
//   - cb: throttle.ActivityCallback 事件回调
//   - ev: throttle.ActivityEvent 平台上报的原始事件
func (l *Listener) AddActivityCallback(cb throttle.ActivityCallback, ev throttle.ActivityEvent) {
	// 上传相关的活动不受下载延迟影响
	if !throttle.IsDownloadActivity(ev.Subtype) {
		cb(ev)
		return
	}

	if mt := l.queue.mt; mt != nil {
		mt.ActivityDeferred(ev.Subtype)
	}

	l.mu.Lock()
	// 同一子类型只保留最新的事件
	l.activities[ev.Subtype] = &activity{cb: cb, ev: ev}
	// 响应完成事件携带总字节数
	if ev.Subtype == throttle.ActivityResponseComplete {
		l.totalSize = ev.ExtraSize
		l.hasTotalSize = true
	}
	due := l.dueActivitiesLocked()
	l.mu.Unlock()

	l.emit(due)
}

// ResponseStart 在下载方向的模拟延迟结束时由队列调用
func (l *Listener) ResponseStart() {
	l.mu.Lock()
	l.responseStarted = true
	due := l.dueActivitiesLocked()
	l.mu.Unlock()

	l.emit(due)
}

// dueActivitiesLocked 取出所有已满足条件的活动事件。
// 只有平台事件已到达且内部状态也一致时才会发出。
func (l *Listener) dueActivitiesLocked() []*activity {
	var due []*activity
	take := func(s throttle.ActivitySubtype) {
		if a, ok := l.activities[s]; ok {
			due = append(due, a)
			delete(l.activities, s)
		}
	}

	if l.responseStarted {
		take(throttle.ActivityResponseStart)
		take(throttle.ActivityResponseHeader)
	}

	if l.hasTotalSize && int64(l.offset) >= l.totalSize {
		take(throttle.ActivityResponseComplete)
		take(throttle.ActivityTransactionClose)
	}
	return due
}

// emit 以当前时间重新发出活动事件
func (l *Listener) emit(due []*activity) {
	if len(due) == 0 {
		return
	}
	// 使用模拟的时间点替换平台时间
	now := l.queue.clock.Now()
	for _, a := range due {
		ev := a.ev
		ev.Timestamp = now
		a.cb(ev)
	}
}
