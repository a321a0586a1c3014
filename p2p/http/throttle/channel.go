package throttlehttp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/netthrottle/core/throttle"
	nthrottle "github.com/dep2p/netthrottle/p2p/net/throttle"
)

// 每次从上游响应体读取的字节数
const readChunkSize = 32 * 1024

// errBodyClosed 表示调用方已经关闭了响应体
var errBodyClosed = errors.New("响应体已关闭")

// channel 表示一次 HTTP 交换,实现 throttle.Channel 与 throttle.ThrottledInputChannel。
// 它的默认消费者是 bodySink,调用方看到的响应体从 bodySink 中读取。
type channel struct {
	id       string
	req      *http.Request
	clock    clock.Clock
	activity throttle.ActivityCallback

	mu       sync.Mutex
	listener throttle.StreamListener
	upload   throttle.InputThrottleQueue
	throttle *nthrottle.Listener
	sink     *bodySink
}

var (
	_ throttle.Channel               = (*channel)(nil)
	_ throttle.ThrottledInputChannel = (*channel)(nil)
	_ throttle.Request               = (*channel)(nil)
)

// newChannel 为请求创建一个通道
// 参数:
//   - req: *http.Request 发出的请求
//   - clk: clock.Clock 活动事件使用的时钟
//   - activity: throttle.ActivityCallback 活动事件回调,可以为 nil
//
// 返回值:
//   - *channel: 新创建的通道
func newChannel(req *http.Request, clk clock.Clock, activity throttle.ActivityCallback) *channel {
	sink := newBodySink()
	return &channel{
		id:       uuid.New().String(),
		req:      req,
		clock:    clk,
		activity: activity,
		listener: sink,
		sink:     sink,
	}
}

// ID 实现 throttle.Request 接口
func (c *channel) ID() string {
	return c.id
}

// SetNewListener 实现 throttle.Channel 接口
func (c *channel) SetNewListener(l throttle.StreamListener) throttle.StreamListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.listener
	c.listener = l
	if tl, ok := l.(*nthrottle.Listener); ok {
		c.throttle = tl
	}
	return old
}

// SetThrottleQueue 实现 throttle.ThrottledInputChannel 接口
func (c *channel) SetThrottleQueue(q throttle.InputThrottleQueue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upload = q
}

// uploadQueue 返回安装的上传限速队列
func (c *channel) uploadQueue() throttle.InputThrottleQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upload
}

// head 返回消费者链的头部
func (c *channel) head() throttle.StreamListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

// emit 上报一个活动事件。限速时下载类事件交给限速监听器延迟发出
// 参数:
//   - subtype: throttle.ActivitySubtype 活动子类型
//   - size: int64 附加的大小信息
//   - extra: string 附加的字符串信息
func (c *channel) emit(subtype throttle.ActivitySubtype, size int64, extra string) {
	if c.activity == nil {
		return
	}
	ev := throttle.ActivityEvent{
		HTTPActivity: c.req,
		Channel:      c,
		Type:         throttle.ActivityTypeHTTPTransaction,
		Subtype:      subtype,
		Timestamp:    c.clock.Now(),
		ExtraSize:    size,
		ExtraString:  extra,
	}

	c.mu.Lock()
	tl := c.throttle
	c.mu.Unlock()
	if tl != nil {
		tl.AddActivityCallback(c.activity, ev)
		return
	}
	c.activity(ev)
}

// bypass 让默认消费者重新成为链头,之后的数据与活动事件不再限速
func (c *channel) bypass() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = c.sink
	c.throttle = nil
}

// start 开始把上游响应体送入消费者链,返回调用方读取的响应体
// 参数:
//   - resp: *http.Response 上游响应,调用方随后会替换它的 Body
//
// 返回值:
//   - io.ReadCloser: 经过限速的响应体
func (c *channel) start(resp *http.Response) io.ReadCloser {
	// 读取协程只使用替换前的上游响应体
	upstream := resp.Body
	status := resp.Proto + " " + resp.Status

	ctx, cancel := context.WithCancel(c.req.Context())
	body := &throttledBody{sink: c.sink, upstream: upstream, cancel: cancel}
	// 请求上下文结束时读取方立即返回,不再等待限速调度
	body.stop = context.AfterFunc(ctx, func() {
		log.Debugf("通道 %s 的请求上下文结束: %v", c.id, ctx.Err())
		c.sink.fail(ctx.Err())
		upstream.Close()
	})
	go c.run(ctx, status, upstream)
	return body
}

// run 读取上游响应体并驱动消费者链
func (c *channel) run(ctx context.Context, status string, upstream io.ReadCloser) {
	head := c.head()
	if err := head.OnStartRequest(c); err != nil {
		if !errors.Is(err, throttle.ErrQueueClosed) {
			log.Debugf("通道 %s 的消费者拒绝开始: %v", c.id, err)
			c.sink.OnStopRequest(c, err)
			upstream.Close()
			return
		}
		// 限速队列已关闭,直接交给默认消费者
		log.Debugf("通道 %s 的限速队列已关闭,不再限速", c.id)
		c.bypass()
		head = c.sink
	}

	c.emit(throttle.ActivityResponseStart, 0, "")
	c.emit(throttle.ActivityResponseHeader, 0, status)

	var (
		total int64
		serr  error
	)
	buf := make([]byte, readChunkSize)
	for {
		n, err := upstream.Read(buf)
		if n > 0 {
			if cerr := head.OnDataAvailable(c, bytes.NewReader(buf[:n]), uint64(total), n); cerr != nil {
				log.Debugf("通道 %s 的消费者在偏移 %d 处失败: %v", c.id, total, cerr)
				serr = cerr
				break
			}
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			// 上下文结束导致的读取失败不是上游错误
			if ctx.Err() == nil {
				log.Warnf("读取通道 %s 的上游响应体失败: %v", c.id, err)
			}
			serr = err
			break
		}
	}
	upstream.Close()

	head.OnStopRequest(c, serr)
	if serr == nil {
		c.emit(throttle.ActivityResponseComplete, total, "")
		c.emit(throttle.ActivityTransactionClose, 0, "")
	}
}

// bodySink 是通道的默认消费者,在内存中缓冲放行的数据,供调用方读取
type bodySink struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	err    error // 交换结束的状态,成功时为 io.EOF
	failed error // 请求上下文结束的错误,优先于缓冲的数据返回
	closed bool
}

var _ throttle.StreamListener = (*bodySink)(nil)

func newBodySink() *bodySink {
	s := &bodySink{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *bodySink) OnStartRequest(throttle.Request) error {
	return nil
}

func (s *bodySink) OnDataAvailable(_ throttle.Request, r io.Reader, _ uint64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errBodyClosed
	}
	if s.failed != nil {
		return s.failed
	}
	if _, err := io.CopyN(&s.buf, r, int64(count)); err != nil {
		return err
	}
	s.cond.Broadcast()
	return nil
}

func (s *bodySink) OnStopRequest(_ throttle.Request, status error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if status == nil {
		status = io.EOF
	}
	s.err = status
	s.cond.Broadcast()
}

// read 阻塞直到有数据、交换结束或响应体被关闭
func (s *bodySink) read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.buf.Len() == 0 && s.err == nil && s.failed == nil && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return 0, errBodyClosed
	}
	if s.failed != nil {
		return 0, s.failed
	}
	if s.buf.Len() > 0 {
		return s.buf.Read(p)
	}
	return 0, s.err
}

// fail 让读取立即返回 err,丢弃尚未读取的数据
func (s *bodySink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = err
	}
	s.buf.Reset()
	s.cond.Broadcast()
}

func (s *bodySink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buf.Reset()
	s.cond.Broadcast()
}

// throttledBody 是调用方看到的响应体。
// 关闭时同时关闭上游响应体,读取协程随之退出。
type throttledBody struct {
	sink     *bodySink
	upstream io.ReadCloser
	cancel   context.CancelFunc
	stop     func() bool // 取消对请求上下文的监听
	once     sync.Once
}

// Read 实现 io.Reader 接口
func (b *throttledBody) Read(p []byte) (int, error) {
	return b.sink.read(p)
}

// Close 实现 io.Closer 接口
func (b *throttledBody) Close() error {
	var err error
	b.once.Do(func() {
		// 调用方主动关闭,不按上下文结束处理
		b.stop()
		b.cancel()
		b.sink.close()
		err = b.upstream.Close()
	})
	return err
}

// uploadBody 对请求体的读取限速,关闭时关闭原始请求体
type uploadBody struct {
	io.Reader
	orig io.ReadCloser
}

// Close 实现 io.Closer 接口
func (u *uploadBody) Close() error {
	return u.orig.Close()
}
