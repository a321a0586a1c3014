package throttlehttp

import (
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/netthrottle/core/throttle"
	nthrottle "github.com/dep2p/netthrottle/p2p/net/throttle"
)

// Transport 是对下载与上传限速的 http.RoundTripper
type Transport struct {
	base        http.RoundTripper
	clock       clock.Clock
	managerOpts []nthrottle.Option
	ignore      func(*http.Request) bool
	activity    throttle.ActivityCallback

	mu      sync.Mutex
	data    *nthrottle.ThrottleData
	manager *nthrottle.Manager
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport 创建一个新的限速 Transport
// 参数:
//   - base: http.RoundTripper 实际发出请求的 RoundTripper,为 nil 时使用 http.DefaultTransport
//   - opts: ...TransportOption 配置选项
//
// 返回值:
//   - *Transport: 新创建的 Transport
//   - error: 配置错误
func NewTransport(base http.RoundTripper, opts ...TransportOption) (*Transport, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{
		base:  base,
		clock: clock.New(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			log.Errorf("应用 Transport 配置选项失败: %v", err)
			return nil, err
		}
	}
	return t, nil
}

// SetThrottleData 替换限速配置。现有的管理器被丢弃,下一个请求时按新配置重新创建。
// 进行中的请求继续使用旧的管理器直到结束。
// 参数:
//   - data: *nthrottle.ThrottleData 新的限速配置,为 nil 时关闭限速
//
// 返回值:
//   - error: 配置无效时返回错误
func (t *Transport) SetThrottleData(data *nthrottle.ThrottleData) error {
	if data != nil {
		if err := data.Validate(); err != nil {
			log.Errorf("限速配置无效: %v", err)
			return err
		}
		d := *data
		data = &d
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = data
	t.manager = nil
	return nil
}

// GetThrottleData 返回当前的限速配置,未限速时为 nil
func (t *Transport) GetThrottleData() *nthrottle.ThrottleData {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data == nil {
		return nil
	}
	d := *t.data
	return &d
}

// getManager 返回限速管理器,第一次调用时按当前配置创建
func (t *Transport) getManager() (*nthrottle.Manager, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data == nil {
		return nil, nil
	}
	if t.manager == nil {
		m, err := nthrottle.NewManager(*t.data, t.managerOpts...)
		if err != nil {
			log.Errorf("创建限速管理器失败: %v", err)
			return nil, err
		}
		t.manager = m
	}
	return t.manager, nil
}

// RoundTrip 实现 http.RoundTripper 接口
// 参数:
//   - req: *http.Request HTTP 请求
//
// 返回值:
//   - *http.Response: 响应体经过限速的 HTTP 响应
//   - error: 错误信息
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.ignore != nil && t.ignore(req) {
		return t.base.RoundTrip(req)
	}
	m, err := t.getManager()
	if err != nil {
		return nil, err
	}
	if m == nil {
		return t.base.RoundTrip(req)
	}

	ch := newChannel(req, t.clock, t.activity)
	m.ManageUpload(ch)
	if q := ch.uploadQueue(); q != nil && req.Body != nil && req.Body != http.NoBody {
		orig := req.Body
		req = req.Clone(req.Context())
		req.Body = &uploadBody{Reader: q.WrapReader(req.Context(), orig), orig: orig}
		ch.req = req
	}

	ch.emit(throttle.ActivityRequestHeader, 0, "")
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		log.Debugf("通道 %s 的请求失败: %v", ch.ID(), err)
		return nil, err
	}
	ch.emit(throttle.ActivityRequestBodySent, 0, "")

	if m.Manage(ch) == nil {
		return resp, nil
	}
	log.Debugf("通道 %s 的响应进入下载限速: %s", ch.ID(), req.URL)
	resp.Body = ch.start(resp)
	return resp, nil
}

// CloseIdleConnections 关闭底层 RoundTripper 的空闲连接
func (t *Transport) CloseIdleConnections() {
	type closeIdler interface {
		CloseIdleConnections()
	}
	if ci, ok := t.base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

// Close 关闭当前的限速管理器,进行中的限速响应不再放行数据
// 返回值:
//   - error: 关闭过程中的错误
func (t *Transport) Close() error {
	t.mu.Lock()
	m := t.manager
	t.manager = nil
	t.data = nil
	t.mu.Unlock()

	if m == nil {
		return nil
	}
	return m.Close()
}
