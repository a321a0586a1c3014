package throttle

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/netthrottle/core/throttle"
)

// testRequest 是测试用的请求
type testRequest string

func (r testRequest) ID() string { return string(r) }

// fixedRand 返回始终给出 v 的随机数来源
func fixedRand(v float64) RandSource {
	return func() float64 { return v }
}

// delivery 记录一次数据转发
type delivery struct {
	offset uint64
	count  int
	at     time.Time
}

// recordingListener 记录收到的所有回调
type recordingListener struct {
	clock clock.Clock

	mu         sync.Mutex
	started    int
	data       []byte
	deliveries []delivery
	stopped    int
	status     error
}

func newRecordingListener(c clock.Clock) *recordingListener {
	return &recordingListener{clock: c}
}

func (r *recordingListener) OnStartRequest(req throttle.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return nil
}

func (r *recordingListener) OnDataAvailable(req throttle.Request, src io.Reader, offset uint64, count int) error {
	buf := make([]byte, count)
	if _, err := io.ReadFull(src, buf); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, buf...)
	r.deliveries = append(r.deliveries, delivery{offset: offset, count: count, at: r.clock.Now()})
	return nil
}

func (r *recordingListener) OnStopRequest(req throttle.Request, status error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	r.status = status
}

func (r *recordingListener) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *recordingListener) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *recordingListener) snapshot() ([]byte, []delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data...), append([]delivery(nil), r.deliveries...)
}

// requireContiguous 检查转发的偏移量严格递增且没有空洞
func requireContiguous(t *testing.T, ds []delivery) {
	t.Helper()
	var next uint64
	for i, d := range ds {
		require.Equalf(t, next, d.offset, "第 %d 次转发的偏移量不连续", i)
		next += uint64(d.count)
	}
}

// payload 生成长度为 n 的测试数据
func payload(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

// newHeldListener 创建一个停留在延迟等待阶段的监听器,便于直接调用 SendSomeData
func newHeldListener(t *testing.T, original throttle.StreamListener) (*Listener, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	q, err := NewQueue(1_000_000, 1_000_000, time.Hour, time.Hour, WithClock(mock), WithRandSource(fixedRand(0.5)))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	l := NewListener(q)
	l.SetOriginalListener(original)
	return l, mock
}
