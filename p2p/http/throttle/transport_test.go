package throttlehttp

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/netthrottle/core/throttle"
	nthrottle "github.com/dep2p/netthrottle/p2p/net/throttle"
)

// newBlobServer 返回一个按 size 参数返回随机数据的测试服务器
func newBlobServer(t *testing.T) (*httptest.Server, func(n int) []byte) {
	t.Helper()
	var mu sync.Mutex
	blobs := map[int][]byte{}
	blob := func(n int) []byte {
		mu.Lock()
		defer mu.Unlock()
		if b, ok := blobs[n]; ok {
			return b
		}
		b := make([]byte, n)
		_, _ = rand.Read(b)
		blobs[n] = b
		return b
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/blob", func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("size"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(n))
		w.Write(blob(n))
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		n, err := io.Copy(io.Discard, r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		io.WriteString(w, strconv.FormatInt(n, 10))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, blob
}

func get(t *testing.T, client *http.Client, u string) []byte {
	t.Helper()
	resp, err := client.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return body
}

func TestTransportWithoutThrottleData(t *testing.T) {
	srv, blob := newBlobServer(t)
	tr, err := NewTransport(nil)
	require.NoError(t, err)
	defer tr.Close()

	assert.Nil(t, tr.GetThrottleData())
	body := get(t, &http.Client{Transport: tr}, srv.URL+"/blob?size=1000")
	assert.Equal(t, blob(1000), body)
}

func TestTransportDownloadLatency(t *testing.T) {
	srv, blob := newBlobServer(t)
	tr, err := NewTransport(nil, WithThrottleData(nthrottle.ThrottleData{
		LatencyMean:     200 * time.Millisecond,
		LatencyMax:      200 * time.Millisecond,
		DownloadBPSMean: 10_000_000,
		DownloadBPSMax:  10_000_000,
	}))
	require.NoError(t, err)
	defer tr.Close()

	start := time.Now()
	body := get(t, &http.Client{Transport: tr}, srv.URL+"/blob?size=2048")
	assert.Equal(t, blob(2048), body)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestTransportDownloadBandwidth(t *testing.T) {
	srv, blob := newBlobServer(t)
	tr, err := NewTransport(nil, WithThrottleData(nthrottle.ThrottleData{
		DownloadBPSMean: 50_000,
		DownloadBPSMax:  50_000,
	}))
	require.NoError(t, err)
	defer tr.Close()

	start := time.Now()
	body := get(t, &http.Client{Transport: tr}, srv.URL+"/blob?size=100000")
	assert.Equal(t, blob(100_000), body)
	// 第一个窗口只能放行 50000 字节
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestTransportSharesQueueAcrossRequests(t *testing.T) {
	srv, blob := newBlobServer(t)
	tr, err := NewTransport(nil, WithThrottleData(nthrottle.ThrottleData{
		DownloadBPSMean: 100_000,
		DownloadBPSMax:  100_000,
	}))
	require.NoError(t, err)
	defer tr.Close()
	client := &http.Client{Transport: tr}

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			resp, err := client.Get(srv.URL + "/blob?size=50000")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if !bytes.Equal(blob(50_000), body) {
				return io.ErrUnexpectedEOF
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestTransportIgnoreFunc(t *testing.T) {
	srv, blob := newBlobServer(t)
	tr, err := NewTransport(nil,
		WithThrottleData(nthrottle.ThrottleData{
			LatencyMean: 2 * time.Second, LatencyMax: 2 * time.Second,
			DownloadBPSMean: 10, DownloadBPSMax: 10,
		}),
		WithIgnoreFunc(func(r *http.Request) bool { return r.URL.Path == "/blob" }),
	)
	require.NoError(t, err)
	defer tr.Close()

	start := time.Now()
	body := get(t, &http.Client{Transport: tr}, srv.URL+"/blob?size=5000")
	assert.Equal(t, blob(5000), body)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTransportUploadThrottle(t *testing.T) {
	srv, _ := newBlobServer(t)
	tr, err := NewTransport(nil, WithThrottleData(nthrottle.ThrottleData{
		UploadBPSMean: 10_000,
		UploadBPSMax:  10_000,
	}))
	require.NoError(t, err)
	defer tr.Close()

	start := time.Now()
	resp, err := (&http.Client{Transport: tr}).Post(srv.URL+"/upload", "application/octet-stream",
		bytes.NewReader(make([]byte, 5000)))
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "5000", string(out))
	// 令牌桶初始为空,5000 字节至少需要 0.5 秒
	assert.GreaterOrEqual(t, time.Since(start), 450*time.Millisecond)
}

func TestTransportSetThrottleData(t *testing.T) {
	srv, blob := newBlobServer(t)
	tr, err := NewTransport(nil)
	require.NoError(t, err)
	defer tr.Close()

	err = tr.SetThrottleData(&nthrottle.ThrottleData{DownloadBPSMean: 20, DownloadBPSMax: 10})
	require.ErrorIs(t, err, throttle.ErrInvalidBandwidth)
	assert.Nil(t, tr.GetThrottleData())

	data := &nthrottle.ThrottleData{
		LatencyMean: 100 * time.Millisecond, LatencyMax: 100 * time.Millisecond,
		DownloadBPSMean: 1_000_000, DownloadBPSMax: 1_000_000,
	}
	require.NoError(t, tr.SetThrottleData(data))
	data.LatencyMean = 0
	got := tr.GetThrottleData()
	require.NotNil(t, got)
	assert.Equal(t, 100*time.Millisecond, got.LatencyMean)

	client := &http.Client{Transport: tr}
	start := time.Now()
	assert.Equal(t, blob(100), get(t, client, srv.URL+"/blob?size=100"))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, tr.SetThrottleData(nil))
	assert.Nil(t, tr.GetThrottleData())
	assert.Equal(t, blob(100), get(t, client, srv.URL+"/blob?size=100"))
}

func TestTransportActivityEvents(t *testing.T) {
	srv, _ := newBlobServer(t)

	var mu sync.Mutex
	var events []throttle.ActivityEvent
	tr, err := NewTransport(nil,
		WithThrottleData(nthrottle.ThrottleData{
			LatencyMean: 50 * time.Millisecond, LatencyMax: 50 * time.Millisecond,
			DownloadBPSMean: 1_000_000, DownloadBPSMax: 1_000_000,
		}),
		WithActivityCallback(func(ev throttle.ActivityEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		}),
	)
	require.NoError(t, err)
	defer tr.Close()

	body := get(t, &http.Client{Transport: tr}, srv.URL+"/blob?size=4096")
	require.Len(t, body, 4096)

	subtypes := func() []throttle.ActivitySubtype {
		mu.Lock()
		defer mu.Unlock()
		out := make([]throttle.ActivitySubtype, 0, len(events))
		for _, ev := range events {
			out = append(out, ev.Subtype)
		}
		return out
	}
	require.Eventually(t, func() bool { return len(subtypes()) == 6 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []throttle.ActivitySubtype{
		throttle.ActivityRequestHeader,
		throttle.ActivityRequestBodySent,
		throttle.ActivityResponseStart,
		throttle.ActivityResponseHeader,
		throttle.ActivityResponseComplete,
		throttle.ActivityTransactionClose,
	}, subtypes())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(4096), events[4].ExtraSize)
	assert.Contains(t, events[3].ExtraString, "200")
	assert.Equal(t, throttle.ActivityTypeHTTPTransaction, events[0].Type)
}

func TestTransportBodyClose(t *testing.T) {
	srv, _ := newBlobServer(t)
	tr, err := NewTransport(nil, WithThrottleData(nthrottle.ThrottleData{
		DownloadBPSMean: 1000,
		DownloadBPSMax:  1000,
	}))
	require.NoError(t, err)
	defer tr.Close()

	resp, err := (&http.Client{Transport: tr}).Get(srv.URL + "/blob?size=100000")
	require.NoError(t, err)

	buf := make([]byte, 10)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	_, err = resp.Body.Read(buf)
	require.ErrorIs(t, err, errBodyClosed)
}

func TestTransportContextCancel(t *testing.T) {
	srv, _ := newBlobServer(t)
	tr, err := NewTransport(nil, WithThrottleData(nthrottle.ThrottleData{
		LatencyMean: 5 * time.Second, LatencyMax: 5 * time.Second,
		DownloadBPSMean: 1000, DownloadBPSMax: 1000,
	}))
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/blob?size=10", nil)
	require.NoError(t, err)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		io.ReadAll(resp.Body)
	}()
	cancel()
	resp.Body.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("关闭响应体后读取没有返回")
	}
}

func TestReverseProxy(t *testing.T) {
	srv, blob := newBlobServer(t)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	tr, err := NewTransport(nil, WithThrottleData(nthrottle.ThrottleData{
		LatencyMean: 100 * time.Millisecond, LatencyMax: 100 * time.Millisecond,
		DownloadBPSMean: 1_000_000, DownloadBPSMax: 1_000_000,
	}))
	require.NoError(t, err)
	defer tr.Close()

	proxy := httptest.NewServer(NewReverseProxy(target, tr))
	defer proxy.Close()

	start := time.Now()
	body := get(t, http.DefaultClient, proxy.URL+"/blob?size=3000")
	assert.Equal(t, blob(3000), body)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

// readAllAsync 在后台读取响应体,返回读取结果的通道
func readAllAsync(body io.Reader) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(body)
		done <- err
	}()
	return done
}

func TestTransportContextCancelUnblocksRead(t *testing.T) {
	srv, _ := newBlobServer(t)
	tr, err := NewTransport(nil, WithThrottleData(nthrottle.ThrottleData{
		LatencyMean: 5 * time.Second, LatencyMax: 5 * time.Second,
		DownloadBPSMean: 1000, DownloadBPSMax: 1000,
	}))
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/blob?size=10", nil)
	require.NoError(t, err)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	done := readAllAsync(resp.Body)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("取消请求上下文后读取没有返回")
	}
}

func TestTransportClientTimeout(t *testing.T) {
	srv, _ := newBlobServer(t)
	tr, err := NewTransport(nil, WithThrottleData(nthrottle.ThrottleData{
		DownloadBPSMean: 10,
		DownloadBPSMax:  10,
	}))
	require.NoError(t, err)
	defer tr.Close()

	client := &http.Client{Transport: tr, Timeout: 200 * time.Millisecond}
	resp, err := client.Get(srv.URL + "/blob?size=1000")
	require.NoError(t, err)
	defer resp.Body.Close()

	select {
	case err := <-readAllAsync(resp.Body):
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("客户端超时没有中断限速的读取")
	}
}

func TestTransportCloseStopsReaders(t *testing.T) {
	srv, _ := newBlobServer(t)
	tr, err := NewTransport(nil, WithThrottleData(nthrottle.ThrottleData{
		DownloadBPSMean: 10,
		DownloadBPSMax:  10,
	}))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/blob?size=1000", nil)
	require.NoError(t, err)
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// 第一个窗口放行后监听器已经进入队列
	buf := make([]byte, 5)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)

	done := readAllAsync(resp.Body)
	require.NoError(t, tr.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, throttle.ErrQueueClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("关闭 Transport 后读取没有返回")
	}

	// 关闭后新的请求不再限速
	start := time.Now()
	body := get(t, &http.Client{Transport: tr}, srv.URL+"/blob?size=1000")
	assert.Len(t, body, 1000)
	assert.Less(t, time.Since(start), time.Second)
}
