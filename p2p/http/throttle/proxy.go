package throttlehttp

import (
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"
)

// NewReverseProxy 创建一个把请求转发到 target 的限速反向代理
// 参数:
//   - target: *url.URL 上游地址
//   - t: *Transport 限速 Transport
//
// 返回值:
//   - *httputil.ReverseProxy: 反向代理
func NewReverseProxy(target *url.URL, t *Transport) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = t
	proxy.ErrorLog = zap.NewStdLog(log.Desugar())
	return proxy
}
