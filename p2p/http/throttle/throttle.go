// Package throttlehttp 把网络限速层接入 net/http。
//
// Transport 是一个 http.RoundTripper,它为每个请求创建一个通道,
// 由限速管理器在通道上安装下载限速监听器与上传限速队列。
// NewReverseProxy 使用该 Transport 构造限速反向代理。
package throttlehttp

import (
	logging "github.com/dep2p/log"
)

var log = logging.Logger("http-throttle")
