// Package throttle 实现了网络限速层:为每次网络交换缓冲响应数据,
// 并由共享的调度队列按照带宽与延迟模型放行给真实消费者。
//
//   - Listener 拦截一次交换的流回调并缓冲全部数据
//   - Queue 持有速率与延迟模型,决定每轮调度放行多少字节
//   - Manager 根据配置创建下载/上传队列,并为每个新通道安装 Listener
//   - UploadQueue 使用令牌桶限制上传数据
package throttle

import (
	logging "github.com/dep2p/log"
)

// 日志记录器
var log = logging.Logger("net-throttle")
