package metricshelper

import "github.com/dep2p/netthrottle/core/throttle"

// DirDownload 是下载队列的默认标签
const DirDownload = "download"

// GetSubtype 获取活动子类型的标签值
// 参数:
//   - s: throttle.ActivitySubtype 活动子类型
//
// 返回值:
//   - string: 标签值,无法识别时为"unknown"
func GetSubtype(s throttle.ActivitySubtype) string {
	return s.String()
}

// GetQueueName 获取队列名称的标签值,空名称按下载方向处理
// 参数:
//   - name: string 队列名称
//
// 返回值:
//   - string: 标签值
func GetQueueName(name string) string {
	if name == "" {
		return DirDownload
	}
	return name
}
