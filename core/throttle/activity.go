package throttle

import "time"

// ActivityType 是活动事件的大类
type ActivityType int

const (
	// ActivityTypeSocketTransport 套接字传输层活动
	ActivityTypeSocketTransport ActivityType = iota + 1
	// ActivityTypeHTTPTransaction HTTP 事务活动
	ActivityTypeHTTPTransaction
)

// ActivitySubtype 是活动事件的具体类型
type ActivitySubtype int

const (
	// ActivityRequestHeader 请求头已发送
	ActivityRequestHeader ActivitySubtype = iota + 0x5001
	// ActivityRequestBodySent 请求体已发送
	ActivityRequestBodySent
	// ActivityResponseStart 响应开始
	ActivityResponseStart
	// ActivityResponseHeader 响应头已接收
	ActivityResponseHeader
	// ActivityResponseComplete 响应接收完成
	ActivityResponseComplete
	// ActivityTransactionClose 事务关闭
	ActivityTransactionClose
)

// String 返回活动子类型的名称
func (s ActivitySubtype) String() string {
	switch s {
	case ActivityRequestHeader:
		return "request-header"
	case ActivityRequestBodySent:
		return "request-body-sent"
	case ActivityResponseStart:
		return "response-start"
	case ActivityResponseHeader:
		return "response-header"
	case ActivityResponseComplete:
		return "response-complete"
	case ActivityTransactionClose:
		return "transaction-close"
	default:
		return "unknown"
	}
}

// DownloadActivities 是限速下载时需要延迟上报的活动子类型
var DownloadActivities = []ActivitySubtype{
	ActivityResponseStart,
	ActivityResponseHeader,
	ActivityResponseComplete,
	ActivityTransactionClose,
}

// IsDownloadActivity 判断活动子类型是否属于下载活动
func IsDownloadActivity(s ActivitySubtype) bool {
	for _, a := range DownloadActivities {
		if a == s {
			return true
		}
	}
	return false
}

// ActivityEvent 描述一次底层传输进度事件
type ActivityEvent struct {
	HTTPActivity any             // 上层的活动对象
	Channel      any             // 产生事件的通道
	Type         ActivityType    // 活动大类
	Subtype      ActivitySubtype // 活动子类型
	Timestamp    time.Time       // 事件时间
	ExtraSize    int64           // 附加的大小信息,响应完成时为总字节数
	ExtraString  string          // 附加的字符串信息,例如响应头
}

// ActivityCallback 接收活动事件
type ActivityCallback func(ev ActivityEvent)
