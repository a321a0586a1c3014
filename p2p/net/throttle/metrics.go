package throttle

import (
	"time"

	"github.com/dep2p/netthrottle/core/throttle"
	"github.com/dep2p/netthrottle/p2p/metricshelper"

	"github.com/prometheus/client_golang/prometheus"
)

// 定义指标命名空间
const metricNamespace = "netthrottle"

var (
	// 已放行的字节总数
	bytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "bytes_sent_total",
			Help:      "限速队列放行给消费者的字节总数",
		},
		[]string{"queue"},
	)

	// 调度轮次计数
	pumpRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "pump_runs_total",
			Help:      "限速队列调度轮次总数",
		},
		[]string{"queue", "result"},
	)

	// 就绪队列长度
	readyQueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "ready_queue_length",
			Help:      "等待放行数据的监听器条目数",
		},
		[]string{"queue"},
	)

	// 处于延迟等待阶段的监听器数量
	pendingListeners = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "pending_listeners",
			Help:      "处于模拟延迟等待阶段的监听器数量",
		},
		[]string{"queue"},
	)

	// 采样得到的延迟分布
	sampledLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "sampled_latency_seconds",
			Help:      "为监听器采样的模拟延迟",
			Buckets:   []float64{0, 0.005, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
		},
		[]string{"queue"},
	)

	// 消费者错误计数
	consumerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "consumer_errors_total",
			Help:      "转发数据时消费者返回的错误总数",
		},
		[]string{"queue"},
	)

	// 延迟发出的活动事件计数
	activitiesDeferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "activities_deferred_total",
			Help:      "被限速监听器延迟发出的活动事件总数",
		},
		[]string{"subtype"},
	)

	// 上传等待时间分布
	uploadWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "upload_wait_seconds",
			Help:      "上传数据因限速而等待的时间",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	// 收集器列表
	collectors = []prometheus.Collector{
		bytesSent,
		pumpRuns,
		readyQueueLength,
		pendingListeners,
		sampledLatency,
		consumerErrors,
		activitiesDeferred,
		uploadWait,
	}
)

// MetricsTracer 定义限速子系统的指标跟踪接口
type MetricsTracer interface {
	// BytesSent 统计队列放行的字节数
	BytesSent(queue string, n int64)

	// PumpRun 统计一次调度轮次,exhausted 表示本窗口预算已耗尽
	PumpRun(queue string, exhausted bool)

	// ReadyQueueLength 设置就绪队列长度
	ReadyQueueLength(queue string, n int)

	// ListenerStarted 记录监听器进入延迟等待阶段
	ListenerStarted(queue string, latency time.Duration)

	// ListenerReady 记录监听器结束延迟等待阶段
	ListenerReady(queue string)

	// ListenersDropped 记录队列关闭时仍在延迟等待阶段的监听器
	ListenersDropped(queue string, n int)

	// ConsumerError 统计消费者错误
	ConsumerError(queue string)

	// ActivityDeferred 统计被延迟发出的活动事件
	ActivityDeferred(subtype throttle.ActivitySubtype)

	// UploadWait 记录上传等待时间
	UploadWait(d time.Duration)
}

// metricsTracer 实现 MetricsTracer 接口
type metricsTracer struct{}

// 确保 metricsTracer 实现了 MetricsTracer 接口
var _ MetricsTracer = &metricsTracer{}

// metricsTracerSetting 定义指标跟踪器配置
type metricsTracerSetting struct {
	reg prometheus.Registerer // 指标注册器
}

// MetricsTracerOption 定义配置选项函数类型
type MetricsTracerOption func(*metricsTracerSetting)

// WithRegisterer 设置指标注册器选项
// 参数:
//   - reg: prometheus.Registerer 指标注册器
//
// 返回:
//   - MetricsTracerOption 配置选项函数
func WithRegisterer(reg prometheus.Registerer) MetricsTracerOption {
	return func(s *metricsTracerSetting) {
		if reg != nil {
			s.reg = reg
		}
	}
}

// NewMetricsTracer 创建新的指标跟踪器
// 参数:
//   - opts: ...MetricsTracerOption 配置选项
//
// 返回:
//   - MetricsTracer 指标跟踪器实例
func NewMetricsTracer(opts ...MetricsTracerOption) MetricsTracer {
	setting := &metricsTracerSetting{reg: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(setting)
	}
	metricshelper.RegisterCollectors(setting.reg, collectors...)
	return &metricsTracer{}
}

// withQueue 使用队列名称标签调用 fn
func withQueue(queue string, fn func(tags []string)) {
	tags := metricshelper.GetLabels(metricshelper.GetQueueName(queue))
	defer metricshelper.PutStringSlice(tags)
	fn(*tags)
}

// BytesSent 实现 MetricsTracer 接口
func (m *metricsTracer) BytesSent(queue string, n int64) {
	withQueue(queue, func(tags []string) {
		bytesSent.WithLabelValues(tags...).Add(float64(n))
	})
}

// PumpRun 实现 MetricsTracer 接口
func (m *metricsTracer) PumpRun(queue string, exhausted bool) {
	result := "sent"
	if exhausted {
		result = "exhausted"
	}
	tags := metricshelper.GetLabels(metricshelper.GetQueueName(queue), result)
	defer metricshelper.PutStringSlice(tags)
	pumpRuns.WithLabelValues(*tags...).Inc()
}

// ReadyQueueLength 实现 MetricsTracer 接口
func (m *metricsTracer) ReadyQueueLength(queue string, n int) {
	withQueue(queue, func(tags []string) {
		readyQueueLength.WithLabelValues(tags...).Set(float64(n))
	})
}

// ListenerStarted 实现 MetricsTracer 接口
func (m *metricsTracer) ListenerStarted(queue string, latency time.Duration) {
	withQueue(queue, func(tags []string) {
		pendingListeners.WithLabelValues(tags...).Inc()
		if latency < 0 {
			latency = 0
		}
		sampledLatency.WithLabelValues(tags...).Observe(latency.Seconds())
	})
}

// ListenerReady 实现 MetricsTracer 接口
func (m *metricsTracer) ListenerReady(queue string) {
	withQueue(queue, func(tags []string) {
		pendingListeners.WithLabelValues(tags...).Dec()
	})
}

// ListenersDropped 实现 MetricsTracer 接口
func (m *metricsTracer) ListenersDropped(queue string, n int) {
	withQueue(queue, func(tags []string) {
		pendingListeners.WithLabelValues(tags...).Sub(float64(n))
	})
}

// ConsumerError 实现 MetricsTracer 接口
func (m *metricsTracer) ConsumerError(queue string) {
	withQueue(queue, func(tags []string) {
		consumerErrors.WithLabelValues(tags...).Inc()
	})
}

// ActivityDeferred 实现 MetricsTracer 接口
func (m *metricsTracer) ActivityDeferred(subtype throttle.ActivitySubtype) {
	activitiesDeferred.WithLabelValues(metricshelper.GetSubtype(subtype)).Inc()
}

// UploadWait 实现 MetricsTracer 接口
func (m *metricsTracer) UploadWait(d time.Duration) {
	uploadWait.Observe(d.Seconds())
}
