package metricshelper

import (
	"errors"

	logging "github.com/dep2p/log"
	"github.com/prometheus/client_golang/prometheus"
)

var log = logging.Logger("metricshelper")

// RegisterCollectors 将限速指标的收集器注册到注册器中。
// 同一注册器上重复注册时沿用已有的收集器,其他错误触发 panic。
// 参数:
//   - reg: prometheus.Registerer 注册器,为 nil 时使用默认注册器
//   - collectors: ...prometheus.Collector 收集器列表
func RegisterCollectors(reg prometheus.Registerer, collectors ...prometheus.Collector) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registered := 0
	for _, c := range collectors {
		err := reg.Register(c)
		if err == nil {
			registered++
			continue
		}
		// 多个管理器共享同一注册器时会重复注册
		if !errors.As(err, &prometheus.AlreadyRegisteredError{}) {
			panic(err)
		}
	}
	log.Debugf("注册了 %d/%d 个指标收集器", registered, len(collectors))
}
