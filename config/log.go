package config

import (
	"sync"

	logging "github.com/dep2p/log"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"
)

// log 是用于限速配置的日志记录器
var log = logging.Logger("throttle-config")

var (
	// fxLogger 是 fx 框架的日志记录器
	fxLogger fxevent.Logger
	// logInitOnce 确保日志记录器只初始化一次
	logInitOnce sync.Once
)

// getFXLogger 返回 fx 框架使用的日志记录器,fx 事件以 Debug 级别写入配置日志记录器
// 返回:
//   - fxevent.Logger: fx 日志记录器实例
func getFXLogger() fxevent.Logger {
	logInitOnce.Do(func() {
		zl := &fxevent.ZapLogger{Logger: log.Desugar()}
		zl.UseLogLevel(zapcore.DebugLevel)
		fxLogger = zl
	})
	return fxLogger
}
