package config

import (
	"context"

	"go.uber.org/fx"

	nthrottle "github.com/dep2p/netthrottle/p2p/net/throttle"
)

// Manager 封装了限速管理器和 fx 应用程序
type Manager struct {
	*fx.App            // fx 应用程序实例
	*nthrottle.Manager // 限速管理器实例
}

// Close 停止应用程序,限速管理器随之关闭
// 返回:
//   - error: 关闭过程中的错误,如果成功则返回 nil
func (m *Manager) Close() error {
	return m.App.Stop(context.Background())
}
