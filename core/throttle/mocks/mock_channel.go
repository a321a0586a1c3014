// Package mockthrottle 是一个由 GoMock 生成的包
package mockthrottle

import (
	reflect "reflect"

	throttle "github.com/dep2p/netthrottle/core/throttle"
	gomock "go.uber.org/mock/gomock"
)

// MockChannel 是 Channel 接口的 mock 实现
type MockChannel struct {
	// ctrl 是 gomock 控制器
	ctrl *gomock.Controller
	// recorder 用于记录方法调用
	recorder *MockChannelMockRecorder
	// isgomock 标识这是一个 mock 对象
	isgomock struct{}
}

// MockChannelMockRecorder 是 MockChannel 的记录器
type MockChannelMockRecorder struct {
	// mock 指向对应的 MockChannel 实例
	mock *MockChannel
}

// NewMockChannel 创建一个新的 mock 实例
// 参数:
//   - ctrl: gomock 控制器
//
// 返回:
//   - *MockChannel: 新创建的 mock 实例
func NewMockChannel(ctrl *gomock.Controller) *MockChannel {
	mock := &MockChannel{ctrl: ctrl}
	mock.recorder = &MockChannelMockRecorder{mock}
	return mock
}

// EXPECT 返回一个用于设置期望的对象
func (m *MockChannel) EXPECT() *MockChannelMockRecorder {
	return m.recorder
}

// SetNewListener mock 实现替换监听器的方法
func (m *MockChannel) SetNewListener(l throttle.StreamListener) throttle.StreamListener {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SetNewListener", l)
	ret0, _ := ret[0].(throttle.StreamListener)
	return ret0
}

// SetNewListener 表示对 SetNewListener 方法的预期调用
func (mr *MockChannelMockRecorder) SetNewListener(l any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetNewListener", reflect.TypeOf((*MockChannel)(nil).SetNewListener), l)
}
