// Package mockthrottle 是一个由 GoMock 生成的包
package mockthrottle

import (
	io "io"
	reflect "reflect"

	throttle "github.com/dep2p/netthrottle/core/throttle"
	gomock "go.uber.org/mock/gomock"
)

// MockStreamListener 是 StreamListener 接口的 mock 实现
type MockStreamListener struct {
	// ctrl 是 gomock 控制器
	ctrl *gomock.Controller
	// recorder 用于记录方法调用
	recorder *MockStreamListenerMockRecorder
	// isgomock 标识这是一个 mock 对象
	isgomock struct{}
}

// MockStreamListenerMockRecorder 是 MockStreamListener 的记录器
type MockStreamListenerMockRecorder struct {
	// mock 指向对应的 MockStreamListener 实例
	mock *MockStreamListener
}

// NewMockStreamListener 创建一个新的 mock 实例
// 参数:
//   - ctrl: gomock 控制器
//
// 返回:
//   - *MockStreamListener: 新创建的 mock 实例
func NewMockStreamListener(ctrl *gomock.Controller) *MockStreamListener {
	mock := &MockStreamListener{ctrl: ctrl}
	mock.recorder = &MockStreamListenerMockRecorder{mock}
	return mock
}

// EXPECT 返回一个用于设置期望的对象
func (m *MockStreamListener) EXPECT() *MockStreamListenerMockRecorder {
	return m.recorder
}

// OnDataAvailable mock 实现数据可用回调
func (m *MockStreamListener) OnDataAvailable(req throttle.Request, r io.Reader, offset uint64, count int) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "OnDataAvailable", req, r, offset, count)
	ret0, _ := ret[0].(error)
	return ret0
}

// OnDataAvailable 表示对 OnDataAvailable 方法的预期调用
func (mr *MockStreamListenerMockRecorder) OnDataAvailable(req, r, offset, count any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "OnDataAvailable", reflect.TypeOf((*MockStreamListener)(nil).OnDataAvailable), req, r, offset, count)
}

// OnStartRequest mock 实现请求开始回调
func (m *MockStreamListener) OnStartRequest(req throttle.Request) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "OnStartRequest", req)
	ret0, _ := ret[0].(error)
	return ret0
}

// OnStartRequest 表示对 OnStartRequest 方法的预期调用
func (mr *MockStreamListenerMockRecorder) OnStartRequest(req any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "OnStartRequest", reflect.TypeOf((*MockStreamListener)(nil).OnStartRequest), req)
}

// OnStopRequest mock 实现请求结束回调
func (m *MockStreamListener) OnStopRequest(req throttle.Request, status error) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "OnStopRequest", req, status)
}

// OnStopRequest 表示对 OnStopRequest 方法的预期调用
func (mr *MockStreamListenerMockRecorder) OnStopRequest(req, status any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "OnStopRequest", reflect.TypeOf((*MockStreamListener)(nil).OnStopRequest), req, status)
}
