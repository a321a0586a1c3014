package throttle

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/netthrottle/core/throttle"
)

// ThrottleData 描述一组相关网络请求的限速配置
type ThrottleData struct {
	LatencyMean     time.Duration // 平均延迟
	LatencyMax      time.Duration // 最大延迟
	DownloadBPSMean int64         // 下载平均每秒字节数
	DownloadBPSMax  int64         // 下载最大每秒字节数
	UploadBPSMean   int64         // 上传平均每秒字节数
	UploadBPSMax    int64         // 上传最大每秒字节数
}

// DownloadEnabled 判断是否需要对下载限速,平均值与最大值都不大于0时不限速
func (d ThrottleData) DownloadEnabled() bool {
	return !(d.DownloadBPSMax <= 0 && d.DownloadBPSMean <= 0)
}

// UploadEnabled 判断是否需要对上传限速,平均值与最大值都不大于0时不限速
func (d ThrottleData) UploadEnabled() bool {
	return !(d.UploadBPSMax <= 0 && d.UploadBPSMean <= 0)
}

// Validate 检查配置是否有效
// 返回值:
//   - error: 延迟为负、启用方向的带宽为负或平均值大于最大值时返回错误
func (d ThrottleData) Validate() error {
	if d.LatencyMean < 0 || d.LatencyMax < 0 {
		return fmt.Errorf("%w: 延迟不能为负值", throttle.ErrInvalidLatency)
	}
	if d.LatencyMean > d.LatencyMax {
		return fmt.Errorf("%w: 平均延迟 %s 大于最大延迟 %s", throttle.ErrInvalidLatency, d.LatencyMean, d.LatencyMax)
	}
	if d.DownloadEnabled() {
		if err := validateBandwidth(d.DownloadBPSMean, d.DownloadBPSMax); err != nil {
			return fmt.Errorf("下载: %w", err)
		}
	}
	if d.UploadEnabled() {
		if err := validateBandwidth(d.UploadBPSMean, d.UploadBPSMax); err != nil {
			return fmt.Errorf("上传: %w", err)
		}
	}
	return nil
}

// validateBandwidth 检查一个方向的带宽配置
func validateBandwidth(mean, max int64) error {
	if mean < 0 || max < 0 {
		return fmt.Errorf("%w: 带宽不能为负值", throttle.ErrInvalidBandwidth)
	}
	if mean > max {
		return fmt.Errorf("%w: 平均带宽 %d 大于最大带宽 %d", throttle.ErrInvalidBandwidth, mean, max)
	}
	return nil
}

// Manager 根据配置创建下载队列和上传队列,并为每个新通道安装限速监听器
type Manager struct {
	data     ThrottleData
	download *Queue
	upload   *UploadQueue
}

// NewManager 创建一个新的限速管理器。
// 下载方向的平均与最大带宽都不大于0时不限速下载,上传方向同理。
// 参数:
//   - data: ThrottleData 限速配置
//   - opts: ...Option 配置选项
//
// 返回值:
//   - *Manager: 新创建的管理器
//   - error: 配置无效时返回错误
func NewManager(data ThrottleData, opts ...Option) (*Manager, error) {
	if err := data.Validate(); err != nil {
		log.Errorf("限速配置无效: %v", err)
		return nil, err
	}

	m := &Manager{data: data}
	if data.DownloadEnabled() {
		qopts := append([]Option{WithName("download")}, opts...)
		q, err := NewQueue(data.DownloadBPSMean, data.DownloadBPSMax, data.LatencyMean, data.LatencyMax, qopts...)
		if err != nil {
			log.Errorf("创建下载队列失败: %v", err)
			return nil, err
		}
		m.download = q
	}
	if data.UploadEnabled() {
		q, err := NewUploadQueue(data.UploadBPSMean, data.UploadBPSMax, opts...)
		if err != nil {
			log.Errorf("创建上传队列失败: %v", err)
			// 已创建的下载队列随之关闭
			if m.download != nil {
				err = multierr.Append(err, m.download.Close())
			}
			return nil, err
		}
		m.upload = q
	}

	log.Debugf("创建限速管理器: 下载=%t 上传=%t 延迟=%s/%s",
		m.download != nil, m.upload != nil, data.LatencyMean, data.LatencyMax)
	return m, nil
}

// ThrottleData 返回管理器使用的限速配置
func (m *Manager) ThrottleData() ThrottleData {
	return m.data
}

// DownloadQueue 返回下载队列,不限速下载时为 nil
func (m *Manager) DownloadQueue() *Queue {
	return m.download
}

// UploadQueue 返回上传队列,不限速上传时为 nil
func (m *Manager) UploadQueue() *UploadQueue {
	return m.upload
}

// Manage 为通道创建新的限速监听器并将其安装为通道的直接消费者
// 参数:
//   - ch: throttle.Channel 要管理的通道
//
// 返回值:
//   - *Listener: 新的监听器,不限速下载时为 nil
func (m *Manager) Manage(ch throttle.Channel) *Listener {
	if m.download == nil {
		return nil
	}
	l := NewListener(m.download)
	original := ch.SetNewListener(l)
	l.SetOriginalListener(original)
	return l
}

// ManageUpload 对通道上的上传数据限速
// 参数:
//   - ch: throttle.ThrottledInputChannel 要管理的通道
func (m *Manager) ManageUpload(ch throttle.ThrottledInputChannel) {
	if m.upload == nil {
		return
	}
	ch.SetThrottleQueue(m.upload)
}

// Close 关闭下载队列,停止所有定时器
// 返回值:
//   - error: 关闭过程中的错误
func (m *Manager) Close() error {
	var err error
	if m.download != nil {
		err = multierr.Append(err, m.download.Close())
	}
	if m.upload != nil {
		err = multierr.Append(err, m.upload.Close())
	}
	return err
}
