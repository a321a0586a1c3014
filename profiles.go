package netthrottle

import (
	"fmt"
	"sort"
	"time"

	"github.com/dep2p/netthrottle/core/throttle"
	nthrottle "github.com/dep2p/netthrottle/p2p/net/throttle"
)

const (
	kbps = 1024 / 8        // 每 Kbps 对应的字节数
	mbps = 1024 * 1024 / 8 // 每 Mbps 对应的字节数
)

// profile 是一个预设的网络环境
type profile struct {
	download int64
	upload   int64
	latency  time.Duration
}

// 预设的网络环境,平均值与最大值相同
var profiles = map[string]profile{
	"GPRS":             {download: 50 * kbps, upload: 20 * kbps, latency: 500 * time.Millisecond},
	"Regular 2G":       {download: 250 * kbps, upload: 50 * kbps, latency: 300 * time.Millisecond},
	"Good 2G":          {download: 450 * kbps, upload: 150 * kbps, latency: 150 * time.Millisecond},
	"Regular 3G":       {download: 750 * kbps, upload: 250 * kbps, latency: 100 * time.Millisecond},
	"Good 3G":          {download: 1.5 * mbps, upload: 750 * kbps, latency: 40 * time.Millisecond},
	"Regular 4G / LTE": {download: 4 * mbps, upload: 3 * mbps, latency: 20 * time.Millisecond},
	"DSL":              {download: 2 * mbps, upload: 1 * mbps, latency: 5 * time.Millisecond},
	"Wi-Fi":            {download: 30 * mbps, upload: 15 * mbps, latency: 2 * time.Millisecond},
}

// Profiles 返回所有预设网络环境的名称,按名称排序
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProfileData 返回预设网络环境对应的限速配置
// 参数:
//   - name: string 预设名称,例如 "Regular 3G"
//
// 返回:
//   - nthrottle.ThrottleData: 限速配置
//   - error: 找不到预设时返回 ErrUnknownProfile
func ProfileData(name string) (nthrottle.ThrottleData, error) {
	p, ok := profiles[name]
	if !ok {
		return nthrottle.ThrottleData{}, fmt.Errorf("%w: %q", throttle.ErrUnknownProfile, name)
	}
	return nthrottle.ThrottleData{
		LatencyMean:     p.latency,
		LatencyMax:      p.latency,
		DownloadBPSMean: p.download,
		DownloadBPSMax:  p.download,
		UploadBPSMean:   p.upload,
		UploadBPSMax:    p.upload,
	}, nil
}

// Profile 使用预设网络环境的限速配置
// 参数:
//   - name: string 预设名称
//
// 返回:
//   - Option: 配置函数
func Profile(name string) Option {
	return func(cfg *Config) error {
		data, err := ProfileData(name)
		if err != nil {
			log.Errorf("%v", err)
			return err
		}
		cfg.ThrottleData = data
		return nil
	}
}
