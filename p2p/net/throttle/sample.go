package throttle

import (
	"math"
	"math/rand"
	"time"
)

// RandSource 返回 [0,1) 区间内均匀分布的随机数
type RandSource func() float64

// defaultRandSource 是默认的随机数来源
func defaultRandSource() float64 {
	return rand.Float64()
}

// sample 在给定平均值和最大值时返回 [mean-(max-mean), max) 区间内的随机整数。
// 采样值可以低于平均值,最低到 2*mean-max。
// 参数:
//   - mean: int64 平均值
//   - max: int64 最大值
//   - rnd: RandSource 随机数来源
//
// 返回值:
//   - int64: 采样结果
func sample(mean, max int64, rnd RandSource) int64 {
	spread := max - mean
	return mean - spread + int64(math.Floor(2*float64(spread)*rnd()))
}

// sampleLatency 以毫秒为粒度采样延迟
// 参数:
//   - mean: time.Duration 平均延迟
//   - max: time.Duration 最大延迟
//   - rnd: RandSource 随机数来源
//
// 返回值:
//   - time.Duration: 采样得到的延迟,可能小于等于0
func sampleLatency(mean, max time.Duration, rnd RandSource) time.Duration {
	ms := sample(mean.Milliseconds(), max.Milliseconds(), rnd)
	return time.Duration(ms) * time.Millisecond
}
