package metricshelper

import (
	"fmt"
	"sync"
)

// 标签切片的最小容量,足够容纳限速指标的全部标签
const capacity = 4

// 标签切片对象池,避免每次上报指标时分配
var labelPool = sync.Pool{New: func() any {
	s := make([]string, 0, capacity)
	return &s
}}

// GetStringSlice 从对象池获取一个长度为0的字符串切片
// 返回值:
//   - *[]string: 字符串切片指针
func GetStringSlice() *[]string {
	s := labelPool.Get().(*[]string)
	// 保留容量,清空内容
	*s = (*s)[:0]
	return s
}

// GetLabels 从对象池获取字符串切片并依次填入标签值
// 参数:
//   - values: ...string 标签值
//
// 返回值:
//   - *[]string: 使用完毕后需要调用 PutStringSlice 放回
func GetLabels(values ...string) *[]string {
	s := GetStringSlice()
	*s = append(*s, values...)
	return s
}

// PutStringSlice 将字符串切片放回对象池
// 参数:
//   - s: *[]string 要放回的字符串切片指针
func PutStringSlice(s *[]string) {
	// 被 append 替换过底层数组的切片不放回
	if c := cap(*s); c < capacity {
		panic(fmt.Sprintf("标签切片容量不能小于 %d,实际为 %d", capacity, c))
	}
	labelPool.Put(s)
}
