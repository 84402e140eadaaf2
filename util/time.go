package util

import (
	"math"
	"sync/atomic"
	"time"
)

var (
	timeOffset atomic.Int64 // 时间偏移 纳秒
	monoEpoch  = time.Now()
)

// SetTimeOffset 设置墙上时间偏移量, 只影响Now/NowMs
func SetTimeOffset(offset time.Duration) {
	timeOffset.Store(int64(offset))
}

// GetTimeOffset 获取时间偏移量
func GetTimeOffset() time.Duration {
	return time.Duration(timeOffset.Load())
}

// Now 当前墙上时间(含偏移)
func Now() time.Time {
	now := time.Now()
	if off := timeOffset.Load(); off != 0 {
		now = now.Add(time.Duration(off))
	}
	return now
}

// NowMs 当前墙上时间的毫秒时间戳, 跨进程共享的截止时间用这个
func NowMs() int64 {
	return Now().UnixMilli()
}

// MonoMs 进程内单调时钟毫秒数, 不受系统时间调整和偏移影响
func MonoMs() int64 {
	return time.Since(monoEpoch).Milliseconds()
}

// MaxDurationMs Duration能表示的最大毫秒数
const MaxDurationMs = math.MaxInt64 / int64(time.Millisecond)

// Ms2Duration 毫秒转Duration, 负数按0处理, 超出上限按上限处理
func Ms2Duration(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	if ms > MaxDurationMs {
		ms = MaxDurationMs
	}
	return time.Duration(ms) * time.Millisecond
}
