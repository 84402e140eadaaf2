package timer

import (
	"sync/atomic"

	"github.com/fixkme/bgtimer/wakeup"
)

// Handle 定时器句柄, 从1开始严格递增, 永不复用
type Handle = wakeup.Handle

// HandleAllocator 句柄分配器.
// 上限是 math.MaxInt64, 按每秒一百万次分配也要约29万年, 不处理回绕.
type HandleAllocator struct {
	last atomic.Int64
}

func (a *HandleAllocator) NextID() Handle {
	return Handle(a.last.Add(1))
}
