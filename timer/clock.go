package timer

import (
	"sync/atomic"

	"github.com/fixkme/bgtimer/util"
)

// Clock 单调时钟, 毫秒
type Clock interface {
	NowMs() int64
}

type monoClock struct{}

func (monoClock) NowMs() int64 {
	return util.MonoMs()
}

// NewMonoClock 进程内单调时钟
func NewMonoClock() Clock {
	return monoClock{}
}

// ManualClock 手动推进的时钟, 测试用
type ManualClock struct {
	now atomic.Int64
}

func NewManualClock(startMs int64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(startMs)
	return c
}

func (c *ManualClock) NowMs() int64 {
	return c.now.Load()
}

func (c *ManualClock) Set(ms int64) {
	c.now.Store(ms)
}

func (c *ManualClock) Advance(ms int64) int64 {
	return c.now.Add(ms)
}
