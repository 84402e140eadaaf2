package timer

import (
	"math"

	"github.com/fixkme/bgtimer/util"
)

type Kind uint8

const (
	OneShot Kind = iota + 1
	Repeating
)

func (k Kind) String() string {
	switch k {
	case OneShot:
		return "timeout"
	case Repeating:
		return "interval"
	}
	return "unknown"
}

// Entry 一个存活的定时器
type Entry struct {
	id               Handle
	kind             Kind
	periodMs         int64 // OneShot是延迟, Repeating是周期
	expectedDeadline int64 // Repeating当前tick应该触发的单调时间
	fn               func()
	tickFn           func(ticks int64)
}

func (e *Entry) ID() Handle              { return e.id }
func (e *Entry) Kind() Kind              { return e.kind }
func (e *Entry) PeriodMs() int64         { return e.periodMs }
func (e *Entry) ExpectedDeadline() int64 { return e.expectedDeadline }

// DriftTicks 一次通知代表的tick数, max(1, 1+round(delta/period)),
// round是四舍五入远离0(math.Round), 2.5 -> 3, -2.5 -> -3
func DriftTicks(deltaMs, periodMs int64) int64 {
	ticks := 1 + int64(math.Round(float64(deltaMs)/float64(periodMs)))
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

// advance 按整数个周期推进截止时间, 返回tick数和距新截止时间的剩余毫秒
func (e *Entry) advance(nowMs int64) (ticks, remainMs int64) {
	ticks = DriftTicks(nowMs-e.expectedDeadline, e.periodMs)
	step, _ := util.MulInt64(ticks, e.periodMs)
	e.expectedDeadline, _ = util.AddInt64(e.expectedDeadline, step)
	remainMs = e.expectedDeadline - nowMs
	if remainMs < MinRearmMs {
		remainMs = MinRearmMs
	}
	return
}

func (e *Entry) invoke(ticks int64) {
	if e.tickFn != nil {
		e.tickFn(ticks)
		return
	}
	e.fn()
}
