package wakeup

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixkme/bgtimer/errs"
	"github.com/fixkme/bgtimer/mlog"
	"github.com/fixkme/bgtimer/util"
)

const (
	_SIEXP            = 1
	_SI               = 10 * (1 << _SIEXP) // ms
	_TIME_WHEEL_LEVEL = 4
)

var (
	_LEVEL_DIVIS = [_TIME_WHEEL_LEVEL]int64{0, 10, 18, 24}
	_LEVEL_SLOTS = [_TIME_WHEEL_LEVEL]int64{1 << 10, 1 << 8, 1 << 6, 1 << 6}
	_LEVEL_MASKS = [_TIME_WHEEL_LEVEL]int64{}
	_LEVEL_TICKS = [_TIME_WHEEL_LEVEL]int64{}
)

func init() {
	for i := 0; i < _TIME_WHEEL_LEVEL; i++ {
		_LEVEL_MASKS[i] = _LEVEL_SLOTS[i] - 1
		if i > 0 {
			_LEVEL_TICKS[i] = _LEVEL_SLOTS[i] * _LEVEL_TICKS[i-1]
		} else {
			_LEVEL_TICKS[i] = _LEVEL_SLOTS[i]
		}
	}
}

type timeWheel []*timerList

// Wheel 分层时间轮, 所有修改都在run协程里串行执行
type Wheel struct {
	*readySignal
	epoch    time.Time
	lastTime int64
	slot     [_TIME_WHEEL_LEVEL]int64 //每层的指针位置
	tw       [_TIME_WHEEL_LEVEL]timeWheel
	locs     map[Handle]*wheelTimer //记录位置
	taskch   chan func()
	fired    chan Handle
	quit     chan struct{}
	exited   chan struct{}
	closed   atomic.Bool
	once     sync.Once
}

func NewWheel(opts Options) *Wheel {
	opts = opts.withDefaults()
	c := &Wheel{
		readySignal: newReadySignal(),
		epoch:       time.Now(),
		locs:        make(map[Handle]*wheelTimer),
		taskch:      make(chan func(), opts.TaskQueueSize),
		fired:       make(chan Handle, opts.FiredBuffer),
		quit:        make(chan struct{}),
		exited:      make(chan struct{}),
	}
	for i := 0; i < _TIME_WHEEL_LEVEL; i++ {
		c.tw[i] = make(timeWheel, _LEVEL_SLOTS[i])
	}
	go c.run()
	return c
}

func (c *Wheel) nowMs() int64 {
	return time.Since(c.epoch).Milliseconds()
}

func (c *Wheel) Start(delayMs int64) error {
	if c.closed.Load() {
		return errs.AdapterClosed.Printf("wheel")
	}
	c.readySignal.start(delayMs)
	return nil
}

func (c *Wheel) Arm(h Handle, delayMs int64) error {
	if delayMs < 0 {
		delayMs = 0
	}
	when, _ := util.AddInt64(c.nowMs(), delayMs)
	return c.pushTask(func() {
		if !c.updateTimer(h, when) {
			c.addTimer(&wheelTimer{id: h, when: when})
		}
	})
}

func (c *Wheel) Disarm(h Handle) {
	_ = c.pushTask(func() {
		c.delTimer(h)
	})
}

func (c *Wheel) Stop() error {
	c.readySignal.stop()
	return c.pushTask(c.clearAll)
}

func (c *Wheel) Fired() <-chan Handle {
	return c.fired
}

func (c *Wheel) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.quit)
		<-c.exited
		c.readySignal.stop()
	})
	return nil
}

// Pending 还在等待的唤醒数量
func (c *Wheel) Pending() (n int, err error) {
	err = c.pushTask(func() {
		n = len(c.locs)
	})
	return
}

// slotTicks when距base的tick数, 向上取整, 至少为1.
// when可能是饱和后的MaxInt64, 不能先加_SI-1
func slotTicks(when, base int64) int64 {
	diff, _ := util.AddInt64(when, -base)
	if diff <= 0 {
		return 1
	}
	ticks := diff / _SI
	if diff%_SI != 0 {
		ticks++
	}
	return ticks
}

func (c *Wheel) addTimer(timer *wheelTimer) {
	ticks := slotTicks(timer.when, c.lastTime)
	level, slot := c.locate(ticks)
	mlog.Tracef("wheel add timer [%d, %d, %d], when=%d, lastTime=%d, ticks:%d", timer.id, level, slot, timer.when, c.lastTime, ticks)
	c.putTimer(level, slot, timer)
}

// locate 按tick数选层和槽. 超出整个时间轮的放到最高层最晚转到的槽,
// 不能放进当前槽, 否则轮动时会在同一个链表里反复摘下再放回
func (c *Wheel) locate(ticks int64) (level, slot int64) {
	for level = 0; level < _TIME_WHEEL_LEVEL; level++ {
		if ticks < _LEVEL_TICKS[level] {
			return level, ((ticks >> _LEVEL_DIVIS[level]) + c.slot[level]) & _LEVEL_MASKS[level]
		}
	}
	level = _TIME_WHEEL_LEVEL - 1
	return level, (c.slot[level] + _LEVEL_MASKS[level]) & _LEVEL_MASKS[level]
}

func (c *Wheel) putTimer(level, slot int64, timer *wheelTimer) {
	list := c.tw[level][slot]
	if list == nil {
		list = newTimerList()
		c.tw[level][slot] = list
	}
	list.PushBack(timer)
	c.locs[timer.id] = timer
}

func (c *Wheel) delTimer(id Handle) *wheelTimer {
	timer, ok := c.locs[id]
	if ok {
		timer.removeFromList()
		delete(c.locs, id)
		return timer
	}
	return nil
}

// updateTimer 以最后一次Arm为准
func (c *Wheel) updateTimer(id Handle, when int64) bool {
	t := c.delTimer(id)
	if t != nil {
		t.when = when
		c.addTimer(t)
		return true
	}
	return false
}

func (c *Wheel) clearAll() {
	for level := range c.tw {
		for _, list := range c.tw[level] {
			if list != nil {
				list.Clear()
			}
		}
	}
	clear(c.locs)
}

func (c *Wheel) trigger(nowMs int64) {
	list := c.tw[0][c.slot[0]]
	if list == nil {
		return
	}
	var retry []*wheelTimer
	list.PopRange(func(timer *wheelTimer) bool {
		delete(c.locs, timer.id)
		if timer.when > nowMs {
			// 还没到期, 重新加入时间轮, 一般是下一次tick
			c.addTimer(timer)
			return true
		}
		select {
		case c.fired <- timer.id:
			mlog.Tracef("wheel fired id:%d, when:%d, now:%d", timer.id, timer.when, nowMs)
		default:
			retry = append(retry, timer)
		}
		return true
	})
	// 通道满了放入下一个tick
	for _, timer := range retry {
		c.putTimer(0, (c.slot[0]+1)&_LEVEL_MASKS[0], timer)
	}
}

func (c *Wheel) tick(nowMs, tkTime int64) {
	c.slot[0] = (c.slot[0] + 1) & _LEVEL_MASKS[0]
	// 0层触发定时器
	c.trigger(nowMs)
	// 高层轮动
	for i := 1; i < _TIME_WHEEL_LEVEL; i++ {
		if c.slot[i-1] != 0 {
			break
		}
		c.slot[i] = (c.slot[i] + 1) & _LEVEL_MASKS[i]
		list := c.tw[i][c.slot[i]]
		if list == nil {
			continue
		}
		list.PopRange(func(timer *wheelTimer) bool {
			//加入到下一层
			level, slot := c.locate(slotTicks(timer.when, tkTime))
			c.putTimer(level, slot, timer)
			return true
		})
	}
}

func (c *Wheel) run() {
	defer close(c.exited)
	tickTimeSpan := time.Millisecond * _SI
	tickTimer := time.NewTimer(tickTimeSpan)
	defer tickTimer.Stop()
	c.lastTime = c.nowMs()
	var tk, nowMs int64
	for {
		select {
		case <-c.quit:
			return
		case <-tickTimer.C:
			nowMs = c.nowMs()
			tk = c.lastTime + _SI
			c.lastTime += _SI * ((nowMs - c.lastTime) / _SI)
			for ; tk <= c.lastTime; tk += _SI {
				c.tick(nowMs, tk)
			}
			tickTimer.Reset(tickTimeSpan)
		case fn := <-c.taskch:
			fn()
		}
	}
}

func (c *Wheel) pushTask(f func()) error {
	if c.closed.Load() {
		return errs.AdapterClosed.Printf("wheel")
	}
	done := make(chan struct{})
	ff := func() {
		defer close(done)
		f()
	}
	select {
	case c.taskch <- ff:
	default:
		return errs.TaskQueueFull.Printf("wheel")
	}
	select {
	case <-done:
		return nil
	case <-c.exited:
		return errs.AdapterClosed.Printf("wheel")
	}
}
