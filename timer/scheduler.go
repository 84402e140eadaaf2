// Package timer 补偿漂移的定时器调度.
//
// Scheduler 在只会"N毫秒后唤醒handle"的 wakeup.Adapter 之上实现
// SetTimeout/SetInterval. 唤醒可能迟到, 周期定时器每次触发时按实际经过时间
// 计算错过的tick数, 再把下一次唤醒对齐到整周期的截止时间, 长期平均周期等于请求的周期.
package timer

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixkme/bgtimer/errs"
	g "github.com/fixkme/bgtimer/framework/go"
	"github.com/fixkme/bgtimer/mlog"
	"github.com/fixkme/bgtimer/util"
	"github.com/fixkme/bgtimer/wakeup"
	"github.com/rs/xid"
	"go.uber.org/multierr"
)

// MinRearmMs 重新Arm的最小延迟
const MinRearmMs int64 = 1

const (
	defaultTaskQueue = 1024
	closeWaitTimeout = 5 * time.Second
)

type options struct {
	clock     Clock
	name      string
	taskQueue int
}

type Option func(*options)

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithTaskQueue Post任务队列长度
func WithTaskQueue(size int) Option {
	return func(o *options) { o.taskQueue = size }
}

type Scheduler struct {
	name     string
	clock    Clock
	adapter  wakeup.Adapter
	registry *Registry
	agent    *g.RoutineAgent
	loop     *LoopRunner

	// 触发路径(查找+删除, 查找+推进+Arm)和清除路径互斥, 回调在锁外执行
	mu          sync.Mutex
	dispatching atomic.Bool // agent协程正在执行回调或Post的任务
	closeOnce   sync.Once
	closeErr    error
}

func NewScheduler(adapter wakeup.Adapter, opts ...Option) *Scheduler {
	o := options{taskQueue: defaultTaskQueue}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = NewMonoClock()
	}
	if o.name == "" {
		o.name = "sched-" + xid.New().String()
	}
	s := &Scheduler{
		name:     o.name,
		clock:    o.clock,
		adapter:  adapter,
		registry: NewRegistry(),
		agent:    g.NewRoutineAgent(o.taskQueue, adapter.Fired()),
	}
	s.agent.Init(func(h Handle) {
		s.dispatch(func() { s.OnFired(h) })
	}, nil)
	s.agent.SetPanicHandler(func(r any) {
		mlog.Errorf("%s: callback panic: %v\n%s", s.name, r, debug.Stack())
	})
	s.loop = newLoopRunner(s)
	return s
}

func (s *Scheduler) Name() string {
	return s.name
}

// SetTimeout delayMs后执行一次cb, 负数按0处理; cb为nil时返回0且不调度
func (s *Scheduler) SetTimeout(cb func(), delayMs int64) (Handle, error) {
	if cb == nil {
		return 0, nil
	}
	if delayMs < 0 {
		delayMs = 0
	}
	return s.add(&Entry{kind: OneShot, periodMs: delayMs, fn: cb})
}

// SetInterval 每periodMs执行一次cb, 小于1按1处理; 迟到时错过的tick合并成一次调用
func (s *Scheduler) SetInterval(cb func(), periodMs int64) (Handle, error) {
	if cb == nil {
		return 0, nil
	}
	return s.add(&Entry{kind: Repeating, periodMs: clampPeriod(periodMs), fn: cb})
}

// SetIntervalTicks 同SetInterval, 回调参数是本次代表的tick数(>=1)
func (s *Scheduler) SetIntervalTicks(cb func(ticks int64), periodMs int64) (Handle, error) {
	if cb == nil {
		return 0, nil
	}
	return s.add(&Entry{kind: Repeating, periodMs: clampPeriod(periodMs), tickFn: cb})
}

func clampPeriod(periodMs int64) int64 {
	if periodMs < 1 {
		return 1
	}
	return periodMs
}

func (s *Scheduler) add(e *Entry) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.kind == Repeating {
		e.expectedDeadline, _ = util.AddInt64(s.clock.NowMs(), e.periodMs)
	}
	h := s.registry.register(e)
	if err := s.adapter.Arm(h, e.periodMs); err != nil {
		s.registry.remove(h)
		mlog.Errorf("%s: arm %s %d failed: %v", s.name, e.kind, h, err)
		return 0, err
	}
	mlog.Debugf("%s: set %s %d, %dms", s.name, e.kind, h, e.periodMs)
	return h, nil
}

// ClearTimeout 未知或已清除的句柄是空操作
func (s *Scheduler) ClearTimeout(h Handle) {
	s.clear(h)
}

// ClearInterval 和ClearTimeout相同
func (s *Scheduler) ClearInterval(h Handle) {
	s.clear(h)
}

func (s *Scheduler) clear(h Handle) {
	s.mu.Lock()
	removed := s.registry.remove(h)
	s.mu.Unlock()
	if !removed {
		return
	}
	// 只是释放底层等待, 即便还会投递也会在OnFired里被忽略
	if d, ok := s.adapter.(wakeup.Disarmer); ok {
		d.Disarm(h)
	}
	mlog.Debugf("%s: clear %d", s.name, h)
}

// OnFired 处理一次到期通知. 回调在调用方协程上同步执行, 回调的panic会继续向上抛出,
// 周期定时器此时已经重新Arm.
func (s *Scheduler) OnFired(h Handle) {
	s.mu.Lock()
	e, ok := s.registry.lookup(h)
	if !ok {
		s.mu.Unlock()
		return
	}
	ticks := int64(1)
	switch e.kind {
	case OneShot:
		s.registry.remove(h)
	case Repeating:
		var remain int64
		now := s.clock.NowMs()
		s.registry.update(h, func(e *Entry) {
			ticks, remain = e.advance(now)
		})
		if ticks > 1 {
			mlog.Tracef("%s: interval %d late, %d ticks, next in %dms", s.name, h, ticks, remain)
		}
		if err := s.adapter.Arm(h, remain); err != nil {
			s.registry.remove(h)
			mlog.Errorf("%s: rearm interval %d failed, dropped: %v", s.name, h, err)
		}
	}
	s.mu.Unlock()
	e.invoke(ticks)
}

// Entry 返回存活定时器的快照
func (s *Scheduler) Entry(h Handle) (Entry, bool) {
	var snap Entry
	ok := s.registry.update(h, func(e *Entry) {
		snap = *e
	})
	return snap, ok
}

// Pending 存活的定时器数量
func (s *Scheduler) Pending() int {
	return s.registry.Len()
}

// Start 打开底层的后台执行能力, delayMs后就绪
func (s *Scheduler) Start(delayMs int64) error {
	if delayMs < 0 {
		delayMs = 0
	}
	return s.adapter.Start(delayMs)
}

// Stop 取消底层所有等待中的唤醒, 已注册的定时器不会再触发
func (s *Scheduler) Stop() error {
	return s.adapter.Stop()
}

// Run 串行处理到期通知和Post的任务, 阻塞到Close
func (s *Scheduler) Run() {
	s.agent.Run()
}

func (s *Scheduler) dispatch(f func()) {
	s.dispatching.Store(true)
	defer s.dispatching.Store(false)
	f()
}

// Post 在处理通知的协程上执行f, 不等待
func (s *Scheduler) Post(f func()) error {
	return s.agentErr(s.agent.TryRunFunc(func() { s.dispatch(f) }))
}

// PostSync 在处理通知的协程上执行f并等待完成, 不能在回调里调用
func (s *Scheduler) PostSync(ctx context.Context, f func()) error {
	return s.agentErr(s.agent.CtxRunFunc(ctx, func() { s.dispatch(f) }))
}

func (s *Scheduler) agentErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, g.ErrGoChanFull):
		return errs.TaskQueueFull.Wrap(err)
	case errors.Is(err, g.ErrRoutineClosed):
		return errs.LoopStopped.Wrap(err)
	default:
		return err
	}
}

// Close 结束循环, 等处理通知的协程把剩下的任务执行完, 再关闭适配器.
// 在回调里调用时等不到协程退出, 直接关闭适配器
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.loop.halt()
		inCallback := s.dispatching.Load()
		s.agent.Close()
		if !inCallback {
			ctx, cancel := context.WithTimeout(context.Background(), closeWaitTimeout)
			if err := s.agent.Wait(ctx); err != nil {
				s.closeErr = errs.Unknown.Printf("%s delivery routine still running", s.name).Wrap(err)
			}
			cancel()
		}
		s.closeErr = multierr.Append(s.closeErr, s.adapter.Close())
	})
	return s.closeErr
}

// RunLoop 见LoopRunner.Run
func (s *Scheduler) RunLoop(cb func(), delayMs int64) error {
	return s.loop.Run(cb, delayMs)
}

// StopLoop 见LoopRunner.Stop
func (s *Scheduler) StopLoop() error {
	return s.loop.Stop()
}

// Loop 内置的LoopRunner
func (s *Scheduler) Loop() *LoopRunner {
	return s.loop
}
