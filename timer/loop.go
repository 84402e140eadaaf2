package timer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fixkme/bgtimer/mlog"
	"github.com/google/uuid"
)

// LoopRunner 固定延迟的循环: 等适配器就绪后, 每次回调结束再提交一个新的单次定时器.
// 不做漂移补偿, 实际周期是delay加上回调耗时和唤醒延迟.
type LoopRunner struct {
	name  string
	sched *Scheduler

	mu      sync.Mutex
	gen     uint64 // 每次Run/Stop加一, 旧循环看到代数变化就退出
	handle  Handle
	waiting *loopRun // 已经Run, 还在等就绪信号
	cancel  context.CancelFunc

	iterations atomic.Int64
}

type loopRun struct {
	gen     uint64
	cb      func()
	delayMs int64
}

func newLoopRunner(s *Scheduler) *LoopRunner {
	return &LoopRunner{
		name:  "loop-" + uuid.NewString(),
		sched: s,
	}
}

func (l *LoopRunner) Name() string {
	return l.name
}

// Iterations 回调已执行的次数
func (l *LoopRunner) Iterations() int64 {
	return l.iterations.Load()
}

// Run 打开后台能力, 就绪后每delayMs执行一次cb. 正在运行时会替换之前的循环.
func (l *LoopRunner) Run(cb func(), delayMs int64) error {
	if cb == nil {
		return nil
	}
	if delayMs < 0 {
		delayMs = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
	if err := l.sched.Start(0); err != nil {
		return err
	}
	l.waiting = &loopRun{gen: l.gen, cb: cb, delayMs: delayMs}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go l.awaitReady(ctx)
	mlog.Debugf("%s: run, delay %dms", l.name, delayMs)
	return nil
}

// Stop 关闭后台能力并清除等待中的单次定时器
func (l *LoopRunner) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
	return l.sched.Stop()
}

// halt 只结束循环, 不动适配器
func (l *LoopRunner) halt() {
	l.mu.Lock()
	l.resetLocked()
	l.mu.Unlock()
}

func (l *LoopRunner) resetLocked() {
	l.gen++
	l.waiting = nil
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.handle != 0 {
		l.sched.ClearTimeout(l.handle)
		l.handle = 0
	}
}

// awaitReady 被替换的旧协程可能抢到新一轮Start的就绪信号,
// 所以收到信号后交给当前正在等待的那一轮, 而不是自己那一轮
func (l *LoopRunner) awaitReady(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-l.sched.adapter.Ready():
	}
	l.onReady()
}

func (l *LoopRunner) onReady() {
	l.mu.Lock()
	run := l.waiting
	l.waiting = nil
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.mu.Unlock()
	if run != nil {
		l.schedule(run.gen, run.cb, run.delayMs)
	}
}

func (l *LoopRunner) schedule(gen uint64, cb func(), delayMs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	h, err := l.sched.SetTimeout(func() {
		l.iterate(gen, cb, delayMs)
	}, delayMs)
	if err != nil {
		mlog.Errorf("%s: schedule failed, loop stopped: %v", l.name, err)
		return
	}
	l.handle = h
}

func (l *LoopRunner) iterate(gen uint64, cb func(), delayMs int64) {
	l.mu.Lock()
	alive := gen == l.gen
	if alive {
		l.handle = 0
	}
	l.mu.Unlock()
	if !alive {
		return
	}
	l.iterations.Add(1)
	cb()
	l.schedule(gen, cb, delayMs)
}
