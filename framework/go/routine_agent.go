package g

import (
	"context"
	"sync"

	"github.com/fixkme/bgtimer/wakeup"
)

// RoutineAgent 单协程串行处理任务和到期通知,
// 一个通知(包括它触发的回调)处理完之前不会处理下一个
type RoutineAgent struct {
	*Go
	closeSig    chan struct{}
	exited      chan struct{}
	isClosed    bool
	running     bool
	mutex       sync.RWMutex
	fired       <-chan wakeup.Handle
	firedCb     FiredCb
	beforeClose func()
}

type FiredCb func(h wakeup.Handle)

func NewRoutineAgent(taskChSize int, fired <-chan wakeup.Handle) *RoutineAgent {
	return &RoutineAgent{
		Go:       NewGoChan(taskChSize),
		closeSig: make(chan struct{}),
		exited:   make(chan struct{}),
		fired:    fired,
	}
}

func (a *RoutineAgent) Init(firedCb FiredCb, beforeClose func()) {
	a.firedCb = firedCb
	a.beforeClose = beforeClose
}

// Run 阻塞直到Close, 只能调用一次
func (a *RoutineAgent) Run() {
	a.mutex.Lock()
	if a.isClosed || a.running {
		a.mutex.Unlock()
		return
	}
	a.running = true
	a.mutex.Unlock()
	defer a.onClose()

	for {
		select {
		case <-a.closeSig:
			return
		case cb := <-a.Go.ChanCb:
			a.Go.Exec(cb)
		case h := <-a.fired:
			a.Go.Exec(func() {
				a.firedCb(h)
			})
		}
	}
}

func (a *RoutineAgent) onClose() {
	defer close(a.exited)
	if a.beforeClose != nil {
		a.beforeClose()
	}
	a.Go.Close()
	for cb := range a.Go.ChanCb {
		a.Go.Exec(cb)
	}
}

// Close 通知Run退出, 不等待; 需要等待时用Wait, 但不能在回调里等
func (a *RoutineAgent) Close() {
	a.mutex.Lock()
	if a.isClosed {
		a.mutex.Unlock()
		return
	}
	a.isClosed = true
	running := a.running
	close(a.closeSig)
	a.mutex.Unlock()
	if !running {
		a.Go.Close()
		close(a.exited)
	}
}

// Wait 等待Run退出
func (a *RoutineAgent) Wait(ctx context.Context) error {
	select {
	case <-a.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CtxRunFunc 在agent协程上执行f并等待完成. ctx先结束时返回ctx.Err(), f之后仍可能执行
func (a *RoutineAgent) CtxRunFunc(ctx context.Context, f func()) (err error) {
	a.mutex.RLock()
	if a.isClosed {
		a.mutex.RUnlock()
		return ErrRoutineClosed
	}
	errCh := a.Go.SubmitWithResult(f)
	a.mutex.RUnlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (a *RoutineAgent) TryRunFunc(f func()) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if a.isClosed {
		return ErrRoutineClosed
	}
	if !a.Go.TrySubmit(f) {
		return ErrGoChanFull
	}
	return nil
}
