package timer

import (
	"sync"

	"github.com/fixkme/bgtimer/errs"
	"github.com/fixkme/bgtimer/wakeup"
)

type armCall struct {
	h       Handle
	delayMs int64
}

// fakeAdapter 只记录调用, 通知由测试手动投递
type fakeAdapter struct {
	mu       sync.Mutex
	arms     []armCall
	disarmed []Handle
	started  []int64
	stops    int
	closed   bool
	armErr   error

	fired chan wakeup.Handle
	ready chan struct{}
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		fired: make(chan wakeup.Handle, 16),
		ready: make(chan struct{}, 1),
	}
}

func (f *fakeAdapter) Start(delayMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, delayMs)
	return nil
}

func (f *fakeAdapter) Arm(h wakeup.Handle, delayMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errs.AdapterClosed
	}
	if f.armErr != nil {
		return f.armErr
	}
	f.arms = append(f.arms, armCall{h: h, delayMs: delayMs})
	return nil
}

func (f *fakeAdapter) Disarm(h wakeup.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disarmed = append(f.disarmed, h)
}

func (f *fakeAdapter) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeAdapter) Fired() <-chan wakeup.Handle { return f.fired }
func (f *fakeAdapter) Ready() <-chan struct{}      { return f.ready }

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errs.AdapterClosed
	}
	f.closed = true
	return nil
}

func (f *fakeAdapter) setArmErr(err error) {
	f.mu.Lock()
	f.armErr = err
	f.mu.Unlock()
}

func (f *fakeAdapter) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeAdapter) armCalls() []armCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]armCall(nil), f.arms...)
}

func (f *fakeAdapter) lastArm() armCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.arms) == 0 {
		return armCall{}
	}
	return f.arms[len(f.arms)-1]
}

func (f *fakeAdapter) disarmedHandles() []Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Handle(nil), f.disarmed...)
}
