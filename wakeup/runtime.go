package wakeup

import (
	"sync"
	"time"

	"github.com/fixkme/bgtimer/errs"
	"github.com/fixkme/bgtimer/util"
)

type runtimeTimer struct {
	t   *time.Timer
	gen uint64
}

// Runtime 每个handle一个runtime timer, 被替换的timer靠gen作废
type Runtime struct {
	*readySignal
	mu     sync.Mutex
	timers map[Handle]*runtimeTimer
	gen    uint64
	closed bool
	fired  chan Handle
	quit   chan struct{}
}

func NewRuntime(opts Options) *Runtime {
	opts = opts.withDefaults()
	return &Runtime{
		readySignal: newReadySignal(),
		timers:      make(map[Handle]*runtimeTimer),
		fired:       make(chan Handle, opts.FiredBuffer),
		quit:        make(chan struct{}),
	}
}

func (r *Runtime) Start(delayMs int64) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return errs.AdapterClosed.Printf("runtime")
	}
	r.readySignal.start(delayMs)
	return nil
}

func (r *Runtime) Arm(h Handle, delayMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errs.AdapterClosed.Printf("runtime")
	}
	if old, ok := r.timers[h]; ok {
		old.t.Stop()
	}
	r.gen++
	gen := r.gen
	rt := &runtimeTimer{gen: gen}
	rt.t = time.AfterFunc(util.Ms2Duration(delayMs), func() {
		r.fire(h, gen)
	})
	r.timers[h] = rt
	return nil
}

func (r *Runtime) fire(h Handle, gen uint64) {
	r.mu.Lock()
	rt, ok := r.timers[h]
	if !ok || rt.gen != gen {
		r.mu.Unlock()
		return
	}
	delete(r.timers, h)
	r.mu.Unlock()
	select {
	case r.fired <- h:
	case <-r.quit:
	}
}

func (r *Runtime) Disarm(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rt, ok := r.timers[h]; ok {
		rt.t.Stop()
		delete(r.timers, h)
	}
}

func (r *Runtime) Stop() error {
	r.readySignal.stop()
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, rt := range r.timers {
		rt.t.Stop()
		delete(r.timers, h)
	}
	return nil
}

func (r *Runtime) Fired() <-chan Handle {
	return r.fired
}

func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.quit)
	r.mu.Unlock()
	return r.Stop()
}

// Pending 还在等待的唤醒数量
func (r *Runtime) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
