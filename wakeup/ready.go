package wakeup

import (
	"sync"
	"time"

	"github.com/fixkme/bgtimer/util"
)

// readySignal Start(delay)之后投递一次就绪信号, Stop作废还没投递的信号
type readySignal struct {
	mu    sync.Mutex
	ch    chan struct{}
	timer *time.Timer
	gen   uint64
}

func newReadySignal() *readySignal {
	return &readySignal{ch: make(chan struct{}, 1)}
}

func (r *readySignal) start(delayMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	select {
	case <-r.ch:
	default:
	}
	r.timer = time.AfterFunc(util.Ms2Duration(delayMs), func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if gen != r.gen {
			return
		}
		select {
		case r.ch <- struct{}{}:
		default:
		}
	})
}

func (r *readySignal) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	select {
	case <-r.ch:
	default:
	}
}

func (r *readySignal) Ready() <-chan struct{} {
	return r.ch
}
