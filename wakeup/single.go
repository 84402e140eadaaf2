package wakeup

import (
	"sync"
	"time"

	"github.com/fixkme/bgtimer/ds/skiplist"
	"github.com/fixkme/bgtimer/errs"
	"github.com/fixkme/bgtimer/util"
)

// deadline 按到期时间排序, 相同时间按Arm先后
type deadline struct {
	when int64
	seq  uint64
	h    Handle
}

func (d deadline) Compare(o deadline) int {
	switch {
	case d.when < o.when:
		return -1
	case d.when > o.when:
		return 1
	case d.seq < o.seq:
		return -1
	case d.seq > o.seq:
		return 1
	}
	return 0
}

func handleOf(d deadline) Handle {
	return d.h
}

// Single 底层只有一个待触发的timer,
// 多个handle按截止时间排在跳表里, timer总是指向最早的那个
type Single struct {
	*readySignal
	mu      sync.Mutex
	epoch   time.Time
	queue   *skiplist.Keyed[Handle, deadline]
	timer   *time.Timer // 唯一的底层唤醒
	armedAt int64       // timer对应的截止时间, -1表示没有
	gen     uint64
	seq     uint64
	closed  bool
	fired   chan Handle
	quit    chan struct{}
}

func NewSingle(opts Options) *Single {
	opts = opts.withDefaults()
	return &Single{
		readySignal: newReadySignal(),
		epoch:       time.Now(),
		queue:       skiplist.NewKeyed[Handle, deadline](),
		armedAt:     -1,
		fired:       make(chan Handle, opts.FiredBuffer),
		quit:        make(chan struct{}),
	}
}

func (s *Single) nowMs() int64 {
	return time.Since(s.epoch).Milliseconds()
}

func (s *Single) Start(delayMs int64) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errs.AdapterClosed.Printf("single")
	}
	s.readySignal.start(delayMs)
	return nil
}

func (s *Single) Arm(h Handle, delayMs int64) error {
	if delayMs < 0 {
		delayMs = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.AdapterClosed.Printf("single")
	}
	s.seq++
	when, _ := util.AddInt64(s.nowMs(), delayMs)
	s.queue.Set(h, deadline{when: when, seq: s.seq, h: h})
	s.rearmLocked()
	return nil
}

func (s *Single) Disarm(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Remove(h) {
		s.rearmLocked()
	}
}

// rearmLocked 让唯一的timer指向队首
func (s *Single) rearmLocked() {
	front, ok := s.queue.Front()
	if !ok {
		s.disarmPrimitiveLocked()
		return
	}
	if s.timer != nil && s.armedAt == front.when {
		return
	}
	s.disarmPrimitiveLocked()
	s.gen++
	gen := s.gen
	s.armedAt = front.when
	wait, _ := util.AddInt64(front.when, -s.nowMs())
	s.timer = time.AfterFunc(util.Ms2Duration(wait), func() {
		s.wake(gen)
	})
}

func (s *Single) disarmPrimitiveLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armedAt = -1
}

func (s *Single) wake(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.armedAt = -1
	now := s.nowMs()
	var due []Handle
	for {
		front, ok := s.queue.Front()
		if !ok || front.when > now {
			break
		}
		s.queue.PopFront(handleOf)
		due = append(due, front.h)
	}
	s.rearmLocked()
	s.mu.Unlock()

	for _, h := range due {
		select {
		case s.fired <- h:
		case <-s.quit:
			return
		}
	}
}

func (s *Single) Stop() error {
	s.readySignal.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Clear()
	s.disarmPrimitiveLocked()
	return nil
}

func (s *Single) Fired() <-chan Handle {
	return s.fired
}

func (s *Single) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.quit)
	s.mu.Unlock()
	return s.Stop()
}

// Pending 还在等待的唤醒数量
func (s *Single) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
