package timer

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fixkme/bgtimer/errs"
	"github.com/fixkme/bgtimer/mlog"
	"github.com/fixkme/bgtimer/wakeup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestScheduler(startMs int64) (*Scheduler, *fakeAdapter, *ManualClock) {
	fa := newFakeAdapter()
	clk := NewManualClock(startMs)
	return NewScheduler(fa, WithClock(clk), WithName("test")), fa, clk
}

func TestHandleAllocatorUnique(t *testing.T) {
	var a HandleAllocator
	const workers, per = 16, 500
	seen := make(chan Handle, workers*per)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				seen <- a.NextID()
			}
		}()
	}
	wg.Wait()
	close(seen)

	set := make(map[Handle]struct{})
	for h := range seen {
		assert.Greater(t, h, Handle(0))
		set[h] = struct{}{}
	}
	assert.Len(t, set, workers*per)
	assert.Equal(t, Handle(workers*per+1), a.NextID())
}

func TestHandlesIncreaseAcrossKinds(t *testing.T) {
	s, _, _ := newTestScheduler(0)
	h1, err := s.SetTimeout(func() {}, 10)
	require.NoError(t, err)
	h2, err := s.SetInterval(func() {}, 10)
	require.NoError(t, err)
	s.ClearTimeout(h1)
	h3, err := s.SetTimeout(func() {}, 10)
	require.NoError(t, err)
	assert.Equal(t, []Handle{1, 2, 3}, []Handle{h1, h2, h3})
}

func TestTimeoutFiresExactlyOnce(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	var calls int
	h, err := s.SetTimeout(func() { calls++ }, 250)
	require.NoError(t, err)
	assert.Equal(t, armCall{h: h, delayMs: 250}, fa.lastArm())
	assert.Equal(t, 1, s.Pending())

	s.OnFired(h)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Pending())

	// 重复的过期通知
	s.OnFired(h)
	assert.Equal(t, 1, calls)
	assert.Len(t, fa.armCalls(), 1)
}

func TestClearedHandleIsNoop(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	var calls int
	h, err := s.SetTimeout(func() { calls++ }, 100)
	require.NoError(t, err)

	s.ClearTimeout(h)
	s.OnFired(h)
	assert.Equal(t, 0, calls)
	assert.Equal(t, []Handle{h}, fa.disarmedHandles())

	// 幂等, 未知句柄也没有副作用
	s.ClearTimeout(h)
	s.ClearInterval(h)
	s.ClearInterval(999)
	s.OnFired(999)
	assert.Equal(t, []Handle{h}, fa.disarmedHandles())
}

func TestClearTimeoutAndClearIntervalInterchangeable(t *testing.T) {
	s, _, _ := newTestScheduler(0)
	var calls int
	hi, err := s.SetInterval(func() { calls++ }, 100)
	require.NoError(t, err)
	ht, err := s.SetTimeout(func() { calls++ }, 100)
	require.NoError(t, err)

	s.ClearTimeout(hi)
	s.ClearInterval(ht)
	s.OnFired(hi)
	s.OnFired(ht)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, s.Pending())
}

func TestDriftTicks(t *testing.T) {
	cases := []struct {
		delta, period, want int64
	}{
		{0, 1000, 1},
		{499, 1000, 1},
		{500, 1000, 2},
		{1000, 1000, 2},
		{2500, 1000, 4},
		{2499, 1000, 3},
		{-400, 1000, 1},
		{-500, 1000, 1},
		{-2500, 1000, 1},
		{7, 1, 8},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DriftTicks(c.delta, c.period), "delta=%d period=%d", c.delta, c.period)
	}
}

func TestIntervalDriftCorrection(t *testing.T) {
	const T0 = 10_000
	s, fa, clk := newTestScheduler(T0)
	var got []int64
	h, err := s.SetIntervalTicks(func(ticks int64) { got = append(got, ticks) }, 1000)
	require.NoError(t, err)
	assert.Equal(t, armCall{h: h, delayMs: 1000}, fa.lastArm())

	e, ok := s.Entry(h)
	require.True(t, ok)
	deadline := e.ExpectedDeadline()
	assert.Equal(t, int64(T0+1000), deadline)
	assert.Equal(t, Repeating, e.Kind())

	// 迟到2500ms
	clk.Set(deadline + 2500)
	s.OnFired(h)
	require.Equal(t, []int64{4}, got)
	e, ok = s.Entry(h)
	require.True(t, ok)
	assert.Equal(t, deadline+4000, e.ExpectedDeadline())
	assert.Equal(t, armCall{h: h, delayMs: 1500}, fa.lastArm())

	// 准时
	deadline = e.ExpectedDeadline()
	clk.Set(deadline)
	s.OnFired(h)
	assert.Equal(t, []int64{4, 1}, got)
	assert.Equal(t, armCall{h: h, delayMs: 1000}, fa.lastArm())

	// 提前400ms到达, 仍然算一次, 截止时间只推进一个周期
	deadline += 1000
	clk.Set(deadline - 400)
	s.OnFired(h)
	assert.Equal(t, []int64{4, 1, 1}, got)
	e, _ = s.Entry(h)
	assert.Equal(t, deadline+1000, e.ExpectedDeadline())
	assert.Equal(t, armCall{h: h, delayMs: 1400}, fa.lastArm())
}

func TestIntervalLongRunAverage(t *testing.T) {
	s, fa, clk := newTestScheduler(0)
	var total int64
	h, err := s.SetIntervalTicks(func(ticks int64) { total += ticks }, 100)
	require.NoError(t, err)

	// 每次唤醒都迟到37ms, 截止时间仍然对齐到整周期
	for i := 0; i < 50; i++ {
		clk.Advance(fa.lastArm().delayMs + 37)
		s.OnFired(h)
	}
	e, _ := s.Entry(h)
	assert.Equal(t, int64(0), e.ExpectedDeadline()%100)
	assert.InDelta(t, clk.NowMs()/100, total, 1)
}

func TestRearmBeforeInvokeAndSelfClear(t *testing.T) {
	s, fa, clk := newTestScheduler(0)
	var h Handle
	var armsSeen int
	var calls int
	h, err := s.SetInterval(func() {
		calls++
		armsSeen = len(fa.armCalls())
		s.ClearInterval(h)
	}, 1000)
	require.NoError(t, err)

	clk.Set(1000)
	s.OnFired(h)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, armsSeen)
	assert.Equal(t, 0, s.Pending())

	// 清除前已经发出的唤醒
	clk.Set(2000)
	s.OnFired(h)
	assert.Equal(t, 1, calls)
	assert.Len(t, fa.armCalls(), 2)
}

func TestCallbackPanicPropagates(t *testing.T) {
	s, fa, clk := newTestScheduler(0)
	h, err := s.SetInterval(func() { panic("boom") }, 100)
	require.NoError(t, err)

	clk.Set(100)
	assert.PanicsWithValue(t, "boom", func() { s.OnFired(h) })
	assert.Equal(t, armCall{h: h, delayMs: 100}, fa.lastArm())
	_, ok := s.Entry(h)
	assert.True(t, ok)

	// 锁已经释放
	s.ClearInterval(h)
	assert.Equal(t, 0, s.Pending())
}

func TestArmFailureDropsEntry(t *testing.T) {
	s, fa, clk := newTestScheduler(0)
	fa.setArmErr(errs.AdapterClosed)
	h, err := s.SetTimeout(func() {}, 10)
	assert.Equal(t, Handle(0), h)
	assert.True(t, errors.Is(err, errs.AdapterClosed))
	assert.Equal(t, 0, s.Pending())

	fa.setArmErr(nil)
	var calls int
	h, err = s.SetInterval(func() { calls++ }, 100)
	require.NoError(t, err)

	fa.setArmErr(errs.AdapterClosed)
	clk.Set(100)
	s.OnFired(h)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Pending())

	clk.Set(200)
	s.OnFired(h)
	assert.Equal(t, 1, calls)
}

func TestArgumentClamping(t *testing.T) {
	s, fa, _ := newTestScheduler(0)

	h, err := s.SetTimeout(func() {}, -5)
	require.NoError(t, err)
	assert.Equal(t, armCall{h: h, delayMs: 0}, fa.lastArm())

	h, err = s.SetInterval(func() {}, 0)
	require.NoError(t, err)
	assert.Equal(t, armCall{h: h, delayMs: 1}, fa.lastArm())
	e, _ := s.Entry(h)
	assert.Equal(t, int64(1), e.PeriodMs())

	n := len(fa.armCalls())
	h, err = s.SetTimeout(nil, 10)
	assert.NoError(t, err)
	assert.Equal(t, Handle(0), h)
	h, err = s.SetIntervalTicks(nil, 10)
	assert.NoError(t, err)
	assert.Equal(t, Handle(0), h)
	assert.Len(t, fa.armCalls(), n)
}

func TestStartStopPassThrough(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	require.NoError(t, s.Start(-3))
	require.NoError(t, s.Start(50))
	require.NoError(t, s.Stop())
	assert.Equal(t, []int64{0, 50}, fa.started)
	assert.Equal(t, 1, fa.stops)
}

func TestCloseClosesAdapter(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, fa.closed)

	_, err := s.SetTimeout(func() {}, 1)
	assert.ErrorIs(t, err, errs.AdapterClosed)
	assert.ErrorIs(t, s.Post(func() {}), errs.LoopStopped)
}

func TestSchedulerRunDelivers(t *testing.T) {
	for _, kind := range []string{wakeup.KindRuntime, wakeup.KindSingle, wakeup.KindWheel} {
		t.Run(kind, func(t *testing.T) {
			adapter, err := wakeup.New(kind, wakeup.Options{})
			require.NoError(t, err)
			s := NewScheduler(adapter)
			go s.Run()
			defer s.Close()

			var once, ticks, hv atomic.Int64
			_, err = s.SetTimeout(func() { once.Add(1) }, 10)
			require.NoError(t, err)
			h, err := s.SetIntervalTicks(func(n int64) {
				if ticks.Add(n) >= 5 {
					s.ClearInterval(Handle(hv.Load()))
				}
			}, 20)
			require.NoError(t, err)
			hv.Store(int64(h))

			assert.Eventually(t, func() bool {
				return once.Load() == 1 && s.Pending() == 0
			}, 3*time.Second, 5*time.Millisecond)

			before := ticks.Load()
			assert.GreaterOrEqual(t, before, int64(5))
			time.Sleep(100 * time.Millisecond)
			assert.Equal(t, before, ticks.Load())
			assert.Equal(t, int64(1), once.Load())
		})
	}
}

func TestHugeDelaysDoNotFireEarly(t *testing.T) {
	for _, kind := range []string{wakeup.KindRuntime, wakeup.KindSingle, wakeup.KindWheel} {
		t.Run(kind, func(t *testing.T) {
			adapter, err := wakeup.New(kind, wakeup.Options{})
			require.NoError(t, err)
			s := NewScheduler(adapter)
			go s.Run()
			defer s.Close()

			var fired atomic.Int64
			_, err = s.SetTimeout(func() { fired.Add(1) }, math.MaxInt64/2)
			require.NoError(t, err)
			h, err := s.SetInterval(func() { fired.Add(1) }, math.MaxInt64)
			require.NoError(t, err)

			// 截止时间饱和, 不回绕
			e, ok := s.Entry(h)
			require.True(t, ok)
			assert.Equal(t, int64(math.MaxInt64), e.ExpectedDeadline())

			time.Sleep(150 * time.Millisecond)
			assert.Equal(t, int64(0), fired.Load())
			assert.Equal(t, 2, s.Pending())
		})
	}
}

func TestSchedulerRunSurvivesPanic(t *testing.T) {
	s := NewScheduler(wakeup.NewRuntime(wakeup.Options{}))
	go s.Run()
	defer s.Close()

	_, err := s.SetTimeout(func() { panic("boom") }, 1)
	require.NoError(t, err)
	var ok atomic.Bool
	_, err = s.SetTimeout(func() { ok.Store(true) }, 20)
	require.NoError(t, err)
	assert.Eventually(t, ok.Load, 2*time.Second, 5*time.Millisecond)
}

func TestCloseDrainsBeforeClosingAdapter(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	go s.Run()
	require.NoError(t, s.PostSync(context.Background(), func() {}))

	var ran, adapterClosedEarly bool
	require.NoError(t, s.Post(func() {
		time.Sleep(50 * time.Millisecond)
		ran = true
		adapterClosedEarly = fa.isClosed()
	}))
	require.NoError(t, s.Close())
	assert.True(t, ran)
	assert.False(t, adapterClosedEarly)
	assert.True(t, fa.isClosed())
}

func TestCloseInsideCallback(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	go s.Run()

	done := make(chan error, 1)
	h, err := s.SetTimeout(func() { done <- s.Close() }, 0)
	require.NoError(t, err)
	fa.fired <- h
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close inside a callback blocked")
	}
	assert.True(t, fa.isClosed())
}

func TestPostSync(t *testing.T) {
	s, _, _ := newTestScheduler(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// 还没有Run
	assert.ErrorIs(t, s.PostSync(ctx, func() {}), context.DeadlineExceeded)

	go s.Run()
	v := 0
	require.NoError(t, s.PostSync(context.Background(), func() { v = 1 }))
	assert.Equal(t, 1, v)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.PostSync(context.Background(), func() {}), errs.LoopStopped)
}

func TestCallbackPanicLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := mlog.GetLogger()
	require.NoError(t, mlog.UseZapLogger(zap.New(core), mlog.DebugLevel))
	defer mlog.SetLogger(prev)

	s := NewScheduler(wakeup.NewRuntime(wakeup.Options{}), WithName("panicky"))
	go s.Run()
	defer s.Close()

	_, err := s.SetTimeout(func() { panic("boom") }, 1)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return logs.FilterMessageSnippet("panicky: callback panic: boom").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPostRunsOnDeliveryRoutine(t *testing.T) {
	s := NewScheduler(wakeup.NewRuntime(wakeup.Options{}))
	go s.Run()
	defer s.Close()

	done := make(chan struct{})
	require.NoError(t, s.Post(func() {
		// 回调里可以继续调用调度器
		_, _ = s.SetTimeout(func() { close(done) }, 1)
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout not delivered")
	}
}
