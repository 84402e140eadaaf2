package timer

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fixkme/bgtimer/wakeup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopHandle(l *LoopRunner) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}

func TestLoopRunnerResubmits(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	var calls int
	require.NoError(t, s.RunLoop(func() { calls++ }, 200))
	assert.Equal(t, []int64{0}, fa.started)

	// 就绪前不调度
	assert.Never(t, func() bool { return loopHandle(s.Loop()) != 0 }, 30*time.Millisecond, 5*time.Millisecond)

	fa.ready <- struct{}{}
	require.Eventually(t, func() bool { return loopHandle(s.Loop()) != 0 }, time.Second, time.Millisecond)
	h1 := loopHandle(s.Loop())
	assert.Equal(t, armCall{h: h1, delayMs: 200}, fa.lastArm())

	s.OnFired(h1)
	assert.Equal(t, 1, calls)
	h2 := loopHandle(s.Loop())
	assert.Greater(t, h2, h1)
	assert.Equal(t, armCall{h: h2, delayMs: 200}, fa.lastArm())
	assert.Equal(t, int64(1), s.Loop().Iterations())

	s.OnFired(h2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, s.Pending())
}

func TestLoopRunnerReplaceKeepsReadySignal(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(2))
	for i := 0; i < 300; i++ {
		s, fa, _ := newTestScheduler(0)
		var first, second int
		require.NoError(t, s.RunLoop(func() { first++ }, 10))
		require.NoError(t, s.RunLoop(func() { second++ }, 10))
		fa.ready <- struct{}{}

		require.Eventually(t, func() bool { return loopHandle(s.Loop()) != 0 }, time.Second, time.Millisecond,
			"iteration %d: replaced loop never scheduled", i)
		s.OnFired(loopHandle(s.Loop()))
		require.Equal(t, 0, first, "iteration %d", i)
		require.Equal(t, 1, second, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestLoopRunnerStop(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	var calls int
	require.NoError(t, s.RunLoop(func() { calls++ }, 50))
	fa.ready <- struct{}{}
	require.Eventually(t, func() bool { return loopHandle(s.Loop()) != 0 }, time.Second, time.Millisecond)
	h := loopHandle(s.Loop())

	require.NoError(t, s.StopLoop())
	assert.Equal(t, 1, fa.stops)
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, Handle(0), loopHandle(s.Loop()))

	s.OnFired(h)
	assert.Equal(t, 0, calls)
}

func TestLoopRunnerStopInsideCallback(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	var calls int
	require.NoError(t, s.RunLoop(func() {
		calls++
		_ = s.StopLoop()
	}, 50))
	fa.ready <- struct{}{}
	require.Eventually(t, func() bool { return loopHandle(s.Loop()) != 0 }, time.Second, time.Millisecond)

	s.OnFired(loopHandle(s.Loop()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, Handle(0), loopHandle(s.Loop()))
}

func TestLoopRunnerStopBeforeReady(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	require.NoError(t, s.RunLoop(func() {}, 50))
	require.NoError(t, s.StopLoop())

	fa.ready <- struct{}{}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, s.Pending())
	assert.Empty(t, fa.armCalls())
}

func TestLoopRunnerNilCallback(t *testing.T) {
	s, fa, _ := newTestScheduler(0)
	require.NoError(t, s.RunLoop(nil, 10))
	assert.Empty(t, fa.started)
}

func TestLoopRunnerWithRuntimeAdapter(t *testing.T) {
	s := NewScheduler(wakeup.NewRuntime(wakeup.Options{}))
	go s.Run()
	defer s.Close()

	var a, b atomic.Int64
	require.NoError(t, s.RunLoop(func() { a.Add(1) }, 10))
	require.Eventually(t, func() bool { return a.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	// 替换正在运行的循环
	require.NoError(t, s.RunLoop(func() { b.Add(1) }, 10))
	require.Eventually(t, func() bool { return b.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	stale := a.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, a.Load(), stale+1)

	require.NoError(t, s.StopLoop())
	time.Sleep(20 * time.Millisecond)
	stopped := b.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, b.Load())
	assert.Equal(t, 0, s.Pending())
}
