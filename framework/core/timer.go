package core

import (
	"context"
	"strings"
	"time"

	"github.com/fixkme/bgtimer/framework/config"
	"github.com/fixkme/bgtimer/mlog"
	"github.com/fixkme/bgtimer/timer"
	"github.com/fixkme/bgtimer/util"
	"github.com/fixkme/bgtimer/wakeup"
	"go.uber.org/multierr"
)

var Timer *TimerModule

// TimerModule 把调度器接入app生命周期: 按配置选择唤醒通道,
// 可选地启动一个补偿漂移的周期定时器和一个固定延迟循环
type TimerModule struct {
	name       string
	conf       *config.AppConfig
	sched      *timer.Scheduler
	interval   timer.Handle
	onInterval func(ticks int64)
	onLoop     func()
}

// InitTimerModule onInterval/onLoop为nil时只打日志
func InitTimerModule(name string, conf *config.AppConfig, onInterval func(ticks int64), onLoop func()) error {
	adapter, err := NewAdapter(conf)
	if err != nil {
		return err
	}
	m := &TimerModule{
		name:       name,
		conf:       conf,
		onInterval: onInterval,
		onLoop:     onLoop,
	}
	m.sched = timer.NewScheduler(adapter,
		timer.WithName(name),
		timer.WithTaskQueue(conf.TaskQueueSize),
	)
	if m.onInterval == nil {
		m.onInterval = func(ticks int64) {
			mlog.Infof("%s interval tick x%d", name, ticks)
		}
	}
	if m.onLoop == nil {
		m.onLoop = func() {
			mlog.Infof("%s loop iteration %d", name, m.sched.Loop().Iterations())
		}
	}
	Timer = m
	return nil
}

// NewAdapter 按配置创建唤醒通道, redis模式下客户端归适配器所有
func NewAdapter(conf *config.AppConfig) (wakeup.Adapter, error) {
	opts := wakeup.Options{
		FiredBuffer:   conf.FiredBuffer,
		TaskQueueSize: conf.TaskQueueSize,
		PollInterval:  conf.PollInterval(),
		BatchSize:     conf.BatchSize,
		Namespace:     conf.Namespace,
	}
	if strings.EqualFold(conf.WakeupKind, wakeup.KindRedis) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := InitRedis(ctx, &conf.RedisConfig)
		if err != nil {
			return nil, err
		}
		opts.Redis = client
		opts.OwnClient = true
	}
	return wakeup.New(conf.WakeupKind, opts)
}

func (m *TimerModule) Scheduler() *timer.Scheduler {
	return m.sched
}

func (m *TimerModule) OnInit() (err error) {
	if m.conf.TimeOffset != 0 {
		util.SetTimeOffset(time.Duration(m.conf.TimeOffset) * time.Millisecond)
	}
	if m.conf.IntervalMs > 0 {
		if m.interval, err = m.sched.SetIntervalTicks(m.onInterval, m.conf.IntervalMs); err != nil {
			return err
		}
	}
	if m.conf.LoopDelayMs > 0 {
		if err = m.sched.RunLoop(m.onLoop, m.conf.LoopDelayMs); err != nil {
			return err
		}
	}
	mlog.Infof("%s init, wakeup %q, interval %dms, loop %dms", m.name, m.conf.WakeupKind, m.conf.IntervalMs, m.conf.LoopDelayMs)
	return nil
}

func (m *TimerModule) Run() {
	m.sched.Run()
}

func (m *TimerModule) Destroy() (err error) {
	if m.conf.LoopDelayMs > 0 {
		err = multierr.Append(err, m.sched.StopLoop())
	}
	m.sched.ClearInterval(m.interval)
	return multierr.Append(err, m.sched.Close())
}

func (m *TimerModule) Name() string {
	return m.name
}
