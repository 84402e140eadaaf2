// Package wakeup 定时唤醒原语的适配层.
//
// Adapter 只接受"handle h 在 N 毫秒后唤醒"和"全部停止", 到期后从 Fired 通道投递 h.
// 投递可能迟到(进程被挂起/节流、粒度粗), 但不会早于请求的延迟.
// 同一 handle 在到期前再次 Arm 会替换上一次请求(以最后一次为准).
// 已经不存在的 handle 也可能被投递, 上层需要当作空操作处理.
package wakeup

import (
	"strings"
	"time"

	"github.com/fixkme/bgtimer/errs"
	"github.com/redis/go-redis/v9"
)

// Handle 定时器句柄, 由上层分配, 大于0
type Handle int64

type Adapter interface {
	// Start 打开后台执行能力, delayMs后从Ready投递一次就绪信号
	Start(delayMs int64) error
	// Arm 请求delayMs后投递fired(h)
	Arm(h Handle, delayMs int64) error
	// Stop 取消全部未到期的唤醒, 关闭后台执行能力; 之后仍可以重新Arm
	Stop() error
	// Fired 到期通知, 通道不会被关闭
	Fired() <-chan Handle
	// Ready Start之后的就绪信号
	Ready() <-chan struct{}
	// Close 释放协程和连接, 之后所有调用返回errs.AdapterClosed
	Close() error
}

// Disarmer 可选, 提前释放某个handle的等待
type Disarmer interface {
	Disarm(h Handle)
}

const (
	KindWheel   = "wheel"   // 分层时间轮, 粒度20ms
	KindRuntime = "runtime" // 每个handle一个runtime timer
	KindSingle  = "single"  // 只有一个底层timer, 自己按截止时间复用
	KindRedis   = "redis"   // redis有序集合做延迟队列
)

type Options struct {
	FiredBuffer   int           // Fired通道缓冲
	TaskQueueSize int           // wheel任务队列
	PollInterval  time.Duration // redis轮询间隔
	BatchSize     int           // redis单次最多认领数量
	Namespace     string        // redis key前缀, 为空时按实例生成
	Redis         redis.UniversalClient
	OwnClient     bool // Close时是否关闭Redis客户端
}

func (o Options) withDefaults() Options {
	if o.FiredBuffer <= 0 {
		o.FiredBuffer = 1024
	}
	if o.TaskQueueSize <= 0 {
		o.TaskQueueSize = 10240
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 256
	}
	return o
}

// New 按配置选择投递通道, 只在构造时决定一次
func New(kind string, opts Options) (Adapter, error) {
	switch strings.ToLower(kind) {
	case KindWheel, "":
		return NewWheel(opts), nil
	case KindRuntime:
		return NewRuntime(opts), nil
	case KindSingle:
		return NewSingle(opts), nil
	case KindRedis:
		if opts.Redis == nil {
			return nil, errs.InvalidConfig.Printf("redis adapter needs a client")
		}
		return NewRedis(opts.Redis, opts), nil
	}
	return nil, errs.InvalidConfig.Printf("unknown wakeup kind %q", kind)
}
