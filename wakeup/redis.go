package wakeup

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixkme/bgtimer/errs"
	"github.com/fixkme/bgtimer/mlog"
	"github.com/fixkme/bgtimer/util"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"go.uber.org/multierr"
)

const (
	// 认领到期成员, 取出即删除, 多个轮询者之间不会重复投递
	claimScriptLua = `
		local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
		if #due > 0 then
			redis.call("ZREM", KEYS[1], unpack(due))
		end
		return due
	`
	redisOpTimeout = 3 * time.Second
)

var claimScript = redis.NewScript(claimScriptLua)

// Redis 用有序集合做延迟队列, score是到期的墙上毫秒时间
type Redis struct {
	*readySignal
	rdb       redis.UniversalClient
	ownClient bool
	key       string
	interval  time.Duration
	batch     int
	fired     chan Handle
	quit      chan struct{}
	exited    chan struct{}
	closed    atomic.Bool
	once      sync.Once
}

func NewRedis(rdb redis.UniversalClient, opts Options) *Redis {
	opts = opts.withDefaults()
	ns := opts.Namespace
	if ns == "" {
		ns = "bgtimer:" + xid.New().String()
	}
	r := &Redis{
		readySignal: newReadySignal(),
		rdb:         rdb,
		ownClient:   opts.OwnClient,
		key:         ns + ":wakeups",
		interval:    opts.PollInterval,
		batch:       opts.BatchSize,
		fired:       make(chan Handle, opts.FiredBuffer),
		quit:        make(chan struct{}),
		exited:      make(chan struct{}),
	}
	go r.poll()
	return r
}

// Key 存放唤醒请求的有序集合
func (r *Redis) Key() string {
	return r.key
}

func (r *Redis) Start(delayMs int64) error {
	if r.closed.Load() {
		return errs.AdapterClosed.Printf("redis")
	}
	r.readySignal.start(delayMs)
	return nil
}

func (r *Redis) Arm(h Handle, delayMs int64) error {
	if r.closed.Load() {
		return errs.AdapterClosed.Printf("redis")
	}
	if delayMs < 0 {
		delayMs = 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	// ZADD覆盖score, 同一个handle以最后一次为准
	due, _ := util.AddInt64(util.NowMs(), delayMs)
	z := redis.Z{Score: float64(due), Member: strconv.FormatInt(int64(h), 10)}
	if err := r.rdb.ZAdd(ctx, r.key, z).Err(); err != nil {
		return errs.Redis.Wrap(err)
	}
	return nil
}

func (r *Redis) Disarm(h Handle) {
	if r.closed.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.rdb.ZRem(ctx, r.key, strconv.FormatInt(int64(h), 10)).Err(); err != nil {
		mlog.Warnf("redis wakeup disarm %d failed: %v", h, err)
	}
}

func (r *Redis) Stop() error {
	r.readySignal.stop()
	if r.closed.Load() {
		return errs.AdapterClosed.Printf("redis")
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return errs.Redis.Wrap(err)
	}
	return nil
}

func (r *Redis) Fired() <-chan Handle {
	return r.fired
}

func (r *Redis) Close() (err error) {
	r.once.Do(func() {
		err = r.Stop()
		r.closed.Store(true)
		close(r.quit)
		<-r.exited
		if r.ownClient {
			err = multierr.Append(err, r.rdb.Close())
		}
	})
	return
}

func (r *Redis) poll() {
	defer close(r.exited)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.quit:
			return
		case <-ticker.C:
			due, err := r.claim()
			if err != nil {
				mlog.Warnf("redis wakeup claim %s failed: %v", r.key, err)
				continue
			}
			for _, h := range due {
				select {
				case r.fired <- h:
				case <-r.quit:
					return
				}
			}
		}
	}
}

func (r *Redis) claim() ([]Handle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	members, err := claimScript.Run(ctx, r.rdb, []string{r.key}, util.NowMs(), r.batch).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, errs.Redis.Wrap(err)
	}
	due := make([]Handle, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			mlog.Errorf("redis wakeup %s bad member %q", r.key, m)
			continue
		}
		due = append(due, Handle(id))
	}
	return due, nil
}
