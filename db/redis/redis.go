package redis

import (
	"context"
	"strings"
	"time"

	"github.com/fixkme/bgtimer/errs"
	"github.com/fixkme/bgtimer/mlog"
	"github.com/redis/go-redis/v9"
)

const (
	RedisMode_Single   = "single"
	RedisMode_Sentinel = "sentinel"
	RedisMode_Cluster  = "cluster"
)

type Config struct {
	Mode       string
	Addr       string // 多个地址用,隔开
	MasterName string
	Password   string
	DB         int
}

func (c *Config) addrs() ([]string, error) {
	var addrs []string
	for _, addr := range strings.Split(c.Addr, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil, errs.InvalidConfig.Printf("redis addr invalid (%s)", c.Addr)
	}
	return addrs, nil
}

// build 按模式创建客户端, 不做连接检查
func (c *Config) build() (redis.UniversalClient, error) {
	addrs, err := c.addrs()
	if err != nil {
		return nil, err
	}
	switch c.Mode {
	case RedisMode_Cluster:
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    addrs,
			Password: c.Password,
		}), nil
	case RedisMode_Sentinel:
		if c.MasterName == "" {
			return nil, errs.InvalidConfig.Printf("sentinel mode needs master name")
		}
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    c.MasterName,
			SentinelAddrs: addrs,
			Password:      c.Password,
			DB:            c.DB,
		}), nil
	case RedisMode_Single, "":
		// 单机模式只用第一个地址
		return redis.NewClient(&redis.Options{
			Addr:     addrs[0],
			Password: c.Password,
			DB:       c.DB,
		}), nil
	}
	return nil, errs.InvalidConfig.Printf("unknown redis mode %q", c.Mode)
}

// NewClient 创建客户端并ping一次
func NewClient(ctx context.Context, c *Config) (redis.UniversalClient, error) {
	client, err := c.build()
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err = client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, errs.Redis.Wrap(err)
	}
	mlog.Infof("redis connected, mode %s, addr %s", c.Mode, c.Addr)
	return client, nil
}
