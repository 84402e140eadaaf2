package core

import (
	"context"

	rdb "github.com/fixkme/bgtimer/db/redis"
	"github.com/fixkme/bgtimer/errs"
	"github.com/fixkme/bgtimer/framework/config"
	"github.com/redis/go-redis/v9"
)

func InitRedis(ctx context.Context, conf *config.RedisConfig) (redis.UniversalClient, error) {
	if conf == nil {
		return nil, errs.InvalidConfig.Printf("redis config is nil")
	}
	return rdb.NewClient(ctx, &rdb.Config{
		Mode:       conf.RedisMode,
		Addr:       conf.RedisAddr,
		MasterName: conf.RedisMasterName,
		Password:   conf.RedisPassword,
		DB:         conf.RedisDB,
	})
}
