package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/config"
)

// Client Redis 客户端封装
// 当前用于定时任务的分布式锁，多实例部署时同一任务同一时刻只跑一份
type Client struct {
	rdb    *goredis.Client
	logger *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	return &Client{rdb: rdb, logger: logger}, nil
}

// ── 任务锁 ──

const lockPrefix = "paca:job:lock:"

// 只删除自己持有的锁，避免锁过期后误删他人的锁
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock 尝试获取任务锁；已被占用时返回 ok=false
// 成功时返回的 unlock 用于释放锁
func (c *Client) TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), ok bool, err error) {
	key := lockPrefix + name
	token := uuid.NewString()

	ok, err = c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("获取任务锁失败: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock = func() {
		// 释放锁不受调用方 ctx 取消影响
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, c.rdb, []string{key}, token).Err(); err != nil {
			c.logger.Warn("释放任务锁失败", zap.String("key", key), zap.Error(err))
		}
	}
	return unlock, true, nil
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
