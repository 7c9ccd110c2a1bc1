package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown 基于 Redis 的固定冷却窗口，用于验证码重发等低频操作。
//
// 同一个 key 在窗口内只允许通过一次，窗口由 Redis TTL 维护，
// 多实例部署时天然共享状态。
type Cooldown struct {
	rdb    *redis.Client
	prefix string
	window time.Duration
}

// NewCooldown 创建冷却窗口限制器。
func NewCooldown(rdb *redis.Client, prefix string, window time.Duration) *Cooldown {
	if prefix == "" {
		prefix = "culinary_canvas:cooldown:"
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Cooldown{
		rdb:    rdb,
		prefix: prefix,
		window: window,
	}
}

// Allow 尝试占用 key 的冷却窗口。
//
// 返回值:
//
//	bool: 是否允许本次操作
//	time.Duration: 被拒绝时距窗口结束的剩余时间
func (c *Cooldown) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if c == nil || c.rdb == nil || key == "" {
		return true, 0, nil
	}

	full := c.prefix + key
	ok, err := c.rdb.SetNX(ctx, full, "1", c.window).Result()
	if err != nil {
		return false, 0, fmt.Errorf("cooldown setnx: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	remain, err := c.rdb.TTL(ctx, full).Result()
	if err != nil || remain < 0 {
		remain = c.window
	}
	return false, remain, nil
}

// Reset 提前结束 key 的冷却窗口（主要用于测试与人工干预）。
func (c *Cooldown) Reset(ctx context.Context, key string) error {
	if c == nil || c.rdb == nil || key == "" {
		return nil
	}
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("cooldown del: %w", err)
	}
	return nil
}
