package verifycode

import (
	"context"
	"crypto/rand"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "culinary_canvas:email_verify:"

// Ledger 是邮箱验证码的短时存储，独立于关系库。
//
// 验证码带 TTL 写入 Redis，首次匹配成功后立即删除；
// 未匹配或过期的码不会向调用方区分"错误"与"不存在"。
type Ledger struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLedger 创建验证码存储。
func NewLedger(rdb *redis.Client, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Ledger{
		rdb: rdb,
		ttl: ttl,
	}
}

// Set 写入用户的验证码并设置过期时间，旧码被覆盖。
func (l *Ledger) Set(ctx context.Context, userID uint, code string) error {
	if err := l.rdb.Set(ctx, key(userID), code, l.ttl).Err(); err != nil {
		return fmt.Errorf("verifycode set: %w", err)
	}
	return nil
}

// Consume 校验验证码。匹配成功时删除记录并返回 true；
// 码不存在、已过期或不匹配时返回 false（不删除现有码）。
func (l *Ledger) Consume(ctx context.Context, userID uint, code string) (bool, error) {
	stored, err := l.rdb.Get(ctx, key(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("verifycode get: %w", err)
	}
	if stored == "" || stored != code {
		return false, nil
	}
	if err := l.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return false, fmt.Errorf("verifycode del: %w", err)
	}
	return true, nil
}

// TTL 返回配置的验证码有效期。
func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

func key(userID uint) string {
	return keyPrefix + strconv.FormatUint(uint64(userID), 10)
}

// Generate 生成 n 位随机数字验证码。
func Generate(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid code length")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = '0' + (buf[i] % 10)
	}
	return string(buf), nil
}
