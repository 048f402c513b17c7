package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// снимаем блокировку, только если она всё ещё наша
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// продлеваем только свою блокировку
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// TryLock пытается занять блокировку на ttl. Возвращает токен владельца.
func (c *Cache) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	const op = "cache.TryLock"
	token := uuid.NewString()
	ok, err := c.Db.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock освобождает блокировку, если токен совпадает
func (c *Cache) Unlock(ctx context.Context, key, token string) error {
	const op = "cache.Unlock"
	if err := unlockScript.Run(ctx, c.Db, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Refresh продлевает блокировку на ttl. false, если блокировка уже не наша.
func (c *Cache) Refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	const op = "cache.Refresh"
	n, err := refreshScript.Run(ctx, c.Db, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}
