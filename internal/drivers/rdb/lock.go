package rdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisLock struct {
	rdb   *Service
	key   string // unique to the resource being locked
	value string // unique to the worker holding the lock
	ttl   time.Duration
}

func (s *Service) NewLock(key, value string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb:   s,
		key:   key,
		value: value,
		ttl:   ttl,
	}
}

// TryLock sets the key only if it does not exist and reports success.
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	return l.rdb.Client.SetNX(ctx, l.key, l.value, l.ttl).Result()
}

// CheckLock checks if the caller still owns the lock.
func (l *RedisLock) CheckLock(ctx context.Context) error {

	value, err := l.rdb.Client.Get(ctx, l.key).Result()

	if err == redis.Nil {
		return fmt.Errorf("lock expired or deleted")
	}

	if err != nil {
		return fmt.Errorf("connectivity error during lock check: %w", err)
	}

	if value != l.value {
		return fmt.Errorf(
			"lock ownership hijacked by another worker (expected %s, got %s)",
			l.value, value,
		)
	}

	return nil
}

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Unlock deletes the key only while it still holds this worker's value.
func (l *RedisLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.rdb.Client, []string{l.key}, l.value).Err()
}
