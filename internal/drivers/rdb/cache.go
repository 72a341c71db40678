package rdb

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// GetItems returns the cached value for cacheKey, calling callable on a
// miss and caching its result. Redis errors are logged and never returned;
// the cache only ever degrades to calling through. T must implement
// encoding.BinaryMarshaler/BinaryUnmarshaler when it is not a basic type.
func GetItems[T any](
	ctx context.Context,
	rdb *Service,
	cacheKey string,
	cacheTimeout time.Duration,
	callable func() (T, error),
) (T, error) {

	var zero, data T

	if rdb == nil {
		return callable()
	}

	err := rdb.Client.Get(ctx, cacheKey).Scan(&data)
	if err == nil {
		return data, nil
	}

	if !errors.Is(err, redis.Nil) {
		logrus.WithError(err).WithField("key", cacheKey).Warn("redis get failed")
	}

	data, err = callable()
	if err != nil {
		return zero, err
	}

	if err = rdb.Client.Set(ctx, cacheKey, data, cacheTimeout).Err(); err != nil {
		logrus.WithError(err).WithField("key", cacheKey).Warn("redis set failed")
	}

	return data, nil
}
