package rdb

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Service struct {
	Client *redis.Client
}

// New creates a Redis service for addr ("host:port").
func New(addr, password string) (*Service, error) {
	if addr == "" {
		return nil, errors.New("unable to create Redis service without an address")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	return &Service{rdb}, nil
}

func (rs *Service) Ping(ctx context.Context) (string, error) {
	return rs.Client.Ping(ctx).Result()
}

func (rs *Service) Close() error {
	return rs.Client.Close()
}

// Health reports connectivity and basic server stats.
func (rs *Service) Health(ctx context.Context) map[string]any {

	start := time.Now()

	ping, err := rs.Client.Ping(ctx).Result()
	if err != nil {
		return map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		}
	}

	keyCount, _ := rs.Client.DBSize(ctx).Result()

	return map[string]any{
		"status":      "healthy",
		"ping":        ping,
		"response_ms": time.Since(start).Milliseconds(),
		"total_keys":  keyCount,
	}
}
