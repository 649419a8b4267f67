package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps each snapshot as a plain string value.
type RedisStorage struct {
	client *redis.Client
	prefix string
}

// NewRedisStorage connects to addr (host:port or a redis:// URL) and pings it.
func NewRedisStorage(addr, password string, db int) (*RedisStorage, error) {
	var opts *redis.Options
	if parsed, err := redis.ParseURL(addr); err == nil {
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{client: client, prefix: "medtrack:"}, nil
}

func (rs *RedisStorage) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := rs.client.Get(ctx, rs.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

func (rs *RedisStorage) Write(ctx context.Context, key string, data []byte) error {
	if err := rs.client.Set(ctx, rs.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
