package webtoonquiz

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBlobStore keeps blobs as plain Redis string values.
type RedisBlobStore struct {
	client *redis.Client
}

// NewRedisBlobStore connects to addr and verifies the connection.
func NewRedisBlobStore(ctx context.Context, addr, password string, db int) (*RedisBlobStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	Log.Sugar().Infof("Redis connection established (%s, db %d)", addr, db)
	return &RedisBlobStore{client: client}, nil
}

func (r *RedisBlobStore) Close() error {
	return r.client.Close()
}

func (r *RedisBlobStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, true, nil
}

func (r *RedisBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}
