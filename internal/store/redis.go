package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pfctl/pkg/logging"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

const (
	defaultRedisKeyPrefix = "pfctl:"
	maxRedisTxRetries     = 10
)

// RedisKV shares the session cache between machines or containers through
// Redis. Updates use WATCH/MULTI and are retried when another writer wins.
type RedisKV struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisKV connects to Redis and verifies the connection.
func NewRedisKV(cfg RedisConfig) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logging.Debug("RedisStore", "Redis session store connected to %s", cfg.Addr)
	return newRedisKVWithClient(client, cfg.KeyPrefix), nil
}

func newRedisKVWithClient(client redis.UniversalClient, keyPrefix string) *RedisKV {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisKV{client: client, keyPrefix: keyPrefix}
}

func (r *RedisKV) redisKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return value, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.redisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Update(ctx context.Context, key string, fn UpdateFunc) error {
	rk := r.redisKey(key)

	txf := func(tx *redis.Tx) error {
		value, err := tx.Get(ctx, rk).Result()
		found := true
		if errors.Is(err, redis.Nil) {
			found = false
		} else if err != nil {
			return err
		}

		next, err := fn(value, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxRedisTxRetries; i++ {
		err := r.client.Watch(ctx, txf, rk)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			logging.Debug("RedisStore", "Optimistic update of %q lost a race, retrying (%d/%d)", key, i+1, maxRedisTxRetries)
			continue
		}
		return fmt.Errorf("failed to update %q: %w", key, err)
	}
	return fmt.Errorf("%w: %q after %d attempts", ErrConflict, key, maxRedisTxRetries)
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}
