package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection parameters for the Redis instance used
// for execution claims and trigger dedup.
type RedisConfig struct {
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     string `mapstructure:"port" json:"port,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	DB       int    `mapstructure:"db" json:"db,omitempty"`
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type RedisStorage struct {
	cfg    RedisConfig
	client *redis.Client
}

func NewRedisStorage(cfg RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.User,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	status := client.Ping(context.Background())
	if status.Err() != nil {
		return nil, status.Err()
	}
	return &RedisStorage{
		cfg:    cfg,
		client: client,
	}, nil
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisStorage) Set(ctx context.Context, key string, value string, expiry time.Duration) error {
	return r.client.Set(ctx, key, value, expiry).Err()
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// ClaimExecution takes a short-lived per-config lock so that two overlapping
// batch invocations cannot execute the same config twice. Returns false when
// another invocation already holds the claim.
func (r *RedisStorage) ClaimExecution(ctx context.Context, configID string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, claimKey(configID), "in_progress", ttl).Result()
}

// ReleaseExecution drops the claim once the attempt finished, successful or not.
func (r *RedisStorage) ReleaseExecution(ctx context.Context, configID string) error {
	return r.client.Del(ctx, claimKey(configID)).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

func claimKey(configID string) string {
	return "dca:claim:" + configID
}
