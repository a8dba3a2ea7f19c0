package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "nowplaying:token:"

// RedisTokenRepository implements [models.TokenStore] with one Redis hash per subscriber.
type RedisTokenRepository struct {
	client *redis.Client
}

// NewRedisTokenRepository connects to Redis and verifies the connection.
func NewRedisTokenRepository(ctx context.Context, cfg shared.RedisConfig) (*RedisTokenRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to ping redis: %v", shared.ErrStorage, err)
	}

	return &RedisTokenRepository{client: client}, nil
}

func redisKey(subscriber string) string {
	return redisKeyPrefix + subscriber
}

// Load retrieves the credential stored for subscriber.
func (r *RedisTokenRepository) Load(ctx context.Context, subscriber string) (*models.TokenRecord, error) {
	fields, err := r.client.HGetAll(ctx, redisKey(subscriber)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read token: %v", shared.ErrStorage, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotFound, subscriber)
	}

	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt expiry for %s: %v", shared.ErrStorage, subscriber, err)
	}

	return &models.TokenRecord{
		Subscriber:   subscriber,
		AccessToken:  fields["access_token"],
		RefreshToken: fields["refresh_token"],
		Expiry:       time.Unix(expiresAt, 0).UTC(),
	}, nil
}

// Upsert overwrites the hash for the record's subscriber.
func (r *RedisTokenRepository) Upsert(ctx context.Context, record models.TokenRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	err := r.client.HSet(ctx, redisKey(record.Subscriber),
		"access_token", record.AccessToken,
		"refresh_token", record.RefreshToken,
		"expires_at", strconv.FormatInt(record.Expiry.Unix(), 10),
		"updated_at", strconv.FormatInt(time.Now().Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: failed to write token: %v", shared.ErrStorage, err)
	}
	return nil
}

// Ping verifies Redis is reachable.
func (r *RedisTokenRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client and its pool.
func (r *RedisTokenRepository) Close() error {
	return r.client.Close()
}
