package healthcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/halcyon-app/netstate/pkg/types"
)

const keyPrefix = "netstate:health:"

// Redis is a Store backed by Redis, letting multiple monitor instances share
// one TTL window per backend.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects to the given Redis URL and verifies the connection.
func NewRedis(redisURL string, logger *slog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		client: client,
		logger: logger.With("component", "healthcache"),
	}, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, backendID string) (types.BackendHealthRecord, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+backendID).Bytes()
	if err == redis.Nil {
		return types.BackendHealthRecord{}, false, nil // cache miss
	}
	if err != nil {
		return types.BackendHealthRecord{}, false, err
	}

	var rec types.BackendHealthRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt entry is treated as a miss; the next probe overwrites it.
		r.logger.Warn("discarding corrupt health record", "backend", backendID, "error", err)
		return types.BackendHealthRecord{}, false, nil
	}
	return rec, true, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, backendID string, rec types.BackendHealthRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+backendID, data, ttl).Err()
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, backendID string) error {
	return r.client.Del(ctx, keyPrefix+backendID).Err()
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
