package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Codec defines methods for encoding and decoding values stored in Redis.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec implements Codec using encoding/json.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Redis implements Store using a Redis backend with per-key TTLs.
type Redis[T any] struct {
	client *redis.Client
	codec  Codec
}

// NewRedis returns a new Redis store using the provided client.
// If codec is nil, JSONCodec is used by default.
func NewRedis[T any](client *redis.Client, codec Codec) *Redis[T] {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Redis[T]{client: client, codec: codec}
}

// Get retrieves the value for the given key. A missing key and an
// undecodable payload are both misses; only transport faults error.
func (r *Redis[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := r.codec.Unmarshal(data, &v); err != nil {
		return zero, false, nil
	}
	return v, true, nil
}

// Set stores the value for the given key for the specified TTL.
func (r *Redis[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := r.codec.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Invalidate removes the keys from Redis. Deleting absent keys is a no-op.
func (r *Redis[T]) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
