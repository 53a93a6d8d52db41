package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisScanBatch = 500

// RedisEngine stores entries in Redis, suitable as a shared engine for
// several processes. Values are JSON encoded.
type RedisEngine struct {
	*Base
	client *redis.Client
}

// RedisConfig holds connection settings for the Redis engine.
type RedisConfig struct {
	Addr     string `yaml:"addr"` // Redis address (e.g. "localhost:6379")
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NewRedisEngine creates a Redis-backed engine.
func NewRedisEngine(s Settings, cfg RedisConfig) *RedisEngine {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisEngineFromClient(s, client)
}

// NewRedisEngineFromClient creates a Redis engine using an existing client.
func NewRedisEngineFromClient(s Settings, client *redis.Client) *RedisEngine {
	return &RedisEngine{Base: newBase(s), client: client}
}

// Client exposes the underlying client, e.g. for pub/sub invalidation.
func (e *RedisEngine) Client() *redis.Client { return e.client }

func (e *RedisEngine) Read(ctx context.Context, key string) (any, error) {
	data, err := e.client.Get(ctx, e.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Miss, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeValue(data)
}

func (e *RedisEngine) Write(ctx context.Context, key string, value any) (bool, error) {
	return e.WriteTTL(ctx, key, value, e.Duration())
}

func (e *RedisEngine) WriteTTL(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	data, err := encodeValue(value)
	if err != nil {
		return false, err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := e.client.Set(ctx, e.key(key), data, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (e *RedisEngine) Delete(ctx context.Context, key string) (bool, error) {
	if err := e.client.Del(ctx, e.key(key)).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// Clear deletes the keys under this engine's prefix, or flushes the
// selected database when scoped is false.
func (e *RedisEngine) Clear(ctx context.Context, scoped bool) (bool, error) {
	if !scoped {
		if err := e.client.FlushDB(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}
	return e.ClearPrefix(ctx, "")
}

func (e *RedisEngine) ClearPrefix(ctx context.Context, prefix string) (bool, error) {
	iter := e.client.Scan(ctx, 0, globEscape(e.key(prefix))+"*", redisScanBatch).Iterator()
	batch := make([]string, 0, redisScanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanBatch {
			if err := e.client.Del(ctx, batch...).Err(); err != nil {
				return false, err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return false, err
	}
	if len(batch) > 0 {
		if err := e.client.Del(ctx, batch...).Err(); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *RedisEngine) ReadMany(ctx context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = e.key(k)
	}
	vals, err := e.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		s, ok := vals[i].(string)
		if !ok {
			out[k] = Miss
			continue
		}
		v, err := decodeValue([]byte(s))
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (e *RedisEngine) WriteMany(ctx context.Context, values map[string]any) (bool, error) {
	return e.WriteManyTTL(ctx, values, e.Duration())
}

func (e *RedisEngine) WriteManyTTL(ctx context.Context, values map[string]any, ttl time.Duration) (bool, error) {
	if len(values) == 0 {
		return true, nil
	}
	if ttl < 0 {
		ttl = 0
	}
	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		data, err := encodeValue(v)
		if err != nil {
			return false, err
		}
		encoded[e.key(k)] = data
	}
	_, err := e.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, data := range encoded {
			pipe.Set(ctx, k, data, ttl)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *RedisEngine) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = e.key(k)
	}
	if err := e.client.Del(ctx, full...).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (e *RedisEngine) Ping(ctx context.Context) error {
	return e.client.Ping(ctx).Err()
}

func (e *RedisEngine) Close() error {
	return e.client.Close()
}

// globEscape quotes the SCAN MATCH metacharacters in s.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
