package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltEngine persists entries in a single bbolt file. Each stored record is
// laid out as an 8 byte big endian expiry (unix seconds, 0 = never)
// followed by the JSON encoded value.
type BoltEngine struct {
	*Base
	db     *bolt.DB
	bucket []byte
}

// BoltConfig locates the database file.
type BoltConfig struct {
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"` // default "cache"
}

// NewBoltEngine opens or creates the database at cfg.Path.
func NewBoltEngine(s Settings, cfg BoltConfig) (*BoltEngine, error) {
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", cfg.Path, err)
	}
	bucket := []byte("cache")
	if cfg.Bucket != "" {
		bucket = []byte(cfg.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltEngine{Base: newBase(s), db: db, bucket: bucket}, nil
}

func (e *BoltEngine) Read(ctx context.Context, key string) (any, error) {
	out, err := e.ReadMany(ctx, []string{key})
	if err != nil {
		return nil, err
	}
	return out[key], nil
}

func (e *BoltEngine) Write(ctx context.Context, key string, value any) (bool, error) {
	return e.WriteTTL(ctx, key, value, e.Duration())
}

func (e *BoltEngine) WriteTTL(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return e.WriteManyTTL(ctx, map[string]any{key: value}, ttl)
}

func (e *BoltEngine) Delete(ctx context.Context, key string) (bool, error) {
	return e.DeleteMany(ctx, []string{key})
}

// Clear removes the keys under this engine's prefix, or recreates the
// bucket when scoped is false.
func (e *BoltEngine) Clear(ctx context.Context, scoped bool) (bool, error) {
	if scoped {
		return e.ClearPrefix(ctx, "")
	}
	err := e.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(e.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(e.bucket)
		return err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *BoltEngine) ClearPrefix(_ context.Context, prefix string) (bool, error) {
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(e.bucket)
		scope := []byte(e.key(prefix))
		var doomed [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(scope); k != nil && bytes.HasPrefix(k, scope); k, _ = c.Next() {
			doomed = append(doomed, append([]byte(nil), k...))
		}
		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *BoltEngine) ReadMany(_ context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	now := time.Now().Unix()
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(e.bucket)
		for _, k := range keys {
			raw := b.Get([]byte(e.key(k)))
			if len(raw) < 8 {
				out[k] = Miss
				continue
			}
			exp := int64(binary.BigEndian.Uint64(raw[:8]))
			if exp > 0 && now > exp {
				out[k] = Miss
				continue
			}
			v, err := decodeValue(raw[8:])
			if err != nil {
				return fmt.Errorf("decode %q: %w", k, err)
			}
			out[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *BoltEngine) WriteMany(ctx context.Context, values map[string]any) (bool, error) {
	return e.WriteManyTTL(ctx, values, e.Duration())
}

func (e *BoltEngine) WriteManyTTL(_ context.Context, values map[string]any, ttl time.Duration) (bool, error) {
	var exp int64
	if at := expiresAt(ttl); !at.IsZero() {
		exp = at.Unix()
	}
	records := make(map[string][]byte, len(values))
	for k, v := range values {
		data, err := encodeValue(v)
		if err != nil {
			return false, err
		}
		buf := make([]byte, 8+len(data))
		binary.BigEndian.PutUint64(buf[:8], uint64(exp))
		copy(buf[8:], data)
		records[e.key(k)] = buf
	}
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(e.bucket)
		for k, buf := range records {
			if err := b.Put([]byte(k), buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *BoltEngine) DeleteMany(_ context.Context, keys []string) (bool, error) {
	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(e.bucket)
		for _, k := range keys {
			if err := b.Delete([]byte(e.key(k))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *BoltEngine) Ping(_ context.Context) error {
	return e.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(e.bucket) == nil {
			return fmt.Errorf("bolt bucket %q missing", e.bucket)
		}
		return nil
	})
}

func (e *BoltEngine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}
