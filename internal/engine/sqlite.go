package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SQLiteEngine stores entries in an embedded SQLite database through gorm.
// The driver is pure Go, so the engine needs no cgo.
type SQLiteEngine struct {
	*Base
	db *gorm.DB
}

// SQLiteConfig locates the database. ":memory:" keeps it in process.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default ":memory:"
}

type sqliteEntry struct {
	Key       string `gorm:"column:cache_key;primaryKey"`
	Value     []byte `gorm:"column:value;not null"`
	ExpiresAt int64  `gorm:"column:expires_at;index"` // unix nanoseconds, 0 = never
}

func (sqliteEntry) TableName() string { return "cache_entries" }

func NewSQLiteEngine(s Settings, cfg SQLiteConfig) (*SQLiteEngine, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// every connection to ":memory:" would see its own empty database
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&sqliteEntry{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return &SQLiteEngine{Base: newBase(s), db: db}, nil
}

func (e *SQLiteEngine) live(ctx context.Context) *gorm.DB {
	return e.db.WithContext(ctx).
		Where("expires_at = 0 OR expires_at > ?", time.Now().UnixNano())
}

func (e *SQLiteEngine) Read(ctx context.Context, key string) (any, error) {
	var row sqliteEntry
	err := e.live(ctx).Where("cache_key = ?", e.key(key)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Miss, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeValue(row.Value)
}

func (e *SQLiteEngine) Write(ctx context.Context, key string, value any) (bool, error) {
	return e.WriteTTL(ctx, key, value, e.Duration())
}

func (e *SQLiteEngine) WriteTTL(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return e.WriteManyTTL(ctx, map[string]any{key: value}, ttl)
}

func (e *SQLiteEngine) Delete(ctx context.Context, key string) (bool, error) {
	return e.DeleteMany(ctx, []string{key})
}

func (e *SQLiteEngine) Clear(ctx context.Context, scoped bool) (bool, error) {
	if scoped {
		return e.ClearPrefix(ctx, "")
	}
	q := e.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := q.Delete(&sqliteEntry{}).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (e *SQLiteEngine) ClearPrefix(ctx context.Context, prefix string) (bool, error) {
	q := e.db.WithContext(ctx).Where(`cache_key LIKE ? ESCAPE '\'`, likePrefix(e.key(prefix)))
	if err := q.Delete(&sqliteEntry{}).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (e *SQLiteEngine) ReadMany(ctx context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	byFull := make(map[string]string, len(keys))
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = e.key(k)
		byFull[full[i]] = k
		out[k] = Miss
	}
	var rows []sqliteEntry
	if err := e.live(ctx).Where("cache_key IN ?", full).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		v, err := decodeValue(row.Value)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", row.Key, err)
		}
		out[byFull[row.Key]] = v
	}
	return out, nil
}

func (e *SQLiteEngine) WriteMany(ctx context.Context, values map[string]any) (bool, error) {
	return e.WriteManyTTL(ctx, values, e.Duration())
}

func (e *SQLiteEngine) WriteManyTTL(ctx context.Context, values map[string]any, ttl time.Duration) (bool, error) {
	if len(values) == 0 {
		return true, nil
	}
	var exp int64
	if at := expiresAt(ttl); !at.IsZero() {
		exp = at.UnixNano()
	}
	rows := make([]sqliteEntry, 0, len(values))
	for k, v := range values {
		data, err := encodeValue(v)
		if err != nil {
			return false, err
		}
		rows = append(rows, sqliteEntry{Key: e.key(k), Value: data, ExpiresAt: exp})
	}
	err := e.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *SQLiteEngine) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = e.key(k)
	}
	if err := e.db.WithContext(ctx).Where("cache_key IN ?", full).Delete(&sqliteEntry{}).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (e *SQLiteEngine) Ping(ctx context.Context) error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (e *SQLiteEngine) Close() error {
	sqlDB, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
