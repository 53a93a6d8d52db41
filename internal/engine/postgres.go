package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEngine stores entries as JSONB rows. Expired rows are filtered
// on read and purged lazily by writes to the same key or by Clear.
type PostgresEngine struct {
	*Base
	pool  *pgxpool.Pool
	table string
}

// PostgresConfig holds connection settings for the Postgres engine.
type PostgresConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"` // default "cache_entries"
}

func NewPostgresEngine(ctx context.Context, s Settings, cfg PostgresConfig) (*PostgresEngine, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "cache_entries"
	}
	e := &PostgresEngine{
		Base:  newBase(s),
		pool:  pool,
		table: pgx.Identifier{table}.Sanitize(),
	}
	if err := e.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := e.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return e, nil
}

func (e *PostgresEngine) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + e.table + ` (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			expires_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{strings.Trim(e.table, `"`) + "_expires_at"}.Sanitize() +
			` ON ` + e.table + ` (expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := e.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (e *PostgresEngine) Read(ctx context.Context, key string) (any, error) {
	var data []byte
	err := e.pool.QueryRow(ctx,
		`SELECT value FROM `+e.table+` WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		e.key(key),
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Miss, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeValue(data)
}

func (e *PostgresEngine) Write(ctx context.Context, key string, value any) (bool, error) {
	return e.WriteTTL(ctx, key, value, e.Duration())
}

func (e *PostgresEngine) WriteTTL(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return e.WriteManyTTL(ctx, map[string]any{key: value}, ttl)
}

func (e *PostgresEngine) Delete(ctx context.Context, key string) (bool, error) {
	return e.DeleteMany(ctx, []string{key})
}

// Clear deletes the rows under this engine's prefix, or truncates the
// table when scoped is false.
func (e *PostgresEngine) Clear(ctx context.Context, scoped bool) (bool, error) {
	if scoped {
		return e.ClearPrefix(ctx, "")
	}
	if _, err := e.pool.Exec(ctx, `TRUNCATE `+e.table); err != nil {
		return false, err
	}
	return true, nil
}

func (e *PostgresEngine) ClearPrefix(ctx context.Context, prefix string) (bool, error) {
	_, err := e.pool.Exec(ctx, `DELETE FROM `+e.table+` WHERE key LIKE $1 ESCAPE '\'`, likePrefix(e.key(prefix)))
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *PostgresEngine) ReadMany(ctx context.Context, keys []string) (map[string]any, error) {
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
	rows, err := e.pool.Query(ctx,
		`SELECT key, value FROM `+e.table+` WHERE key = ANY($1) AND (expires_at IS NULL OR expires_at > now())`,
		full,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k    string
			data []byte
		)
		if err := rows.Scan(&k, &data); err != nil {
			return nil, err
		}
		v, err := decodeValue(data)
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", k, err)
		}
		out[byFull[k]] = v
	}
	return out, rows.Err()
}

func (e *PostgresEngine) WriteMany(ctx context.Context, values map[string]any) (bool, error) {
	return e.WriteManyTTL(ctx, values, e.Duration())
}

func (e *PostgresEngine) WriteManyTTL(ctx context.Context, values map[string]any, ttl time.Duration) (bool, error) {
	if len(values) == 0 {
		return true, nil
	}
	var exp *time.Time
	if at := expiresAt(ttl); !at.IsZero() {
		exp = &at
	}
	batch := &pgx.Batch{}
	for k, v := range values {
		data, err := encodeValue(v)
		if err != nil {
			return false, err
		}
		batch.Queue(
			`INSERT INTO `+e.table+` (key, value, expires_at) VALUES ($1, $2, $3)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
			e.key(k), data, exp,
		)
	}
	if err := e.pool.SendBatch(ctx, batch).Close(); err != nil {
		return false, err
	}
	return true, nil
}

func (e *PostgresEngine) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = e.key(k)
	}
	if _, err := e.pool.Exec(ctx, `DELETE FROM `+e.table+` WHERE key = ANY($1)`, full); err != nil {
		return false, err
	}
	return true, nil
}

func (e *PostgresEngine) Ping(ctx context.Context) error {
	if e.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return e.pool.Ping(ctx)
}

func (e *PostgresEngine) Close() error {
	if e.pool != nil {
		e.pool.Close()
	}
	return nil
}

// likePrefix escapes LIKE metacharacters in prefix and appends a wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
