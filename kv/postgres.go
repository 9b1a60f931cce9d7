package kv

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of Store.
// It uses FNV-1a hashing for fast lookups with a BIGINT primary key,
// storing the actual key for collision detection. Values are stored as BYTEA.
// Each Batch runs in its own transaction.
type PostgresStore struct {
	pool      *pgxpool.Pool
	tableName string
	schema    string
	unlogged  bool
	keyIndex  bool

	mu     sync.RWMutex
	closed bool
}

// Compile-time check to ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTableName sets the table name for the store.
// Default: "prefs" (or "prefs_unlogged")
func WithTableName(name string) PostgresOption {
	return func(s *PostgresStore) {
		s.tableName = name
	}
}

// WithSchema sets the PostgreSQL schema for the table.
// Default: "public"
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) {
		s.schema = schema
	}
}

// WithUnlogged creates an UNLOGGED table. UNLOGGED tables are faster
// but their contents are lost on crash. Default: false
func WithUnlogged(unlogged bool) PostgresOption {
	return func(s *PostgresStore) {
		s.unlogged = unlogged
	}
}

// WithKeyIndex creates an index on the key column for fast prefix searches.
// Default: false
func WithKeyIndex(enabled bool) PostgresOption {
	return func(s *PostgresStore) {
		s.keyIndex = enabled
	}
}

// NewPostgresStore creates a new PostgreSQL-backed store.
// The table must be created using CreateTable() before use.
// The pool is borrowed and is not closed by Close.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		pool:   pool,
		schema: "public",
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.tableName == "" {
		s.tableName = "prefs"
		if s.unlogged {
			s.tableName += "_unlogged"
		}
	}

	return s
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, s.tableName}.Sanitize()
}

// CreateTable creates the key-value table if it does not exist.
func (s *PostgresStore) CreateTable(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}

	unloggedClause := ""
	if s.unlogged {
		unloggedClause = "UNLOGGED"
	}

	query := fmt.Sprintf(`
		CREATE %s TABLE IF NOT EXISTS %s (
			key_hash BIGINT PRIMARY KEY,
			key TEXT NOT NULL,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, unloggedClause, s.table())

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if s.keyIndex {
		keyIdxQuery := fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s ON %s (key text_pattern_ops)
		`, pgx.Identifier{s.tableName + "_key_idx"}.Sanitize(), s.table())

		if _, err := s.pool.Exec(ctx, keyIdxQuery); err != nil {
			return fmt.Errorf("create key index: %w", err)
		}
	}

	return nil
}

// hashKey creates a deterministic 64-bit hash from a key string using FNV-1a.
func hashKey(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// Get retrieves a value by key. Returns ErrNotFound if the key doesn't exist.
// Uses key_hash for the lookup, then verifies the actual key to handle collisions.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	query := fmt.Sprintf(`
		SELECT value FROM %s
		WHERE key_hash = $1 AND key = $2
	`, s.table())

	var data []byte
	err := s.pool.QueryRow(ctx, query, hashKey(key), key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return data, nil
}

// Keys returns all keys matching the given prefix, sorted.
func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	var query string
	var args []any

	if prefix == "" {
		query = fmt.Sprintf(`SELECT key FROM %s ORDER BY key`, s.table())
	} else {
		query = fmt.Sprintf(`
			SELECT key FROM %s
			WHERE starts_with(key, $1)
			ORDER BY key
		`, s.table())
		args = append(args, prefix)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Write applies the batch inside a single transaction.
func (s *PostgresStore) Write(ctx context.Context, b *Batch) error {
	if s.isClosed() {
		return ErrClosed
	}
	if b.Len() == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	upsert := fmt.Sprintf(`
		INSERT INTO %s (key_hash, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key_hash)
		DO UPDATE SET key = EXCLUDED.key, value = EXCLUDED.value, updated_at = NOW()
	`, s.table())
	del := fmt.Sprintf(`DELETE FROM %s WHERE key_hash = $1 AND key = $2`, s.table())
	clear := fmt.Sprintf(`DELETE FROM %s`, s.table())

	for _, op := range b.Ops() {
		switch op.Kind {
		case OpPut:
			_, err = tx.Exec(ctx, upsert, hashKey(op.Key), op.Key, op.Value)
		case OpDelete:
			_, err = tx.Exec(ctx, del, hashKey(op.Key), op.Key)
		case OpClear:
			_, err = tx.Exec(ctx, clear)
		}
		if err != nil {
			return fmt.Errorf("%s %q: %w", op.Kind, op.Key, err)
		}
	}

	return tx.Commit(ctx)
}

// Close marks the store as closed; later calls fail with ErrClosed. It does
// NOT close the pool as it may be shared with other components.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

func (s *PostgresStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
