package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is an interface that both pgxpool.Pool and pgx.Tx implement
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresBackend stores encoded values in the controller_storage table
// (see migrations/).
type PostgresBackend struct {
	pool  *pgxpool.Pool
	db    DBTX
	codec Codec
}

// NewPostgresBackend connects to dsn and verifies the connection.
func NewPostgresBackend(ctx context.Context, dsn string, codec Codec) (*PostgresBackend, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, newError("open", KindUnavailable, fmt.Errorf("failed to parse database DSN: %w", err))
	}

	// Set pool configuration
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, newError("open", KindUnavailable, fmt.Errorf("failed to create database pool: %w", err))
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, newError("open", KindUnavailable, fmt.Errorf("failed to ping database: %w", err))
	}

	b := NewPostgresBackendWithDB(pool, codec)
	b.pool = pool
	return b, nil
}

// NewPostgresBackendWithDB runs queries on db, which may be a transaction.
func NewPostgresBackendWithDB(db DBTX, codec Codec) *PostgresBackend {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &PostgresBackend{db: db, codec: codec}
}

// Close closes the database connection pool, if this backend owns one
func (b *PostgresBackend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func (b *PostgresBackend) Set(ctx context.Context, key string, value Value) error {
	data, err := b.codec.Encode(ctx, key, value)
	if err != nil {
		return newError("set", KindSerialization, err)
	}

	_, err = b.db.Exec(ctx, `
		INSERT INTO controller_storage (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, data)
	if err != nil {
		return newError("set", KindOperationFailed, fmt.Errorf("failed to upsert %s: %w", key, err))
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, key string) (*Value, error) {
	var data []byte
	err := b.db.QueryRow(ctx, `SELECT value FROM controller_storage WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, newError("get", KindOperationFailed, fmt.Errorf("failed to query %s: %w", key, err))
	}

	v, err := b.codec.Decode(ctx, key, data)
	if err != nil {
		return nil, newError("get", KindSerialization, err)
	}
	return v, nil
}

func (b *PostgresBackend) Remove(ctx context.Context, key string) error {
	if _, err := b.db.Exec(ctx, `DELETE FROM controller_storage WHERE key = $1`, key); err != nil {
		return newError("remove", KindOperationFailed, fmt.Errorf("failed to delete %s: %w", key, err))
	}
	return nil
}

func (b *PostgresBackend) Clear(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, `DELETE FROM controller_storage`); err != nil {
		return newError("clear", KindOperationFailed, err)
	}
	return nil
}

func (b *PostgresBackend) Keys(ctx context.Context) ([]string, error) {
	rows, err := b.db.Query(ctx, `SELECT key FROM controller_storage ORDER BY key`)
	if err != nil {
		return nil, newError("keys", KindOperationFailed, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, newError("keys", KindOperationFailed, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, newError("keys", KindOperationFailed, err)
	}
	return keys, nil
}

var _ Backend = (*PostgresBackend)(nil)
