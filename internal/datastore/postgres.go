// Package datastore persists agent records in Postgres and caches opaque
// values in Redis.
package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrNotFound is returned when a key has no stored record.
var ErrNotFound = errors.New("record not found")

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Record is one stored document.
type Record struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	ContentType string          `json:"content_type,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RecordStore defines the persistence operations for records.
type RecordStore interface {
	Store(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, key string) (Record, error)
	List(ctx context.Context, prefix string, limit int) ([]Record, error)
	Delete(ctx context.Context, key string) error
	Close()
}

// PostgresStore implements RecordStore on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("datastore: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("datastore: ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate brings the schema up to date using the embedded migrations.
func (s *PostgresStore) Migrate() error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	return RunMigrations(db)
}

// Store upserts a record. The returned record carries the authoritative
// timestamps assigned by the database.
func (s *PostgresStore) Store(ctx context.Context, rec Record) (Record, error) {
	if rec.Key == "" {
		return Record{}, errors.New("datastore: store: key is empty")
	}
	if !json.Valid(rec.Value) {
		return Record{}, fmt.Errorf("datastore: store %s: value is not valid JSON", rec.Key)
	}
	if rec.ContentType == "" {
		rec.ContentType = "application/json"
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO records (key, value, content_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, content_type = EXCLUDED.content_type, updated_at = now()
		RETURNING key, value, content_type, created_at, updated_at`,
		rec.Key, rec.Value, rec.ContentType)

	var stored Record
	if err := row.Scan(&stored.Key, &stored.Value, &stored.ContentType, &stored.CreatedAt, &stored.UpdatedAt); err != nil {
		return Record{}, fmt.Errorf("datastore: store %s: %w", rec.Key, err)
	}
	return stored, nil
}

// Get returns the record for key, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, key string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT key, value, content_type, created_at, updated_at
		FROM records WHERE key = $1`, key)

	var rec Record
	if err := row.Scan(&rec.Key, &rec.Value, &rec.ContentType, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("datastore: get %s: %w", key, ErrNotFound)
		}
		return Record{}, fmt.Errorf("datastore: get %s: %w", key, err)
	}
	return rec, nil
}

// List returns records whose key starts with prefix, ordered by key. An
// empty prefix lists everything up to limit.
func (s *PostgresStore) List(ctx context.Context, prefix string, limit int) ([]Record, error) {
	limit = normalizeLimit(limit)

	rows, err := s.pool.Query(ctx, `
		SELECT key, value, content_type, created_at, updated_at
		FROM records WHERE starts_with(key, $1)
		ORDER BY key LIMIT $2`, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("datastore: list %q: %w", prefix, err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Value, &rec.ContentType, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("datastore: list %q: %w", prefix, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("datastore: list %q: %w", prefix, err)
	}
	return recs, nil
}

// Delete removes the record for key, or returns ErrNotFound.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("datastore: delete %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("datastore: delete %s: %w", key, ErrNotFound)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
