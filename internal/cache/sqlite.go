package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLite stores compressed documents in the fetch_cache table created by
// the migrate package. Rows past expires_at are misses and are removed on
// read.
type SQLite struct {
	db     *sql.DB
	now    Clock
	ownsDB bool
}

// NewSQLite wraps an open, migrated database. A nil clock means time.Now.
func NewSQLite(db *sql.DB, now Clock) *SQLite {
	if now == nil {
		now = time.Now
	}
	return &SQLite{db: db, now: now}
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		blob      []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM fetch_cache WHERE cache_key = ?`, key,
	).Scan(&blob, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite cache get %s: %w", key, err)
	}

	if s.now().UnixMilli() >= expiresAt {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM fetch_cache WHERE cache_key = ? AND expires_at = ?`, key, expiresAt,
		); err != nil {
			return nil, false, fmt.Errorf("sqlite cache expire %s: %w", key, err)
		}
		return nil, false, nil
	}

	value, err := decompress(blob)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite cache get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	blob, err := compress(value)
	if err != nil {
		return err
	}
	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fetch_cache (cache_key, value, expires_at, stored_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			stored_at = excluded.stored_at
	`, key, blob, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite cache set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fetch_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("sqlite cache delete %s: %w", key, err)
	}
	return nil
}

// Purge removes every expired row and reports how many were deleted.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fetch_cache WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite cache purge: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database only when Open created it.
func (s *SQLite) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
