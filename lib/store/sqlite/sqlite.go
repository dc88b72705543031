package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creditpath/captchad/lib/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv(expires_at);
`

// Store keeps values in a single SQLite table. Expiry is stored as unix
// nanoseconds and every read filters on it.
type Store struct {
	db  *sql.DB
	now func() time.Time

	// writeMu serializes writers so WAL snapshot upgrades never fail with SQLITE_BUSY.
	writeMu sync.Mutex
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("can't delete %q from sqlite: %w", key, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	now := s.now().UnixNano()

	var (
		value     []byte
		expiresAt int64
	)

	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("can't fetch %q from sqlite: %w", key, err)
	}

	if expiresAt <= now {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ? AND expires_at <= ?`, key, now); err != nil {
			return nil, fmt.Errorf("can't remove expired %q from sqlite: %w", key, err)
		}
		return nil, fmt.Errorf("%w: %q (expired)", store.ErrNotFound, key)
	}

	return value, nil
}

// GetDel relies on DELETE ... RETURNING so the read and removal are one
// statement; SQLite serializes writers.
func (s *Store) GetDel(ctx context.Context, key string) ([]byte, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now().UnixNano()

	var (
		value     []byte
		expiresAt int64
	)

	err := s.db.QueryRowContext(ctx, `DELETE FROM kv WHERE key = ? RETURNING value, expires_at`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("can't getdel %q from sqlite: %w", key, err)
	}

	if expiresAt <= now {
		return nil, fmt.Errorf("%w: %q (expired)", store.ErrNotFound, key)
	}

	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	expiresAt := s.now().Add(expiry).UnixNano()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	); err != nil {
		return fmt.Errorf("%w: can't set %q in sqlite: %w", store.ErrCantEncode, key, err)
	}

	return nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv
		WHERE substr(key, 1, length(?1)) = ?1 AND expires_at > ?2
		ORDER BY key`,
		prefix, s.now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("can't list sqlite keys: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		result = append(result, key)
	}

	return result, rows.Err()
}

func (s *Store) Cleanup(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("can't clean up sqlite: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(n), nil
}
