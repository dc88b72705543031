package valkey

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/creditpath/captchad/lib/store"
	valkey "github.com/redis/go-redis/v9"
)

// Store keeps values in valkey with native key expiry.
type Store struct {
	rdb *valkey.Client
}

func notFound(key string, err error) error {
	if errors.Is(err, valkey.Nil) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return nil
}

// Close closes the client connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.rdb.Del(ctx, key).Result(); err != nil {
		return fmt.Errorf("can't delete from valkey: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if nf := notFound(key, err); nf != nil {
			return nil, nf
		}

		return nil, fmt.Errorf("can't fetch from valkey: %w", err)
	}

	return result, nil
}

// GetDel uses the GETDEL command, which valkey executes atomically.
func (s *Store) GetDel(ctx context.Context, key string) ([]byte, error) {
	result, err := s.rdb.GetDel(ctx, key).Bytes()
	if err != nil {
		if nf := notFound(key, err); nf != nil {
			return nil, nf
		}

		return nil, fmt.Errorf("can't getdel from valkey: %w", err)
	}

	return result, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	if _, err := s.rdb.Set(ctx, key, value, expiry).Result(); err != nil {
		return fmt.Errorf("can't set %q in valkey: %w", key, err)
	}

	return nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// Keys walks the keyspace with SCAN so large databases are not blocked.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var result []string

	iter := s.rdb.Scan(ctx, 0, globEscaper.Replace(prefix)+"*", 256).Iterator()
	for iter.Next(ctx) {
		result = append(result, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("can't scan valkey keys: %w", err)
	}

	return sortedUnique(result), nil
}

// sortedUnique sorts keys and drops repeats. SCAN may return a key more than
// once while the keyspace is rehashing.
func sortedUnique(keys []string) []string {
	slices.Sort(keys)
	return slices.Compact(keys)
}

// Cleanup is a no-op because valkey expires keys on its own.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	return 0, nil
}
