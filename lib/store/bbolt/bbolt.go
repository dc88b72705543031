package bbolt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/creditpath/captchad/lib/store"
	"go.etcd.io/bbolt"
)

var (
	dataKey   = []byte("data")
	expiryKey = []byte("expiry")
)

// Store implements store.Interface backed by bbolt[1].
//
// Every value needs to belong to a bucket in bbolt, so each value is given
// its own bucket named after its key with two entries:
//
// 1. data - The raw data, usually JSON
// 2. expiry - The expiry time formatted as a time.RFC3339Nano timestamp string
//
// Cleanup can then walk the top-level buckets and only read expiry times
// without decoding whole records.
//
// bbolt holds an exclusive file lock, so only one captchad process can use a
// given database. For shared state across replicas use the valkey backend.
//
// [1]: https://github.com/etcd-io/bbolt
type Store struct {
	bdb *bbolt.DB
	now func() time.Time
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.bdb.Close()
}

func readExpiry(key []byte, bkt *bbolt.Bucket) (time.Time, error) {
	expiryStr := bkt.Get(expiryKey)
	if expiryStr == nil {
		return time.Time{}, fmt.Errorf("[unexpected] %w: %q (expiry is nil)", store.ErrNotFound, string(key))
	}

	expiry, err := time.Parse(time.RFC3339Nano, string(expiryStr))
	if err != nil {
		return time.Time{}, fmt.Errorf("[unexpected] %w: %w", store.ErrCantDecode, err)
	}

	return expiry, nil
}

// readLive copies the data out of a value bucket. expired is true when the
// value exists but is past its expiry.
func readLive(key []byte, bkt *bbolt.Bucket, now time.Time) (data []byte, expired bool, err error) {
	expiry, err := readExpiry(key, bkt)
	if err != nil {
		return nil, false, err
	}

	if !now.Before(expiry) {
		return nil, true, nil
	}

	dataStr := bkt.Get(dataKey)
	if dataStr == nil {
		return nil, false, fmt.Errorf("[unexpected] %w: %q (data is nil)", store.ErrNotFound, string(key))
	}

	return bytes.Clone(dataStr), false, nil
}

// Delete a key from the datastore. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(key)) == nil {
			return nil
		}

		return tx.DeleteBucket([]byte(key))
	})
}

// Get a value from the datastore. An expired value is removed in the same
// transaction that found it.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		result  []byte
		expired bool
	)

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		itemBucket := tx.Bucket([]byte(key))
		if itemBucket == nil {
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		var err error
		result, expired, err = readLive([]byte(key), itemBucket, s.now())
		return err
	}); err != nil {
		return nil, err
	}

	if expired {
		if err := s.evictExpired(key); err != nil {
			slog.Debug("can't remove expired bbolt value", "key", key, "err", err)
		}
		return nil, fmt.Errorf("%w: %q (expired)", store.ErrNotFound, key)
	}

	return result, nil
}

// evictExpired deletes key only if it is still expired once the write lock
// is held. A Set that landed after the read in Get is left alone.
func (s *Store) evictExpired(key string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		itemBucket := tx.Bucket([]byte(key))
		if itemBucket == nil {
			return nil
		}

		expiry, err := readExpiry([]byte(key), itemBucket)
		if err != nil {
			return err
		}

		if s.now().Before(expiry) {
			return nil
		}

		return tx.DeleteBucket([]byte(key))
	})
}

// GetDel reads and removes a value inside one read-write transaction. bbolt
// serializes writers, so concurrent callers cannot both observe the value.
func (s *Store) GetDel(ctx context.Context, key string) ([]byte, error) {
	var result []byte

	if err := s.bdb.Update(func(tx *bbolt.Tx) error {
		itemBucket := tx.Bucket([]byte(key))
		if itemBucket == nil {
			return fmt.Errorf("%w: %q", store.ErrNotFound, key)
		}

		data, expired, err := readLive([]byte(key), itemBucket, s.now())
		if err != nil {
			return err
		}

		if err := tx.DeleteBucket([]byte(key)); err != nil {
			return err
		}

		if expired {
			return fmt.Errorf("%w: %q (expired)", store.ErrNotFound, key)
		}

		result = data
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// Set a value into the store with a given expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	expires := s.now().Add(expiry)

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		valueBkt, err := tx.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return fmt.Errorf("%w: %w: %q (create bucket)", store.ErrCantEncode, err, key)
		}

		if err := valueBkt.Put(expiryKey, []byte(expires.Format(time.RFC3339Nano))); err != nil {
			return fmt.Errorf("%w: %q (expiry)", store.ErrCantEncode, key)
		}

		if err := valueBkt.Put(dataKey, value); err != nil {
			return fmt.Errorf("%w: %q (data)", store.ErrCantEncode, key)
		}

		return nil
	})
}

// Keys lists live keys starting with prefix using a cursor seek.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	now := s.now()
	var result []string

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		c := tx.Cursor()
		p := []byte(prefix)

		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			bkt := tx.Bucket(k)
			if bkt == nil {
				continue
			}

			expiry, err := readExpiry(k, bkt)
			if err != nil {
				slog.Warn("skipping bbolt value with unreadable expiry", "key", string(k), "err", err)
				continue
			}

			if now.Before(expiry) {
				result = append(result, string(k))
			}
		}

		return nil
	}); err != nil {
		return nil, err
	}

	sort.Strings(result)
	return result, nil
}

// Cleanup removes every expired value bucket.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	now := s.now()
	var removed int

	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		var expired [][]byte

		if err := tx.ForEach(func(key []byte, valueBkt *bbolt.Bucket) error {
			expiry, err := readExpiry(key, valueBkt)
			if err != nil {
				slog.Warn("while running cleanup, expiry is unreadable", "key", string(key), "err", err)
				return nil
			}

			if !now.Before(expiry) {
				expired = append(expired, bytes.Clone(key))
			}

			return nil
		}); err != nil {
			return err
		}

		for _, key := range expired {
			if err := tx.DeleteBucket(key); err != nil {
				return fmt.Errorf("can't delete expired bucket %q: %w", string(key), err)
			}
			removed++
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return removed, nil
}
