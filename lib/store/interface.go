package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the store implementation cannot find the value
	// for a given key, or the value has expired.
	ErrNotFound = errors.New("store: key not found")

	// ErrCantDecode is returned when a store adaptor cannot decode the store format
	// to a value used by the code.
	ErrCantDecode = errors.New("store: can't decode value")

	// ErrCantEncode is returned when a store adaptor cannot encode the value into
	// the format that the store uses.
	ErrCantEncode = errors.New("store: can't encode value")

	// ErrBadConfig is returned when a store adaptor's configuration is invalid.
	ErrBadConfig = errors.New("store: configuration is invalid")
)

// Interface defines the calls that captchad uses for storage in a local or
// remote datastore. Every value has an expiry; expired values behave exactly
// like missing ones.
type Interface interface {
	// Delete removes a value from the store by key. Deleting a key that does
	// not exist is not an error.
	Delete(ctx context.Context, key string) error

	// Get returns the value of a key assuming that value exists and has not expired.
	// Expired values found by Get are removed.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetDel atomically fetches and removes a value. Of any number of
	// concurrent GetDel calls for one key, at most one gets the value.
	GetDel(ctx context.Context, key string) ([]byte, error)

	// Set puts a value into the store that expires according to its expiry,
	// replacing any previous value for the key.
	Set(ctx context.Context, key string, value []byte, expiry time.Duration) error

	// Keys lists the live keys that start with prefix. It does not modify the store.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Cleanup removes every expired value and reports how many were removed.
	Cleanup(ctx context.Context) (int, error)
}

func z[T any]() T { return *new(T) }

// JSON stores values of type T as JSON documents under a common key prefix.
type JSON[T any] struct {
	Underlying Interface
	Prefix     string
}

func (j *JSON[T]) key(k string) string {
	if j.Prefix != "" {
		return j.Prefix + k
	}

	return k
}

func (j *JSON[T]) decode(data []byte) (T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return z[T](), fmt.Errorf("%w: %w", ErrCantDecode, err)
	}

	return result, nil
}

func (j *JSON[T]) Delete(ctx context.Context, key string) error {
	return j.Underlying.Delete(ctx, j.key(key))
}

func (j *JSON[T]) Get(ctx context.Context, key string) (T, error) {
	data, err := j.Underlying.Get(ctx, j.key(key))
	if err != nil {
		return z[T](), err
	}

	return j.decode(data)
}

func (j *JSON[T]) GetDel(ctx context.Context, key string) (T, error) {
	data, err := j.Underlying.GetDel(ctx, j.key(key))
	if err != nil {
		return z[T](), err
	}

	return j.decode(data)
}

func (j *JSON[T]) Set(ctx context.Context, key string, value T, expiry time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCantEncode, err)
	}

	if err := j.Underlying.Set(ctx, j.key(key), data, expiry); err != nil {
		return err
	}

	return nil
}

// Keys lists live keys under the prefix with the prefix removed.
func (j *JSON[T]) Keys(ctx context.Context) ([]string, error) {
	keys, err := j.Underlying.Keys(ctx, j.Prefix)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, strings.TrimPrefix(k, j.Prefix))
	}

	return result, nil
}
