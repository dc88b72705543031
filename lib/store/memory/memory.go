package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/creditpath/captchad/lib/store"
	"github.com/puzpuzpuz/xsync/v4"
)

type factory struct{}

func (factory) Build(_ context.Context, _ json.RawMessage) (store.Interface, error) {
	return New(), nil
}

func (factory) Valid(json.RawMessage) error { return nil }

func init() {
	store.Register("memory", factory{})
}

type entry struct {
	value  []byte
	expiry time.Time
}

type impl struct {
	data *xsync.Map[string, entry]
	now  func() time.Time
}

// Option configures the in-memory store.
type Option func(*impl)

// WithClock replaces time.Now as the source of the current time. It is used
// by tests to expire values without sleeping.
func WithClock(now func() time.Time) Option {
	return func(i *impl) {
		i.now = now
	}
}

// New creates a simple in-memory store. This will not scale to multiple
// captchad instances and loses everything on restart.
func New(opts ...Option) store.Interface {
	result := &impl{
		data: xsync.NewMap[string, entry](xsync.WithPresize(64)),
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(result)
	}

	return result
}

func (i *impl) expired(e entry, now time.Time) bool {
	return !now.Before(e.expiry)
}

// evictIfExpired removes key only if the value currently stored is expired, so
// a concurrent Set of a fresh value is never lost.
func (i *impl) evictIfExpired(key string, now time.Time) bool {
	var evicted bool
	i.data.Compute(key, func(old entry, loaded bool) (entry, xsync.ComputeOp) {
		if loaded && i.expired(old, now) {
			evicted = true
			return old, xsync.DeleteOp
		}

		return old, xsync.CancelOp
	})

	return evicted
}

func (i *impl) Delete(_ context.Context, key string) error {
	i.data.Delete(key)
	return nil
}

func (i *impl) Get(_ context.Context, key string) ([]byte, error) {
	now := i.now()

	e, ok := i.data.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	if i.expired(e, now) {
		i.evictIfExpired(key, now)
		return nil, fmt.Errorf("%w: %q (expired)", store.ErrNotFound, key)
	}

	return append([]byte(nil), e.value...), nil
}

func (i *impl) GetDel(_ context.Context, key string) ([]byte, error) {
	e, ok := i.data.LoadAndDelete(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	if i.expired(e, i.now()) {
		return nil, fmt.Errorf("%w: %q (expired)", store.ErrNotFound, key)
	}

	return e.value, nil
}

func (i *impl) Set(_ context.Context, key string, value []byte, expiry time.Duration) error {
	i.data.Store(key, entry{
		value:  append([]byte(nil), value...),
		expiry: i.now().Add(expiry),
	})

	return nil
}

func (i *impl) Keys(_ context.Context, prefix string) ([]string, error) {
	now := i.now()

	var result []string
	i.data.Range(func(key string, e entry) bool {
		if strings.HasPrefix(key, prefix) && !i.expired(e, now) {
			result = append(result, key)
		}
		return true
	})

	sort.Strings(result)
	return result, nil
}

func (i *impl) Cleanup(_ context.Context) (int, error) {
	now := i.now()

	var candidates []string
	i.data.Range(func(key string, e entry) bool {
		if i.expired(e, now) {
			candidates = append(candidates, key)
		}
		return true
	})

	var removed int
	for _, key := range candidates {
		if i.evictIfExpired(key, now) {
			removed++
		}
	}

	return removed, nil
}
