package memory

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/creditpath/captchad/lib/store"
	"github.com/creditpath/captchad/lib/store/storetest"
)

func TestImpl(t *testing.T) {
	storetest.Common(t, factory{}, json.RawMessage(`{}`))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestExpiryWithClock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(WithClock(clock.Now))

	if err := s.Set(t.Context(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}

	clock.Advance(59 * time.Second)
	if _, err := s.Get(t.Context(), "k"); err != nil {
		t.Fatalf("value expired early: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := s.Get(t.Context(), "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("wanted ErrNotFound exactly at expiry, got: %v", err)
	}

	if _, err := s.GetDel(t.Context(), "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired value was not removed by Get: %v", err)
	}
}

func TestCleanup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(WithClock(clock.Now))

	for _, tt := range []struct {
		key string
		ttl time.Duration
	}{
		{"challenge:a", time.Minute},
		{"challenge:b", time.Minute},
		{"challenge:c", 2 * time.Minute},
		{"pass:d", time.Hour},
	} {
		if err := s.Set(t.Context(), tt.key, []byte(tt.key), tt.ttl); err != nil {
			t.Fatal(err)
		}
	}

	clock.Advance(90 * time.Second)

	n, err := s.Cleanup(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("wanted 2 removed, got %d", n)
	}

	keys, err := s.Keys(t.Context(), "challenge:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "challenge:c" {
		t.Errorf("wanted [challenge:c], got %v", keys)
	}

	n, err = s.Cleanup(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second cleanup removed %d values, wanted 0", n)
	}
}

func TestSetCopiesValue(t *testing.T) {
	s := New()
	buf := []byte("abc")

	if err := s.Set(t.Context(), "k", buf, time.Minute); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'z'

	got, err := s.Get(t.Context(), "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abc" {
		t.Errorf("stored value aliased caller buffer: %q", got)
	}
}
