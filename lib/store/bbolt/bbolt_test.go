package bbolt

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/creditpath/captchad/lib/store"
	"github.com/creditpath/captchad/lib/store/storetest"
)

func TestImpl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	t.Log(path)
	data, err := json.Marshal(Config{
		Path: path,
	})
	if err != nil {
		t.Fatal(err)
	}

	storetest.Common(t, Factory{}, json.RawMessage(data))
}

func openStore(t *testing.T) *Store {
	t.Helper()

	data, err := json.Marshal(Config{Path: filepath.Join(t.TempDir(), "db")})
	if err != nil {
		t.Fatal(err)
	}

	st, err := Factory{}.Build(t.Context(), json.RawMessage(data))
	if err != nil {
		t.Fatal(err)
	}

	s := st.(*Store)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCleanupCount(t *testing.T) {
	s := openStore(t)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for _, k := range []string{"a", "b", "c"} {
		if err := s.Set(t.Context(), k, []byte(k), time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Set(t.Context(), "d", []byte("d"), time.Hour); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Minute)

	n, err := s.Cleanup(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	if n != 3 {
		t.Errorf("wanted 3 values removed, got %d", n)
	}

	if _, err := s.Get(t.Context(), "a"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("wanted ErrNotFound for swept key, got: %v", err)
	}

	if _, err := s.Get(t.Context(), "d"); err != nil {
		t.Errorf("live key was swept: %v", err)
	}

	if n, err := s.Cleanup(t.Context()); err != nil || n != 0 {
		t.Errorf("second cleanup: wanted 0, nil; got %d, %v", n, err)
	}
}

func TestGetEvictsExpired(t *testing.T) {
	s := openStore(t)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Set(t.Context(), "k", []byte("old"), time.Minute); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Minute)

	if _, err := s.Get(t.Context(), "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("wanted ErrNotFound for expired key, got: %v", err)
	}

	if n, err := s.Cleanup(t.Context()); err != nil || n != 0 {
		t.Errorf("expired key was not evicted by Get: cleanup removed %d, err %v", n, err)
	}
}

func TestEvictKeepsRewrittenValue(t *testing.T) {
	s := openStore(t)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Set(t.Context(), "k", []byte("old"), time.Minute); err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Minute)

	// A writer replaces the value between Get's read and its eviction.
	if err := s.Set(t.Context(), "k", []byte("new"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if err := s.evictExpired("k"); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(t.Context(), "k")
	if err != nil {
		t.Fatalf("fresh value was evicted: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("wanted %q, got %q", "new", got)
	}

	if err := s.evictExpired("missing"); err != nil {
		t.Errorf("evicting a missing key: %v", err)
	}
}
