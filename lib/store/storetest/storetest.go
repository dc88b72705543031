package storetest

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creditpath/captchad/lib/store"
)

// Common runs the behaviour every store backend must share against the
// backend built by f from config.
func Common(t *testing.T, f store.Factory, config json.RawMessage) {
	if err := f.Valid(config); err != nil {
		t.Fatal(err)
	}

	s, err := f.Build(t.Context(), config)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name string
		doer func(t *testing.T, s store.Interface) error
		err  error
	}{
		{
			name: "basic get set delete",
			doer: func(t *testing.T, s store.Interface) error {
				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.Get(t.Context(), t.Name())
				if errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to exist in store but it does not: %v", t.Name(), err)
				} else if err != nil {
					t.Error(err)
				}

				if !bytes.Equal(val, []byte(t.Name())) {
					t.Logf("want: %q", t.Name())
					t.Logf("got:  %q", string(val))
					t.Error("wrong value returned")
				}

				if err := s.Delete(t.Context(), t.Name()); err != nil {
					return err
				}

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Error("wanted test to not exist in store but it exists anyways")
				}

				if err := s.Delete(t.Context(), t.Name()); err != nil {
					t.Errorf("deleting missing key %q: %v", t.Name(), err)
				}

				return nil
			},
		},
		{
			name: "set overwrites",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte("first"), 5*time.Minute); err != nil {
					return err
				}

				if err := s.Set(t.Context(), t.Name(), []byte("second"), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.Get(t.Context(), t.Name())
				if err != nil {
					return err
				}

				if string(val) != "second" {
					t.Errorf("wanted second value, got: %q", string(val))
				}

				return s.Delete(t.Context(), t.Name())
			},
		},
		{
			name: "getdel removes",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 5*time.Minute); err != nil {
					return err
				}

				val, err := s.GetDel(t.Context(), t.Name())
				if err != nil {
					return err
				}

				if !bytes.Equal(val, []byte(t.Name())) {
					t.Errorf("wrong value returned: %q", string(val))
				}

				if _, err := s.GetDel(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("second GetDel: wanted ErrNotFound, got: %v", err)
				}

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("Get after GetDel: wanted ErrNotFound, got: %v", err)
				}

				return nil
			},
		},
		{
			name: "concurrent getdel has one winner",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 5*time.Minute); err != nil {
					return err
				}

				var (
					wg   sync.WaitGroup
					wins atomic.Int32
				)

				for range 16 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if _, err := s.GetDel(t.Context(), t.Name()); err == nil {
							wins.Add(1)
						} else if !errors.Is(err, store.ErrNotFound) {
							t.Errorf("unexpected GetDel error: %v", err)
						}
					}()
				}

				wg.Wait()

				if got := wins.Load(); got != 1 {
					t.Errorf("wanted exactly one GetDel to succeed, got %d", got)
				}

				return nil
			},
		},
		{
			name: "keys by prefix",
			doer: func(t *testing.T, s store.Interface) error {
				prefix := t.Name() + ":"
				want := []string{prefix + "a", prefix + "b"}

				for _, k := range want {
					if err := s.Set(t.Context(), k, []byte(k), 5*time.Minute); err != nil {
						return err
					}
				}

				if err := s.Set(t.Context(), t.Name()+"-other", []byte("x"), 5*time.Minute); err != nil {
					return err
				}

				got, err := s.Keys(t.Context(), prefix)
				if err != nil {
					return err
				}

				slices.Sort(got)
				if !slices.Equal(got, want) {
					t.Logf("want: %v", want)
					t.Logf("got:  %v", got)
					t.Error("wrong keys returned")
				}

				return nil
			},
		},
		{
			name: "expires",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 150*time.Millisecond); err != nil {
					return err
				}

				//nosleep:bypass backends with real clocks cannot be faked from here.
				time.Sleep(155 * time.Millisecond)

				if _, err := s.Get(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted %s to not exist in store but it exists anyways", t.Name())
				}

				return nil
			},
		},
		{
			name: "expired values are not fetched by getdel",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name(), []byte(t.Name()), 150*time.Millisecond); err != nil {
					return err
				}

				//nosleep:bypass backends with real clocks cannot be faked from here.
				time.Sleep(155 * time.Millisecond)

				if _, err := s.GetDel(t.Context(), t.Name()); !errors.Is(err, store.ErrNotFound) {
					t.Errorf("wanted ErrNotFound for expired key, got: %v", err)
				}

				return nil
			},
		},
		{
			name: "cleanup",
			doer: func(t *testing.T, s store.Interface) error {
				if err := s.Set(t.Context(), t.Name()+":old", []byte("old"), 150*time.Millisecond); err != nil {
					return err
				}

				if err := s.Set(t.Context(), t.Name()+":new", []byte("new"), 5*time.Minute); err != nil {
					return err
				}

				//nosleep:bypass backends with real clocks cannot be faked from here.
				time.Sleep(155 * time.Millisecond)

				if _, err := s.Cleanup(t.Context()); err != nil {
					return err
				}

				keys, err := s.Keys(t.Context(), t.Name()+":")
				if err != nil {
					return err
				}

				if !slices.Equal(keys, []string{t.Name() + ":new"}) {
					t.Errorf("wanted only the live key to remain, got: %v", keys)
				}

				return nil
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.doer(t, s); !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}
