package store_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/creditpath/captchad/lib/store"
	"github.com/creditpath/captchad/lib/store/memory"
)

func TestJSON(t *testing.T) {
	type data struct {
		ID string `json:"id"`
	}

	st := memory.New()
	db := store.JSON[data]{
		Underlying: st,
		Prefix:     "foo:",
	}

	if err := db.Set(t.Context(), "test", data{ID: t.Name()}, time.Minute); err != nil {
		t.Fatal(err)
	}

	got, err := db.Get(t.Context(), "test")
	if err != nil {
		t.Fatal(err)
	}

	if got.ID != t.Name() {
		t.Fatalf("got wrong data for key \"test\", wanted %q but got: %q", t.Name(), got.ID)
	}

	if err := db.Delete(t.Context(), "test"); err != nil {
		t.Fatal(err)
	}

	if _, err := db.Get(t.Context(), "test"); err == nil {
		t.Fatal("wanted invalid get to fail, it did not")
	}

	if err := st.Set(t.Context(), "foo:test", []byte("}"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if _, err := db.Get(t.Context(), "test"); !errors.Is(err, store.ErrCantDecode) {
		t.Fatalf("wanted ErrCantDecode, got: %v", err)
	}
}

func TestJSONGetDelAndKeys(t *testing.T) {
	type data struct {
		N int `json:"n"`
	}

	st := memory.New()
	db := store.JSON[data]{
		Underlying: st,
		Prefix:     "challenge:",
	}

	for i, k := range []string{"b", "a"} {
		if err := db.Set(t.Context(), k, data{N: i}, time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	if err := st.Set(t.Context(), "pass:a", []byte("{}"), time.Minute); err != nil {
		t.Fatal(err)
	}

	keys, err := db.Keys(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(keys, []string{"a", "b"}) {
		t.Fatalf("wanted keys [a b] without prefix, got: %v", keys)
	}

	got, err := db.GetDel(t.Context(), "a")
	if err != nil {
		t.Fatal(err)
	}

	if got.N != 1 {
		t.Errorf("wanted n=1, got: %d", got.N)
	}

	if _, err := db.GetDel(t.Context(), "a"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("wanted ErrNotFound on second GetDel, got: %v", err)
	}
}
