package internal

import (
	"slices"
	"testing"
)

func TestRegistry(t *testing.T) {
	var r Registry[int]

	if _, ok := r.Get("missing"); ok {
		t.Error("empty registry found a value")
	}

	if names := r.Names(); len(names) != 0 {
		t.Errorf("empty registry has names: %v", names)
	}

	r.Register("b", 2)
	r.Register("a", 1)
	r.Register("b", 3)

	if v, ok := r.Get("b"); !ok || v != 3 {
		t.Errorf("wanted re-registration to win, got %d, %v", v, ok)
	}

	if names := r.Names(); !slices.Equal(names, []string{"a", "b"}) {
		t.Errorf("wanted sorted names [a b], got %v", names)
	}
}
