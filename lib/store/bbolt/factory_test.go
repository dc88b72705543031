package bbolt

import (
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/creditpath/captchad/lib/store"
)

func TestFactoryValid(t *testing.T) {
	dir := t.TempDir()

	for _, tt := range []struct {
		name  string
		input string
		err   error
	}{
		{
			name:  "not json",
			input: `}`,
			err:   store.ErrBadConfig,
		},
		{
			name:  "missing path",
			input: `{}`,
			err:   ErrMissingPath,
		},
		{
			name:  "directory does not exist",
			input: `{"path":"` + filepath.Join(dir, "nope", "captchad.bdb") + `"}`,
			err:   ErrCantWriteToPath,
		},
		{
			name:  "good",
			input: `{"path":"` + filepath.Join(dir, "captchad.bdb") + `"}`,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := Factory{}.Valid(json.RawMessage(tt.input))
			if tt.err == nil && err != nil {
				t.Fatalf("wanted no error, got: %v", err)
			}

			if !errors.Is(err, tt.err) {
				t.Errorf("wanted %v, got: %v", tt.err, err)
			}
		})
	}
}

func TestFactoryBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captchad.bdb")
	data, err := json.Marshal(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}

	s, err := Factory{}.Build(t.Context(), data)
	if err != nil {
		t.Fatal(err)
	}

	c, ok := s.(io.Closer)
	if !ok {
		t.Fatal("bbolt store can't be closed")
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	// The file lock is released on close, so the database opens again.
	s, err = Factory{}.Build(t.Context(), data)
	if err != nil {
		t.Fatalf("can't reopen database: %v", err)
	}
	s.(io.Closer).Close()
}
