package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creditpath/captchad/lib/store"
	_ "github.com/creditpath/captchad/lib/store/all"
)

var (
	ErrNoStoreBackend      = errors.New("config.Store: no backend defined")
	ErrUnknownStoreBackend = errors.New("config.Store: unknown backend")
)

type Store struct {
	Backend    string          `json:"backend"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

func (s *Store) Valid() error {
	var errs []error

	if len(s.Backend) == 0 {
		errs = append(errs, ErrNoStoreBackend)
	}

	fac, ok := store.Get(s.Backend)
	switch ok {
	case true:
		if err := fac.Valid(s.params()); err != nil {
			errs = append(errs, err)
		}
	case false:
		errs = append(errs, fmt.Errorf("%w: %q, known: %v", ErrUnknownStoreBackend, s.Backend, store.Methods()))
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

func (s *Store) params() json.RawMessage {
	if len(s.Parameters) == 0 {
		return json.RawMessage(`{}`)
	}

	return s.Parameters
}

// Build opens the configured backend.
func (s *Store) Build(ctx context.Context) (store.Interface, error) {
	fac, ok := store.Get(s.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStoreBackend, s.Backend)
	}

	return fac.Build(ctx, s.params())
}
