package store

import (
	"context"
	"encoding/json"

	"github.com/creditpath/captchad/internal"
)

var registry internal.Registry[Factory]

// Factory builds a store backend from its JSON parameters.
type Factory interface {
	Build(ctx context.Context, config json.RawMessage) (Interface, error)
	Valid(config json.RawMessage) error
}

// Register makes a backend available to configuration files under name.
func Register(name string, impl Factory) { registry.Register(name, impl) }

func Get(name string) (Factory, bool) { return registry.Get(name) }

// Methods returns the names of every registered backend, sorted.
func Methods() []string { return registry.Names() }
