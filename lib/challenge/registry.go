package challenge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/creditpath/captchad/internal"
)

var registry internal.Registry[Factory]

// Generator makes new puzzles. Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context) (*Puzzle, error)
}

// Factory builds a Generator from its JSON parameters.
type Factory interface {
	Build(config json.RawMessage) (Generator, error)
	Valid(config json.RawMessage) error
}

// Register makes a generator available to configuration files under name.
func Register(name string, impl Factory) { registry.Register(name, impl) }

func Get(name string) (Factory, bool) { return registry.Get(name) }

// Methods returns the names of every registered generator, sorted.
func Methods() []string { return registry.Names() }

// Build looks up the named generator and builds it with config.
func Build(name string, config json.RawMessage) (Generator, error) {
	f, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q, known: %v", ErrUnknownGenerator, name, Methods())
	}

	if len(config) == 0 {
		config = json.RawMessage(`{}`)
	}

	return f.Build(config)
}
