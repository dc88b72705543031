package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/creditpath/captchad/lib/challenge"
	_ "github.com/creditpath/captchad/lib/challenge/all"
)

var (
	ErrNoGenerator      = errors.New("config.Challenge: no generator defined")
	ErrUnknownGenerator = errors.New("config.Challenge: unknown generator")
	ErrBadTTL           = errors.New("config.Challenge: ttl must be positive")
)

type Challenge struct {
	Generator  string          `json:"generator"`
	TTL        Duration        `json:"ttl,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

func (c *Challenge) Valid() error {
	var errs []error

	if c.Generator == "" {
		errs = append(errs, ErrNoGenerator)
	} else if fac, ok := challenge.Get(c.Generator); !ok {
		errs = append(errs, fmt.Errorf("%w: %q, known: %v", ErrUnknownGenerator, c.Generator, challenge.Methods()))
	} else if err := fac.Valid(c.params()); err != nil {
		errs = append(errs, err)
	}

	if c.TTL < 0 {
		errs = append(errs, ErrBadTTL)
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

func (c *Challenge) params() json.RawMessage {
	if len(c.Parameters) == 0 {
		return json.RawMessage(`{}`)
	}

	return c.Parameters
}

// Build creates the configured generator.
func (c *Challenge) Build() (challenge.Generator, error) {
	return challenge.Build(c.Generator, c.params())
}

// TTLOrDefault is the challenge lifetime.
func (c *Challenge) TTLOrDefault(def time.Duration) time.Duration {
	if c.TTL == 0 {
		return def
	}

	return time.Duration(c.TTL)
}
