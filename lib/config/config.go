// Package config loads the captchad YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/creditpath/captchad"
	"github.com/creditpath/captchad/data"
	"github.com/creditpath/captchad/lib/ratelimit"
	"k8s.io/apimachinery/pkg/util/yaml"
	sigsyaml "sigs.k8s.io/yaml"
)

var (
	ErrBadSweepInterval = errors.New("config: sweepInterval must be positive")
	ErrBadOrigin        = errors.New("config.CORS: allowed origin must be an http(s) origin")
	ErrBadExpiration    = errors.New("config.PassTokens: expiration must be positive")
)

// DefaultFile is the name of the embedded default configuration.
const DefaultFile = "captchad.yaml"

type CORS struct {
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
	AllowLocalhost bool     `json:"allowLocalhost"`
	AllowAll       bool     `json:"allowAll"`
}

func (c CORS) Valid() error {
	var errs []error

	for _, o := range c.AllowedOrigins {
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") || strings.HasSuffix(o, "/") {
			errs = append(errs, fmt.Errorf("%w: %q", ErrBadOrigin, o))
		}
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

type PassTokens struct {
	Enabled    bool     `json:"enabled"`
	Expiration Duration `json:"expiration,omitempty"`
}

func (p PassTokens) Valid() error {
	if p.Expiration < 0 {
		return ErrBadExpiration
	}

	return nil
}

type RateLimit struct {
	Enabled bool     `json:"enabled"`
	Every   Duration `json:"every,omitempty"`
	Burst   int      `json:"burst,omitempty"`
	Exempt  []string `json:"exempt,omitempty"`

	TrustedProxies []string `json:"trustedProxies,omitempty"`
}

// Limiter converts the file form into a ratelimit.Config.
func (r RateLimit) Limiter() ratelimit.Config {
	return ratelimit.Config{
		Every:          time.Duration(r.Every),
		Burst:          r.Burst,
		Exempt:         r.Exempt,
		TrustedProxies: r.TrustedProxies,
	}
}

func (r RateLimit) Valid() error {
	if !r.Enabled {
		return nil
	}

	return r.Limiter().Valid()
}

type Stats struct {
	ExposeSessions bool `json:"exposeSessions"`
}

// Config is the whole configuration file.
type Config struct {
	Store         Store      `json:"store"`
	Challenge     Challenge  `json:"challenge"`
	SweepInterval Duration   `json:"sweepInterval,omitempty"`
	CORS          CORS       `json:"cors"`
	PassTokens    PassTokens `json:"passTokens"`
	RateLimit     RateLimit  `json:"rateLimit"`
	Stats         Stats      `json:"stats"`
}

func (c *Config) Valid() error {
	var errs []error

	if err := c.Store.Valid(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}

	if err := c.Challenge.Valid(); err != nil {
		errs = append(errs, fmt.Errorf("challenge: %w", err))
	}

	if c.SweepInterval <= 0 {
		errs = append(errs, ErrBadSweepInterval)
	}

	if err := c.CORS.Valid(); err != nil {
		errs = append(errs, fmt.Errorf("cors: %w", err))
	}

	if err := c.PassTokens.Valid(); err != nil {
		errs = append(errs, fmt.Errorf("passTokens: %w", err))
	}

	if err := c.RateLimit.Valid(); err != nil {
		errs = append(errs, fmt.Errorf("rateLimit: %w", err))
	}

	if len(errs) != 0 {
		return fmt.Errorf("config is not valid:\n%w", errors.Join(errs...))
	}

	return nil
}

func defaults() *Config {
	return &Config{
		Store: Store{Backend: "memory"},
		Challenge: Challenge{
			Generator: "text",
			TTL:       Duration(captchad.DefaultTTL),
		},
		SweepInterval: Duration(captchad.DefaultSweepInterval),
		CORS:          CORS{AllowLocalhost: true},
		PassTokens: PassTokens{
			Enabled:    true,
			Expiration: Duration(captchad.DefaultPassTokenExpiration),
		},
	}
}

// Load parses a YAML (or JSON) configuration. Unset sections keep their defaults.
func Load(fin io.Reader, fname string) (*Config, error) {
	c := defaults()

	if err := yaml.NewYAMLToJSONDecoder(fin).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("can't parse config YAML %s: %w", fname, err)
	}

	if err := c.Valid(); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}

	return c, nil
}

// LoadOrDefault loads fname, or the embedded default configuration when
// fname is empty.
func LoadOrDefault(fname string) (*Config, error) {
	var fin io.ReadCloser
	var err error

	if fname != "" {
		fin, err = os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("can't open config file %s: %w", fname, err)
		}
	} else {
		fname = "(data)/" + DefaultFile
		fin, err = data.Configs.Open(DefaultFile)
		if err != nil {
			return nil, fmt.Errorf("[unexpected] can't open builtin config %s: %w", fname, err)
		}
	}

	defer func(fin io.ReadCloser) {
		if err := fin.Close(); err != nil {
			slog.Error("failed to close config file", "file", fname, "err", err)
		}
	}(fin)

	return Load(fin, fname)
}

// Dump renders c back to YAML.
func (c *Config) Dump() ([]byte, error) {
	return sigsyaml.Marshal(c)
}
