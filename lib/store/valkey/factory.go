package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/creditpath/captchad/lib/store"
	valkey "github.com/redis/go-redis/v9"
)

var (
	ErrNoURL  = errors.New("valkey.Config: no URL defined")
	ErrBadURL = errors.New("valkey.Config: URL is invalid")
)

const pingTimeout = 5 * time.Second

func init() {
	store.Register("valkey", Factory{})
}

// Factory builds valkey (or Redis) backed stores. This is the backend to use
// when several captchad replicas must share challenge state.
type Factory struct{}

func (Factory) Build(ctx context.Context, data json.RawMessage) (store.Interface, error) {
	opts, err := parse(data)
	if err != nil {
		return nil, err
	}

	rdb := valkey.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("can't ping valkey at %s: %w", opts.Addr, err)
	}

	return &Store{rdb: rdb}, nil
}

func (Factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

// parse turns the JSON parameters into client options.
func parse(data json.RawMessage) (*valkey.Options, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	opts, err := config.Options()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	return opts, nil
}

// Config is the valkey storage backend configuration.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string `json:"url"`
}

// Options validates the URL and converts it into client options.
func (c Config) Options() (*valkey.Options, error) {
	if c.URL == "" {
		return nil, ErrNoURL
	}

	opts, err := valkey.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadURL, err)
	}

	return opts, nil
}

func (c Config) Valid() error {
	_, err := c.Options()
	return err
}
