package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/creditpath/captchad/lib/store"
	"go.etcd.io/bbolt"
)

var (
	ErrMissingPath     = errors.New("bbolt: path is missing from config")
	ErrCantWriteToPath = errors.New("bbolt: can't write to the database directory")
)

func init() {
	store.Register("bbolt", Factory{})
}

// Factory opens bbolt databases for the "bbolt" store backend.
type Factory struct{}

// Build parses and validates the bbolt storage backend Config and opens the
// database. No background goroutines are started; expired values are removed
// by Cleanup.
func (Factory) Build(ctx context.Context, data json.RawMessage) (store.Interface, error) {
	config, err := parse(data)
	if err != nil {
		return nil, err
	}

	bdb, err := bbolt.Open(config.Path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("can't open bbolt database %s: %w", config.Path, err)
	}

	return &Store{
		bdb: bdb,
		now: time.Now,
	}, nil
}

func (Factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

func parse(data json.RawMessage) (Config, error) {
	var config Config
	err := json.Unmarshal(data, &config)
	if err == nil {
		err = config.Valid()
	}

	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", store.ErrBadConfig, err)
	}

	return config, nil
}

// Config is the bbolt storage backend configuration.
type Config struct {
	// Path is the filesystem path of the database. The folder must be writable to captchad.
	Path string `json:"path"`
}

// Valid checks that Path is set and that its directory accepts new files,
// which bbolt needs for the database and its lock.
func (c Config) Valid() error {
	if c.Path == "" {
		return ErrMissingPath
	}

	if err := writable(filepath.Dir(c.Path)); err != nil {
		return fmt.Errorf("%w: %w", ErrCantWriteToPath, err)
	}

	return nil
}

func writable(dir string) error {
	f, err := os.CreateTemp(dir, ".captchad-writable-*")
	if err != nil {
		return err
	}

	name := f.Name()
	f.Close()
	return os.Remove(name)
}
