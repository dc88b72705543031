// Package sweeper periodically removes expired values from a store.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captchad_sweeper_removed_total",
		Help: "The number of expired values removed by the sweeper",
	}, []string{"target"})

	sweepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captchad_sweeper_errors_total",
		Help: "The number of sweeps that failed",
	}, []string{"target"})
)

// Cleaner is anything holding expiring state. store.Interface is a Cleaner.
type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Sweeper owns the background cleanup goroutine for a Cleaner. Nothing runs
// until Start is called.
type Sweeper struct {
	store    Cleaner
	name     string
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a sweeper for st. name labels its logs and metrics.
func New(name string, st Cleaner, interval time.Duration) *Sweeper {
	return &Sweeper{
		name:     name,
		store:    st,
		interval: interval,
		logger:   slog.With("component", "sweeper", "target", name),
	}
}

// Sweep runs one cleanup pass and returns how many values were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.Cleanup(ctx)
	if err != nil {
		sweepErrors.WithLabelValues(s.name).Inc()
		return 0, err
	}

	sweptTotal.WithLabelValues(s.name).Add(float64(n))
	return n, nil
}

// Start launches the sweep loop. Calling Start on a running Sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
}

// Stop ends the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper shutting down", "reason", context.Cause(ctx))
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("sweep failed", "err", err)
				continue
			}

			if n > 0 {
				s.logger.Debug("swept expired values", "count", n)
			}
		}
	}
}
