// Package ratelimit limits how often a single client address may request
// new challenges.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/gaissmai/bart"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sebest/xff"
	"golang.org/x/time/rate"
)

var (
	ErrBadRate   = errors.New("ratelimit: every must be positive")
	ErrBadBurst  = errors.New("ratelimit: burst must be positive")
	ErrBadPrefix = errors.New("ratelimit: exempt entry is not an IP prefix")
	ErrBadProxy  = errors.New("ratelimit: trusted proxy entry is not an IP prefix")
)

var limited = promauto.NewCounter(prometheus.CounterOpts{
	Name: "captchad_ratelimited_requests",
	Help: "The number of requests refused by the rate limiter",
})

// Config describes a token bucket per client address.
type Config struct {
	// Every is how often one token is added to a client's bucket.
	Every time.Duration

	// Burst is the bucket size.
	Burst int

	// Idle is how long a client's bucket is kept after its last request.
	Idle time.Duration

	// Exempt lists CIDR prefixes that are never limited.
	Exempt []string

	// TrustedProxies lists CIDR prefixes whose X-Forwarded-For header is
	// believed. Requests from any other peer are keyed by the socket address.
	TrustedProxies []string
}

func (c Config) Valid() error {
	var errs []error

	if c.Every <= 0 {
		errs = append(errs, ErrBadRate)
	}

	if c.Burst <= 0 {
		errs = append(errs, ErrBadBurst)
	}

	for _, pfx := range c.Exempt {
		if _, err := netip.ParsePrefix(pfx); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %w", ErrBadPrefix, pfx, err))
		}
	}

	for _, pfx := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(pfx); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %w", ErrBadProxy, pfx, err))
		}
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client address.
type Limiter struct {
	every   time.Duration
	burst   int
	idle    time.Duration
	exempt  *bart.Table[struct{}]
	trusted *bart.Table[struct{}]
	now     func() time.Time

	mu      sync.Mutex
	clients map[netip.Addr]*client
}

func New(c Config) (*Limiter, error) {
	if err := c.Valid(); err != nil {
		return nil, err
	}

	if c.Idle <= 0 {
		c.Idle = 10 * time.Minute
	}

	result := &Limiter{
		every:   c.Every,
		burst:   c.Burst,
		idle:    c.Idle,
		exempt:  &bart.Table[struct{}]{},
		trusted: &bart.Table[struct{}]{},
		now:     time.Now,
		clients: map[netip.Addr]*client{},
	}

	for _, pfx := range c.Exempt {
		result.exempt.Insert(netip.MustParsePrefix(pfx).Masked(), struct{}{})
	}

	for _, pfx := range c.TrustedProxies {
		result.trusted.Insert(netip.MustParsePrefix(pfx).Masked(), struct{}{})
	}

	return result, nil
}

// Exempt reports whether addr is in an exempt prefix.
func (l *Limiter) Exempt(addr netip.Addr) bool {
	_, ok := l.exempt.Lookup(addr.Unmap())
	return ok
}

// Allow takes a token from addr's bucket.
func (l *Limiter) Allow(addr netip.Addr) bool {
	addr = addr.Unmap()

	if l.Exempt(addr) {
		return true
	}

	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[addr]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.clients[addr] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	if !c.limiter.AllowN(now, 1) {
		limited.Inc()
		return false
	}

	return true
}

// Cleanup forgets clients idle for longer than the configured idle time.
func (l *Limiter) Cleanup(ctx context.Context) (int, error) {
	cutoff := l.now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	var removed int
	for addr, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, addr)
			removed++
		}
	}

	return removed, nil
}

// ClientAddr finds the address of the client that made r. The first public
// address in X-Forwarded-For is only used when the socket peer is a trusted
// proxy.
func (l *Limiter) ClientAddr(r *http.Request) (netip.Addr, error) {
	remote := xff.GetRemoteAddrIfAllowed(r, l.trustedProxy)

	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("ratelimit: can't parse client address %q: %w", remote, err)
	}

	return addr.Unmap(), nil
}

func (l *Limiter) trustedProxy(peer string) bool {
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}

	_, ok := l.trusted.Lookup(addr.Unmap())
	return ok
}
