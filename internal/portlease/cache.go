// Package portlease issues collision-avoiding ephemeral port numbers.
//
// A single connection attempt may need two cooperating port numbers inside the
// same tick. Asking the OS twice can legally return the same number before the
// first socket is even closed, so the cache remembers recently issued ports
// and refuses to hand them out again until two rotation windows have passed.
package portlease

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

var (
	// ErrPortLocked marks an explicit candidate that the cache still holds
	// from a recent lease, even though the OS may consider it free.
	ErrPortLocked = errors.New("port locked by recent lease")

	// ErrNoAvailablePorts is returned when every candidate and the wildcard
	// fallback are exhausted.
	ErrNoAvailablePorts = errors.New("no available ports")
)

// DefaultWindow is the lease rotation interval. A leased port stays held for
// one to two windows after issue; the over-retention is intentional, to dodge
// TIME_WAIT reuse hazards.
const DefaultWindow = 15 * time.Second

// wildcardAttempts bounds the wildcard probe loop. Hitting the bound means
// the OS keeps assigning ports the cache still holds.
const wildcardAttempts = 8

// probeFunc binds a transient listener on the requested port (0 for an
// OS-assigned one) and reports the bound port. Overridable in tests.
type probeFunc func(port int) (int, error)

// Cache tracks leased port numbers across two rotation windows.
type Cache struct {
	mu       sync.Mutex
	current  map[int]struct{}
	previous map[int]struct{}

	window time.Duration
	probe  probeFunc

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// New creates a cache with the given rotation window.
func New(window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{
		current:  make(map[int]struct{}),
		previous: make(map[int]struct{}),
		window:   window,
		probe:    probePort,
	}
}

// Start launches the window rotation timer.
func (c *Cache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticker != nil {
		return
	}

	c.ticker = time.NewTicker(c.window)
	c.done = make(chan struct{})

	go func() {
		for {
			select {
			case <-c.done:
				return
			case <-c.ticker.C:
				c.rotate()
			}
		}
	}()
}

// Stop halts window rotation. Held ports stay held.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	c.once.Do(func() { close(c.done) })
}

// rotate ages the current window into the previous one.
func (c *Cache) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.previous = c.current
	c.current = make(map[int]struct{})
}

// held reports whether a port is leased in either window.
func (c *Cache) held(port int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.current[port]; ok {
		return true
	}
	_, ok := c.previous[port]
	return ok
}

// record marks a port as leased in the current window.
func (c *Cache) record(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current[port] = struct{}{}
}

// Lease returns a port number that is both free at the OS level and not
// leased within the last two windows.
//
// Explicit candidates are probed in order; a candidate refused by the OS or
// still held by the cache falls through to the next one. When candidates are
// exhausted (or none were given), the OS picks via a wildcard probe.
func (c *Cache) Lease(ctx context.Context, candidates ...int) (int, error) {
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		port, err := c.leaseCandidate(candidate)
		if err != nil {
			continue
		}
		return port, nil
	}

	return c.leaseWildcard(ctx)
}

// leaseCandidate probes one explicit candidate. A cache-held candidate is a
// Locked condition, distinct from OS refusal but with the same fallback.
func (c *Cache) leaseCandidate(candidate int) (int, error) {
	port, err := c.probe(candidate)
	if err != nil {
		return 0, fmt.Errorf("probe port %d: %w", candidate, err)
	}

	if c.held(port) {
		return 0, fmt.Errorf("port %d: %w", port, ErrPortLocked)
	}

	c.record(port)
	return port, nil
}

// leaseWildcard asks the OS for any free port, repeating until the assigned
// port is not held in either window.
func (c *Cache) leaseWildcard(ctx context.Context) (int, error) {
	for i := 0; i < wildcardAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		port, err := c.probe(0)
		if err != nil {
			return 0, fmt.Errorf("wildcard probe: %w: %v", ErrNoAvailablePorts, err)
		}

		if c.held(port) {
			continue
		}

		c.record(port)
		return port, nil
	}

	return 0, ErrNoAvailablePorts
}

// probePort binds a transient listening socket to confirm availability, then
// releases it immediately. Only the number is needed; holding the socket open
// would defeat the forward that binds it next.
func probePort(port int) (int, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, err
	}
	bound := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return bound, nil
}
