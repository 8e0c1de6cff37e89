// Package allocator picks local ports for hosts that only allow binding a
// fixed port range, such as Docker Desktop's published range.
package allocator

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"pfctl/internal/session"
)

const (
	// DefaultMinPort and DefaultMaxPort bound the range Docker Desktop publishes.
	DefaultMinPort = 30000
	DefaultMaxPort = 32000

	// DefaultMaxAttempts bounds the random draws before falling back to a scan.
	DefaultMaxAttempts = 4096

	// WildcardAddress is used in constrained mode because the forwarding agent
	// runs outside the local network namespace.
	WildcardAddress = "0.0.0.0"
	// LoopbackAddress is used everywhere else.
	LoopbackAddress = "localhost"
)

// ErrPortsExhausted is returned when every port of the range is held by a running session.
var ErrPortsExhausted = errors.New("no free port left in range")

// Config configures an Allocator. Zero values select the defaults.
type Config struct {
	MinPort     int
	MaxPort     int
	MaxAttempts int
	// Rand is the random source; nil seeds one from the clock.
	Rand *rand.Rand
}

// Allocator draws ports uniformly from an inclusive range.
type Allocator struct {
	min, max    int
	maxAttempts int

	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates an allocator, validating the range.
func New(cfg Config) (*Allocator, error) {
	if cfg.MinPort == 0 {
		cfg.MinPort = DefaultMinPort
	}
	if cfg.MaxPort == 0 {
		cfg.MaxPort = DefaultMaxPort
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MinPort < 1 || cfg.MaxPort > 65535 || cfg.MinPort > cfg.MaxPort {
		return nil, fmt.Errorf("invalid port range %d-%d", cfg.MinPort, cfg.MaxPort)
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Allocator{
		min:         cfg.MinPort,
		max:         cfg.MaxPort,
		maxAttempts: cfg.MaxAttempts,
		rnd:         rnd,
	}, nil
}

// Range returns the inclusive port range.
func (a *Allocator) Range() (int, int) {
	return a.min, a.max
}

// Size is the number of ports in the range.
func (a *Allocator) Size() int {
	return a.max - a.min + 1
}

// Allocate returns a port from the range that no running session in active uses.
func (a *Allocator) Allocate(active []session.Session) (int, error) {
	used := session.ActivePorts(active)

	inRange := 0
	for p := range used {
		n, err := strconv.Atoi(p)
		if err == nil && n >= a.min && n <= a.max {
			inRange++
		}
	}
	if inRange >= a.Size() {
		return 0, fmt.Errorf("%w %d-%d: %d running sessions", ErrPortsExhausted, a.min, a.max, inRange)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < a.maxAttempts; i++ {
		candidate := a.min + a.rnd.Intn(a.Size())
		if _, taken := used[strconv.Itoa(candidate)]; !taken {
			return candidate, nil
		}
	}

	// Dense range: scan from a random offset so the pick stays spread out.
	offset := a.rnd.Intn(a.Size())
	for i := 0; i < a.Size(); i++ {
		candidate := a.min + (offset+i)%a.Size()
		if _, taken := used[strconv.Itoa(candidate)]; !taken {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("%w %d-%d", ErrPortsExhausted, a.min, a.max)
}
