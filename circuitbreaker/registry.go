// Package circuitbreaker wraps sony/gobreaker per named operation, guarding
// the half-open "single probe" rule with golang.org/x/sync/singleflight so
// concurrent callers racing the same operation name share one probe instead
// of each attempting their own (spec §4.4).
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// State mirrors gobreaker's three states under the names spec §4.4 uses.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config tunes one named breaker.
type Config struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// DefaultConfig mirrors the teacher's CircuitBreakerConfig defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Registry holds one gobreaker.CircuitBreaker per operation name.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	group    singleflight.Group
	cfg      Config
}

// NewRegistry builds a registry using cfg for every operation it sees.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cfg:      cfg,
	}
}

func (r *Registry) breakerFor(op string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[op]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        op,
		MaxRequests: r.cfg.HalfOpenMaxCalls,
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.cfg.FailureThreshold
		},
	})
	r.breakers[op] = b
	return b
}

// Execute runs fn through the named breaker. While the breaker is half-open,
// concurrent Execute calls for the same op collapse onto a single in-flight
// probe via singleflight, rather than each spending their own admitted call.
func (r *Registry) Execute(ctx context.Context, op string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	b := r.breakerFor(op)
	if b.State() == gobreaker.StateHalfOpen {
		v, err, _ := r.group.Do(op, func() (interface{}, error) {
			return b.Execute(func() (interface{}, error) { return fn(ctx) })
		})
		return v, err
	}
	return b.Execute(func() (interface{}, error) { return fn(ctx) })
}

// State reports the current breaker state for an operation, creating it with
// the registry's config if unseen (an unseen operation is closed).
func (r *Registry) State(op string) State {
	switch r.breakerFor(op).State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Counts exposes the raw gobreaker counters for metrics/diagnostics.
func (r *Registry) Counts(op string) gobreaker.Counts {
	return r.breakerFor(op).Counts()
}
