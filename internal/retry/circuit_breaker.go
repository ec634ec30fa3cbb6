package retry

import (
	"fmt"
	"sync"
	"time"

	ncerr "drinksync/internal/errors"
)

// ── Breaker state ────────────────────────────────────────────────────

// State is the breaker position.
type State int

const (
	// StateClosed lets attempts through.
	StateClosed State = iota
	// StateOpen rejects attempts until the cool-down passes.
	StateOpen
	// StateHalfOpen lets probe attempts through after a cool-down.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// MaxFailures opens the breaker after this many failures in a row
	// (default 5).
	MaxFailures int
	// Cooldown is how long the breaker stays open (default 30s).
	Cooldown time.Duration
	// HalfOpenSuccesses closes the breaker again after this many probe
	// successes (default 1).
	HalfOpenSuccesses int
	// OnStateChange runs under the breaker lock on every transition.
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig returns the defaults listed above.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:       5,
		Cooldown:          30 * time.Second,
		HalfOpenSuccesses: 1,
	}
}

// CircuitBreaker counts consecutive connect failures and refuses new
// attempts once a peer has failed too often.  Connect outcomes arrive
// asynchronously, so callers ask Allow before an attempt and report
// the result later with Success or Failure.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	maxFailures int
	cooldown    time.Duration
	probes      int
	onChange    func(from, to State)
	now         func() time.Time
}

// NewCircuitBreaker returns a closed breaker.  A nil cfg uses defaults.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	cb := &CircuitBreaker{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.HalfOpenSuccesses,
		onChange:    cfg.OnStateChange,
		now:         time.Now,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.cooldown <= 0 {
		cb.cooldown = 30 * time.Second
	}
	if cb.probes <= 0 {
		cb.probes = 1
	}
	return cb
}

// Allow reports whether an attempt may start.  When the breaker is
// open the error wraps ErrCircuitOpen and says how long to wait.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	elapsed := cb.now().Sub(cb.openedAt)
	if elapsed >= cb.cooldown {
		cb.successes = 0
		cb.transition(StateHalfOpen)
		return nil
	}
	return fmt.Errorf("%w: %d failures in a row, retry in %v",
		ncerr.ErrCircuitOpen, cb.failures, (cb.cooldown - elapsed).Round(time.Second))
}

// Success records a completed attempt.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.probes {
			cb.failures = 0
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

// Failure records a failed attempt.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.successes = 0
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
	}
}

// Execute runs a synchronous attempt through the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		cb.Failure()
		return err
	}
	cb.Success()
	return nil
}

// CurrentState returns the breaker position.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.successes = 0
	cb.transition(StateClosed)
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}
