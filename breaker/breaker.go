package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultFailureThreshold is the consecutive-failure count that opens a circuit
	DefaultFailureThreshold = 3

	// DefaultRecoveryTimeout is how long an open circuit waits before
	// allowing a half-open trial call
	DefaultRecoveryTimeout = 30 * time.Second
)

// ErrOpen is the synthetic failure returned without attempting work
// while a downstream's circuit is open
var ErrOpen = errors.New("circuit open")

// State represents the failure-isolation state of one downstream service
type State int

const (
	Closed State = iota + 1
	Open
	HalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

/* circuit is the per-downstream state machine
 *
 *   closed --(threshold consecutive failures)--> open
 *   open --(recovery timeout elapsed)--> half_open
 *   half_open --(trial success)--> closed
 *   half_open --(trial failure)--> open
 */
type circuit struct {
	state               State
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// Settings configures all circuits in a registry; zero values take defaults
type Settings struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration

	// Now is the clock used for recovery checks; defaults to time.Now
	Now func() time.Time
}

/* Registry tracks one circuit per named downstream service
 * Injected into the retry orchestrator rather than held as ambient
 * global state so tests get fresh instances
 * Transitions are driven only by Allow/ReportSuccess/ReportFailure,
 * never by external callers poking at state
 */
type Registry struct {
	mu       sync.Mutex
	settings Settings
	circuits map[string]*circuit
}

// NewRegistry creates a registry with the given settings
func NewRegistry(settings Settings) *Registry {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = DefaultFailureThreshold
	}
	if settings.RecoveryTimeout <= 0 {
		settings.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Registry{
		settings: settings,
		circuits: make(map[string]*circuit),
	}
}

// Allow reports whether a call to the named downstream may proceed.
// An open circuit past its recovery timeout moves to half-open and
// admits exactly one trial call; further callers fail fast until the
// trial's outcome is reported.
func (r *Registry) Allow(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(name)
	switch c.state {
	case Closed:
		return nil
	case Open:
		if r.settings.Now().Sub(c.openedAt) < r.settings.RecoveryTimeout {
			return fmt.Errorf("%s: %w", name, ErrOpen)
		}
		c.state = HalfOpen
		c.trialInFlight = true
		return nil
	case HalfOpen:
		if c.trialInFlight {
			return fmt.Errorf("%s: %w", name, ErrOpen)
		}
		c.trialInFlight = true
		return nil
	}
	return nil
}

// ReportSuccess records a successful call outcome for the named downstream
func (r *Registry) ReportSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(name)
	c.state = Closed
	c.consecutiveFailures = 0
	c.trialInFlight = false
}

// ReportFailure records a failed call outcome for the named downstream
func (r *Registry) ReportFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.circuit(name)
	switch c.state {
	case HalfOpen:
		c.state = Open
		c.openedAt = r.settings.Now()
		c.trialInFlight = false
	default:
		c.consecutiveFailures++
		if c.consecutiveFailures >= r.settings.FailureThreshold {
			c.state = Open
			c.openedAt = r.settings.Now()
		}
	}
}

// State returns the current state of the named downstream's circuit
func (r *Registry) State(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.circuit(name).state
}

// States returns a snapshot of every tracked circuit, for observability
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[string]State, len(r.circuits))
	for name, c := range r.circuits {
		snapshot[name] = c.state
	}
	return snapshot
}

func (r *Registry) circuit(name string) *circuit {
	c, ok := r.circuits[name]
	if !ok {
		c = &circuit{state: Closed}
		r.circuits[name] = c
	}
	return c
}
