package circuitbreaker

import (
	"sync"
	"time"

	"github.com/relayswap-hq/relayswap-coordinator/pkg/logger"
)

// Breaker trips after a burst of failures against one collaborator and stays
// open until the reset timeout passes, at which point the next call probes
// the collaborator again.
type Breaker struct {
	name          string
	enabled       bool
	failThreshold int
	failureWindow time.Duration
	resetTimeout  time.Duration
	logger        logger.Logger

	mu           sync.Mutex
	failureCount int
	lastFailure  time.Time
	tripped      bool
	tripTime     time.Time
}

// State is a point-in-time snapshot for the status endpoint.
type State struct {
	Name         string    `json:"name"`
	Enabled      bool      `json:"enabled"`
	Open         bool      `json:"open"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure"`
	TripTime     time.Time `json:"trip_time"`
}

// New creates a breaker guarding one named collaborator.
func New(name string, enabled bool, threshold int, window, resetTimeout time.Duration, log logger.Logger) *Breaker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Breaker{
		name:          name,
		enabled:       enabled,
		failThreshold: threshold,
		failureWindow: window,
		resetTimeout:  resetTimeout,
		logger:        log,
	}
}

// RecordFailure counts a failure and reports whether the circuit is now
// open. Failures spaced further apart than the window do not accumulate.
func (b *Breaker) RecordFailure() bool {
	if !b.enabled {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.tripped {
		if now.Sub(b.tripTime) > b.resetTimeout {
			b.logger.Notice("Circuit for %s half-open after %s cooldown", b.name, b.resetTimeout)
			b.tripped = false
			b.failureCount = 0
		} else {
			return true
		}
	}

	if now.Sub(b.lastFailure) > b.failureWindow {
		b.failureCount = 0
	}
	b.failureCount++
	b.lastFailure = now

	if b.failureCount >= b.failThreshold {
		b.tripped = true
		b.tripTime = now
		b.logger.Error("Circuit for %s tripped: %d failures inside %s", b.name, b.failureCount, b.failureWindow)
		return true
	}
	return false
}

// RecordSuccess clears the failure streak. A success right after the
// cooldown also closes a still-tripped circuit.
func (b *Breaker) RecordSuccess() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	if b.tripped && time.Since(b.tripTime) > b.resetTimeout {
		b.tripped = false
	}
}

// IsOpen reports whether calls should be blocked. A tripped circuit whose
// cooldown has passed closes so the next call can probe.
func (b *Breaker) IsOpen() bool {
	if !b.enabled {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped && time.Since(b.tripTime) > b.resetTimeout {
		b.tripped = false
		b.failureCount = 0
		return false
	}
	return b.tripped
}

// Reset closes the circuit unconditionally, for the operator endpoint.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped {
		b.logger.Notice("Circuit for %s manually reset", b.name)
	}
	b.tripped = false
	b.failureCount = 0
}

// Name returns the collaborator this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	open := b.tripped && time.Since(b.tripTime) <= b.resetTimeout
	return State{
		Name:         b.name,
		Enabled:      b.enabled,
		Open:         open,
		FailureCount: b.failureCount,
		LastFailure:  b.lastFailure,
		TripTime:     b.tripTime,
	}
}
