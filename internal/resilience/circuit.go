package resilience

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// CircuitState mirrors gobreaker.State as a relaycc-local type so callers
// outside this package never import gobreaker directly.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
	CircuitOpen     CircuitState = "OPEN"
)

// CircuitConfig holds circuit breaker configuration, unchanged from the
// teacher's coordinator/resilience defaults.
type CircuitConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitConfig returns sensible defaults for per-worker breaking.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		MaxRequests:  3,
		Interval:     10 * time.Second,
		Timeout:      60 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  3,
	}
}

// CircuitManager tracks one gobreaker.CircuitBreaker per worker identity.
// A scheduler consults IsOpen before selecting a worker; dispatch reports
// each hand-off to a worker's outbound channel via Execute so the breaker
// can trip.
type CircuitManager struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	config   CircuitConfig
	onChange func(workerID string, from, to CircuitState)
}

// NewCircuitManager creates a new circuit manager.
func NewCircuitManager(cfg CircuitConfig) *CircuitManager {
	return &CircuitManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   cfg,
	}
}

// OnStateChange sets a callback invoked whenever any worker's breaker
// changes state, used by the producer to keep the per-worker
// circuit_state metric current.
func (m *CircuitManager) OnStateChange(fn func(workerID string, from, to CircuitState)) {
	m.onChange = fn
}

func (m *CircuitManager) getOrCreate(workerID string) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	cb, exists := m.breakers[workerID]
	m.mu.RUnlock()
	if exists {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, exists = m.breakers[workerID]; exists {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        workerID,
		MaxRequests: m.config.MaxRequests,
		Interval:    m.config.Interval,
		Timeout:     m.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < m.config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= m.config.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromState := gobreakerStateToCircuitState(from)
			toState := gobreakerStateToCircuitState(to)
			log.Info().
				Str("worker_id", name).
				Str("from", string(fromState)).
				Str("to", string(toState)).
				Msg("circuit breaker state change")
			if m.onChange != nil {
				m.onChange(name, fromState, toState)
			}
		},
	}

	cb = gobreaker.NewCircuitBreaker(settings)
	m.breakers[workerID] = cb
	return cb
}

// Execute wraps fn with the named worker's circuit breaker.
func (m *CircuitManager) Execute(workerID string, fn func() (interface{}, error)) (interface{}, error) {
	cb := m.getOrCreate(workerID)
	return cb.Execute(fn)
}

// IsOpen reports whether the named worker's circuit is currently open.
// An unknown worker is treated as closed (never yet tripped).
func (m *CircuitManager) IsOpen(workerID string) bool {
	m.mu.RLock()
	cb, exists := m.breakers[workerID]
	m.mu.RUnlock()
	if !exists {
		return false
	}
	return cb.State() == gobreaker.StateOpen
}

// GetState returns the current state of a worker's circuit breaker.
func (m *CircuitManager) GetState(workerID string) CircuitState {
	m.mu.RLock()
	cb, exists := m.breakers[workerID]
	m.mu.RUnlock()
	if !exists {
		return CircuitClosed
	}
	return gobreakerStateToCircuitState(cb.State())
}

// Remove drops the tracked breaker for a worker, called when the worker
// disconnects so a reconnecting worker with the same identity starts
// fresh.
func (m *CircuitManager) Remove(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, workerID)
}

func gobreakerStateToCircuitState(state gobreaker.State) CircuitState {
	switch state {
	case gobreaker.StateClosed:
		return CircuitClosed
	case gobreaker.StateHalfOpen:
		return CircuitHalfOpen
	case gobreaker.StateOpen:
		return CircuitOpen
	default:
		return CircuitClosed
	}
}
