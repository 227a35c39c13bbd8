package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call while the breaker rejects requests
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed   CircuitState = iota // Normal operation
	StateOpen                         // Circuit is open, requests fail immediately
	StateHalfOpen                     // Testing if service has recovered
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// StateChangeFunc is invoked with the breaker lock released after every transition
type StateChangeFunc func(name string, from, to CircuitState)

// CircuitBreaker implements the circuit breaker pattern
type CircuitBreaker struct {
	name         string
	maxFailures  int           // Number of failures before opening circuit
	resetTimeout time.Duration // Time to wait before attempting half-open
	halfOpenMax  int           // Max trial requests in half-open state
	onChange     StateChangeFunc

	mu                sync.Mutex
	state             CircuitState
	failureCount      int
	lastFailTime      time.Time
	halfOpenInFlight  int
	successCount      int
	requestCount      int64
	failureCountTotal int64
	now               func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		state:        StateClosed,
		now:          time.Now,
	}
}

// OnStateChange registers a transition callback. Not safe to call concurrently with Call.
func (cb *CircuitBreaker) OnStateChange(fn StateChangeFunc) {
	cb.onChange = fn
}

// Call executes fn with circuit breaker protection
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.RecordResult(err == nil)

	return err
}

// allowRequest checks if a request should be allowed
func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	from := cb.state
	allowed := false

	switch cb.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if cb.now().Sub(cb.lastFailTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenInFlight = 1
			cb.successCount = 0
			allowed = true
		}

	case StateHalfOpen:
		if cb.halfOpenInFlight < cb.halfOpenMax {
			cb.halfOpenInFlight++
			allowed = true
		}
	}

	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return allowed
}

// RecordResult records the result of a request
func (cb *CircuitBreaker) RecordResult(success bool) {
	cb.mu.Lock()
	from := cb.state

	cb.requestCount++
	if success {
		cb.recordSuccess()
	} else {
		cb.recordFailure()
	}

	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failureCount = 0

	case StateHalfOpen:
		cb.successCount++
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		if cb.successCount >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.halfOpenInFlight = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCountTotal++
	cb.lastFailTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}

	case StateHalfOpen:
		// Any failure in half-open immediately opens the circuit
		cb.state = StateOpen
		cb.halfOpenInFlight = 0
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) notify(from, to CircuitState) {
	if from != to && cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() (state CircuitState, requestCount, failureCount int64, failureRate float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state = cb.state
	requestCount = cb.requestCount
	failureCount = cb.failureCountTotal

	if requestCount > 0 {
		failureRate = float64(failureCount) / float64(requestCount) * 100.0
	}

	return
}
