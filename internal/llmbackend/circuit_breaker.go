// Copyright 2026 NGOClaw Authors. All rights reserved.
package llmbackend

import (
	"sync"
	"time"
)

// CircuitState is the state of one backend's circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements a closed/open/half-open gate: failureThreshold
// consecutive failures trip the circuit, and callers are rejected
// immediately while open. Once the timeout has elapsed, the next Allow
// turns the circuit half-open. While half-open, Allow lets every call
// through; the number of probes is not limited. successThreshold successes
// close the circuit and a single failure reopens it.
type CircuitBreaker struct {
	mu               sync.RWMutex
	state            CircuitState
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	openedAt         time.Time
}

// NewCircuitBreaker creates a breaker with the given thresholds. A
// failureThreshold or successThreshold <= 0 falls back to 5 and 1
// respectively; a non-positive timeout falls back to 30s.
func NewCircuitBreaker(failureThreshold, successThreshold int, timeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
	}
}

// Allow reports whether a call should proceed now. While open it also
// performs the open->half-open transition once the timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.openedAt) >= cb.timeout {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	}
	return false
}

// TimeUntilRetry returns how long until an open circuit allows a probe.
// Zero or negative means a probe is allowed now.
func (cb *CircuitBreaker) TimeUntilRetry() time.Duration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if cb.state != CircuitOpen {
		return 0
	}
	return cb.timeout - time.Since(cb.openedAt)
}

// RecordSuccess reports a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state == CircuitHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
		}
	}
}

// RecordFailure reports a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.openedAt = time.Now()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		return
	}
	if cb.failureCount >= cb.failureThreshold {
		cb.state = CircuitOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the circuit back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.successCount = 0
}

// Breakers is a thread-safe registry of circuit breakers keyed by backend
// name. Two clients configured with the same backend name share one
// breaker, so failures observed by one agent loop protect every other loop
// talking to the same backend in this process.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakers creates an empty registry.
func NewBreakers() *Breakers {
	return &Breakers{breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for name, building it with build the first time
// the name is seen. A nil build falls back to default thresholds.
func (b *Breakers) Get(name string, build func() *CircuitBreaker) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[name]; ok {
		return cb
	}
	var cb *CircuitBreaker
	if build != nil {
		cb = build()
	} else {
		cb = NewCircuitBreaker(0, 0, 0)
	}
	b.breakers[name] = cb
	return cb
}

// SharedBreakers is the process-wide breaker table. Concurrent agent loops
// share no mutable state except the tool registry, the token-encoding
// cache, and this table.
var SharedBreakers = NewBreakers()
