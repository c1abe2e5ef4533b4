// Package circuitbreaker tracks per-destination failure streaks so
// the runner stops hammering a backup target that is offline (an
// unmounted drive, an unreachable share) and retries it only after a
// cooldown.
package circuitbreaker

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// Default tuning for backup destinations. A removable drive that
// failed three operations in a row is almost certainly unplugged;
// probe it again after the cooldown.
const (
	DefaultThreshold = 3
	DefaultCooldown  = 5 * time.Minute
)

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type destState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

// CircuitBreaker gates work per destination path. Destinations start
// closed (allowed); threshold consecutive failures open the circuit;
// after cooldown a single probe is let through (half-open) and its
// outcome decides whether the circuit closes or re-opens.
type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*destState
	threshold int
	cooldown  time.Duration
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		states:    make(map[string]*destState),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether work against dest may proceed. In the open
// state it returns ErrCircuitOpen until the cooldown elapses, then
// admits one probe.
func (cb *CircuitBreaker) Allow(dest string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[dest]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if time.Since(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess closes the circuit for dest and clears its streak.
func (cb *CircuitBreaker) RecordSuccess(dest string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[dest]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

// RecordFailure extends dest's failure streak and opens the circuit
// once the streak reaches the threshold. A failed half-open probe
// re-opens with a fresh cooldown.
func (cb *CircuitBreaker) RecordFailure(dest string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[dest]
	if !ok {
		s = &destState{}
		cb.states[dest] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = time.Now()
	}
}

// OpenDestinations returns the destinations currently refusing work,
// sorted. Half-open circuits are excluded: they admit a probe.
func (cb *CircuitBreaker) OpenDestinations() []string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var open []string
	for dest, s := range cb.states {
		if s.state == stateOpen && time.Since(s.openedAt) < cb.cooldown {
			open = append(open, dest)
		}
	}
	sort.Strings(open)
	return open
}
