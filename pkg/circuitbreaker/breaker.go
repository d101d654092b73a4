package circuitbreaker

import (
	"sync"
	"time"
)

// SimpleBreaker tracks consecutive failures against a remote dependency and
// opens after a threshold, staying open for a cooldown period.
type SimpleBreaker struct {
	mu              sync.RWMutex
	failures        int
	lastFailureTime time.Time
	isOpen          bool

	threshold int
	cooldown  time.Duration
}

func New(threshold int, cooldown time.Duration) *SimpleBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return &SimpleBreaker{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// IsOpen reports whether calls should be skipped. The breaker half-closes
// itself once the cooldown has elapsed.
func (b *SimpleBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.isOpen {
		return false
	}

	if time.Since(b.lastFailureTime) > b.cooldown {
		b.isOpen = false
		b.failures = 0
		return false
	}

	return true
}

// RecordSuccess resets the failure counter.
func (b *SimpleBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.isOpen = false
}

// RecordFailure increments the failure counter and opens the circuit once the
// threshold is reached.
func (b *SimpleBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = time.Now()

	if b.failures >= b.threshold {
		b.isOpen = true
	}
}

// Reset manually closes the circuit.
func (b *SimpleBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.isOpen = false
}

// GetState returns the current state for monitoring.
func (b *SimpleBreaker) GetState() (isOpen bool, failures int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.isOpen, b.failures
}
