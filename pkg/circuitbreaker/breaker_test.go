package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	isOpen, failures := b.GetState()
	assert.True(t, isOpen)
	assert.Equal(t, 3, failures)
}

func TestBreakerSuccessResets(t *testing.T) {
	b := New(2, time.Minute)

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
}

func TestBreakerCooldownElapses(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, b.IsOpen())
}
