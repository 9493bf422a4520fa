package core

// dispatch_limiter.go bounds concurrent report dispatches to the
// reporting service. Each wizard already serializes its own submissions;
// the limiter caps the total across sessions so a burst of CSV uploads
// cannot exhaust connections to the service.
//
// When all slots are occupied, new dispatches wait up to maxWait before
// failing with ErrTooManyDispatches. WaitForDrain supports graceful
// shutdown: it blocks until all in-flight dispatches complete.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyDispatches is returned when all dispatch slots are occupied
// and the wait timeout expires. Callers should retry after a short delay.
var ErrTooManyDispatches = errors.New("too many concurrent submissions, please try again later")

// DefaultMaxConcurrentDispatches is the default limit for parallel dispatches.
const DefaultMaxConcurrentDispatches = 8

// DefaultDispatchMaxWait is how long to wait for a slot before rejecting.
const DefaultDispatchMaxWait = 15 * time.Second

// DispatchLimiter restricts parallel report creation calls with a
// semaphore.
type DispatchLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewDispatchLimiter creates a limiter allowing at most maxConcurrent
// simultaneous dispatches. Zero values select the defaults.
func NewDispatchLimiter(maxConcurrent int, maxWait time.Duration) *DispatchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentDispatches
	}
	if maxWait <= 0 {
		maxWait = DefaultDispatchMaxWait
	}
	return &DispatchLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire claims a dispatch slot, waiting up to maxWait. The caller must
// call Release exactly once after a nil return.
func (l *DispatchLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyDispatches
	}
}

// Release frees a previously acquired slot.
func (l *DispatchLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of dispatches currently in flight.
func (l *DispatchLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until all in-flight dispatches complete or ctx is
// cancelled. Used during shutdown so submissions are not cut off mid-call.
func (l *DispatchLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}
