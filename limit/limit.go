// Package limit bounds in-flight attempts per provider (not per route) with
// weighted semaphores.
package limit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/seekwell/llmgw"
)

// Limiter holds one semaphore per provider. Providers without a configured
// limit (or with a limit of zero) are unbounded.
type Limiter struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted

	limits map[string]int
}

func New(limits map[string]int) *Limiter {
	return &Limiter{
		sems:   make(map[string]*semaphore.Weighted),
		limits: limits,
	}
}

func noopRelease() {}

// Acquire blocks until a slot for the provider frees or ctx is done. The
// caller must invoke the returned release exactly once, regardless of the
// attempt's outcome; the slot is held for the attempt's entire retry loop.
func (l *Limiter) Acquire(ctx context.Context, provider string) (func(), error) {
	sem := l.semFor(provider)
	if sem == nil {
		return noopRelease, nil
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, llmgw.ConcurrencyTimeoutError{Err: fmt.Errorf(
			"timed out waiting for a %s slot: %w", provider, err)}
	}
	var once sync.Once
	return func() {
		once.Do(func() { sem.Release(1) })
	}, nil
}

func (l *Limiter) semFor(provider string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sem, exists := l.sems[provider]; exists {
		return sem
	}
	limit := l.limits[provider]
	if limit <= 0 {
		return nil
	}
	sem := semaphore.NewWeighted(int64(limit))
	l.sems[provider] = sem
	return sem
}
