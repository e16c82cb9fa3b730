// Package breaker holds per-route circuit state: a failure counter that
// temporarily blocks new attempts against a route after repeated retryable
// failures.
package breaker

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/seekwell/llmgw"
)

const shardCount = 16

// Config controls breaker behavior. A zero FailureThreshold or Cooldown is
// replaced by the defaults below.
type Config struct {
	Enabled          bool
	FailureThreshold int
	Cooldown         time.Duration
}

const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second
)

type routeState struct {
	failures  int
	openUntil time.Time
}

type shard struct {
	mu     sync.Mutex
	routes map[string]*routeState
}

// Breaker is a process-wide registry of per-route circuit state, sharded by
// route key. Construct one and inject it into the gateway; state persists
// across calls.
type Breaker struct {
	config Config
	clock  clock.Clock
	shards [shardCount]*shard
	logger *zap.SugaredLogger
}

func New(config Config, logger *zap.SugaredLogger) *Breaker {
	return NewWithClock(config, clock.New(), logger)
}

func NewWithClock(config Config, clk clock.Clock, logger *zap.SugaredLogger) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	b := &Breaker{
		config: config,
		clock:  clk,
		logger: logger,
	}
	for i := range b.shards {
		b.shards[i] = &shard{routes: make(map[string]*routeState)}
	}
	return b
}

func (b *Breaker) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return b.shards[h.Sum32()%shardCount]
}

// Check fails fast with a CircuitOpenError while the route's circuit is
// open. Once the cooldown has elapsed the state self-heals back to closed
// with a zero failure counter.
func (b *Breaker) Check(route llmgw.RouteSpec) error {
	if !b.config.Enabled {
		return nil
	}
	key := route.Key()
	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.routes[key]
	if !exists || state.openUntil.IsZero() {
		return nil
	}
	now := b.clock.Now()
	if now.Before(state.openUntil) {
		return llmgw.CircuitOpenError{Err: fmt.Errorf(
			"circuit open for route %s until %s", key, state.openUntil.Format(time.RFC3339))}
	}
	delete(s.routes, key)
	b.logger.Infow("Circuit closed after cooldown", "route", key)
	return nil
}

// RecordSuccess clears the route's failure counter and open-until timestamp.
// Also called for non-retryable provider failures: a definite 4xx proves the
// route is reachable, so it counts toward route health, not against it.
func (b *Breaker) RecordSuccess(route llmgw.RouteSpec) {
	if !b.config.Enabled {
		return
	}
	key := route.Key()
	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routes, key)
}

// RecordFailure increments the route's failure counter and opens the circuit
// once the threshold is first reached. Further failures within an open
// window do not extend the cooldown.
func (b *Breaker) RecordFailure(route llmgw.RouteSpec) {
	if !b.config.Enabled {
		return
	}
	key := route.Key()
	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.routes[key]
	if !exists {
		state = &routeState{}
		s.routes[key] = state
	}
	state.failures++
	if state.failures >= b.config.FailureThreshold && state.openUntil.IsZero() {
		state.openUntil = b.clock.Now().Add(b.config.Cooldown)
		b.logger.Warnw("Circuit opened",
			"route", key,
			"failures", state.failures,
			"open_until", state.openUntil)
	}
}
