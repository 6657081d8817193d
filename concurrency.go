package gracy

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/guilatrova/gracy/internal/logging"
)

const globalConcurrencyScope = "__global__"

// ConcurrencyPolicy caps how many requests may be in flight at once for a
// scope: per-endpoint by default, or global when Global is set.
type ConcurrencyPolicy struct {
	Limit  int
	Global bool

	LogLimitReached logging.Event
	LogLimitFreed   logging.Event
}

// scopeKey returns the key this policy's semaphore is shared under: either
// the endpoint template (per-endpoint scope) or a singleton global key.
func (p ConcurrencyPolicy) scopeKey(unformattedEndpoint string) string {
	if p.Global {
		return globalConcurrencyScope
	}
	return unformattedEndpoint
}

type gateEntry struct {
	sem     *semaphore.Weighted
	limit   int64
	mu      sync.Mutex
	inFlight int64
}

// ConcurrencyGate maps a scope key to a counted semaphore with `limit`
// permits. acquire/release log on the transitions into and out of full
// saturation.
type ConcurrencyGate struct {
	mu      sync.Mutex
	entries map[string]*gateEntry
	logger  logging.Logger
}

// NewConcurrencyGate builds an empty gate; entries are created lazily per
// scope key the first time a policy references them.
func NewConcurrencyGate(logger logging.Logger) *ConcurrencyGate {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &ConcurrencyGate{entries: make(map[string]*gateEntry), logger: logger}
}

func (g *ConcurrencyGate) entryFor(scope string, limit int) *gateEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[scope]
	if !ok || e.limit != int64(limit) {
		e = &gateEntry{sem: semaphore.NewWeighted(int64(limit)), limit: int64(limit)}
		g.entries[scope] = e
	}
	return e
}

// release undoes one Acquire; cancellation during the wait never leaks a
// permit because Acquire only marks inFlight after the semaphore grants it.
type release func()

// Acquire blocks until a slot is free for policy's scope, emitting
// log_limit_reached on the transition into full saturation. The returned
// func must be called exactly once to release the slot.
func (g *ConcurrencyGate) Acquire(ctx context.Context, unformattedEndpoint string, policy *ConcurrencyPolicy) (release, error) {
	if policy == nil || policy.Limit <= 0 {
		return func() {}, nil
	}

	entry := g.entryFor(policy.scopeKey(unformattedEndpoint), policy.Limit)

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	entry.mu.Lock()
	entry.inFlight++
	atLimit := entry.inFlight == entry.limit
	entry.mu.Unlock()
	if atLimit {
		logging.Emit(g.logger, policy.LogLimitReached, nil)
	}

	released := false
	var once sync.Mutex
	return func() {
		once.Lock()
		defer once.Unlock()
		if released {
			return
		}
		released = true

		entry.mu.Lock()
		entry.inFlight--
		wasAtLimit := entry.inFlight == entry.limit-1
		entry.mu.Unlock()

		entry.sem.Release(1)
		if wasAtLimit {
			logging.Emit(g.logger, policy.LogLimitFreed, nil)
		}
	}, nil
}
