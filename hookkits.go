package gracy

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Gate is a shared mutex hooks use to pause every subsequent request:
// PauseFor holds it for a duration, and Before calls Await, which simply
// waits until it's free again before letting the request through.
type Gate struct {
	mu sync.Mutex
}

// PauseFor holds the gate for d, causing every concurrent Await to block
// until it elapses.
func (g *Gate) PauseFor(d time.Duration) {
	g.mu.Lock()
	time.AfterFunc(d, g.mu.Unlock)
}

// Await blocks until the gate is free, or ctx is done.
func (g *Gate) Await(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.mu.Lock()
		g.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryAfterHook observes the standard HTTP Retry-After header and pauses
// every caller sharing the hook (global or per-endpoint, depending on how
// many instances are registered) for the requested duration.
type RetryAfterHook struct {
	gate Gate
}

func NewRetryAfterHook() *RetryAfterHook { return &RetryAfterHook{} }

func (h *RetryAfterHook) Before(ctx context.Context, _ *RequestContext) error {
	return h.gate.Await(ctx)
}

func (h *RetryAfterHook) After(_ context.Context, _ *RequestContext, outcome HookOutcome, _ *RetryState) {
	if outcome.Response == nil {
		return
	}
	raw := outcome.Response.Headers.Get("Retry-After")
	if raw == "" {
		return
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		h.gate.PauseFor(time.Duration(secs) * time.Second)
		return
	}
	if when, err := http.ParseTime(raw); err == nil {
		if d := time.Until(when); d > 0 {
			h.gate.PauseFor(d)
		}
	}
}

// FixedBackoffOn429Hook pauses every caller for a fixed duration whenever a
// 429 response is observed, regardless of whether the server sent a
// Retry-After header.
type FixedBackoffOn429Hook struct {
	gate     Gate
	Duration time.Duration
}

func NewFixedBackoffOn429Hook(d time.Duration) *FixedBackoffOn429Hook {
	return &FixedBackoffOn429Hook{Duration: d}
}

func (h *FixedBackoffOn429Hook) Before(ctx context.Context, _ *RequestContext) error {
	return h.gate.Await(ctx)
}

func (h *FixedBackoffOn429Hook) After(_ context.Context, _ *RequestContext, outcome HookOutcome, _ *RetryState) {
	if outcome.Response != nil && outcome.Response.StatusCode == http.StatusTooManyRequests {
		h.gate.PauseFor(h.Duration)
	}
}
