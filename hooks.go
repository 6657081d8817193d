package gracy

import (
	"context"
	"time"

	"github.com/guilatrova/gracy/internal/logging"
)

// RetryState is passed to After once per attempt that is about to be
// retried, so a hook may observe in-flight retries and react to them. The
// terminal After call receives a nil RetryState.
type RetryState struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
}

// HookOutcome is the response-or-error an After hook observes.
type HookOutcome struct {
	Response *Response
	Err      error
}

// Hook is the before/after extension point: Before runs ahead of every
// dispatch (including each retry attempt); After runs once the pipeline
// reaches a terminal outcome, plus once per completed retry attempt with a
// non-nil RetryState.
type Hook interface {
	Before(ctx context.Context, reqCtx *RequestContext) error
	After(ctx context.Context, reqCtx *RequestContext, outcome HookOutcome, retryState *RetryState)
}

type hookReentryKey struct{}

// hookDispatcher fans a call out to every registered Hook, swallowing and
// logging whatever error a hook returns (hooks are observational: their
// failures never alter the request's outcome) and refusing to recurse if a
// hook's own HTTP call re-enters the same pipeline using the same context.
type hookDispatcher struct {
	hooks  []Hook
	logger logging.Logger
}

func newHookDispatcher(hooks []Hook, logger logging.Logger) *hookDispatcher {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &hookDispatcher{hooks: hooks, logger: logger}
}

// guard marks ctx as "inside hook dispatch" for the duration of fn, so a
// nested Before/After call using the same ctx becomes a no-op instead of
// recursing infinitely.
func (d *hookDispatcher) guard(ctx context.Context) (context.Context, bool) {
	if ctx.Value(hookReentryKey{}) != nil {
		return ctx, false
	}
	return context.WithValue(ctx, hookReentryKey{}, true), true
}

func (d *hookDispatcher) before(ctx context.Context, reqCtx *RequestContext) {
	guarded, ok := d.guard(ctx)
	if !ok {
		return
	}
	for _, h := range d.hooks {
		if h == nil {
			continue
		}
		if err := safeBefore(h, guarded, reqCtx); err != nil {
			d.logger.Warn("hook before() failed, ignoring", "error", err)
		}
	}
}

func (d *hookDispatcher) after(ctx context.Context, reqCtx *RequestContext, outcome HookOutcome, retryState *RetryState) {
	guarded, ok := d.guard(ctx)
	if !ok {
		return
	}
	for _, h := range d.hooks {
		if h == nil {
			continue
		}
		safeAfter(h, guarded, reqCtx, outcome, retryState, d.logger)
	}
}

func safeBefore(h Hook, ctx context.Context, reqCtx *RequestContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{r}
		}
	}()
	return h.Before(ctx, reqCtx)
}

func safeAfter(h Hook, ctx context.Context, reqCtx *RequestContext, outcome HookOutcome, retryState *RetryState, logger logging.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("hook after() panicked, ignoring", "error", r)
		}
	}()
	h.After(ctx, reqCtx, outcome, retryState)
}

type panicError struct{ v interface{} }

func (p *panicError) Error() string { return "hook panicked" }
