package gracy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilatrova/gracy/internal/errutil"
	"github.com/guilatrova/gracy/internal/logging"
)

func statusReqCtx() *RequestContext {
	return &RequestContext{
		Method:            "GET",
		FormattedEndpoint: "/users/1",
		FormattedURL:      "https://api.example.com/users/1",
	}
}

func TestComputeDelayAppliesModifierStartingAtOne(t *testing.T) {
	policy := &RetryPolicy{BaseDelay: 10 * time.Millisecond, DelayModifier: 2}

	assert.Equal(t, 10*time.Millisecond, computeDelay(policy, 1))
	assert.Equal(t, 20*time.Millisecond, computeDelay(policy, 2))
	assert.Equal(t, 40*time.Millisecond, computeDelay(policy, 3))
}

func TestRunRetryLoopRespectsMaxAttempts(t *testing.T) {
	calls := 0
	dispatch := func(ctx context.Context, attempt int) attemptOutcome {
		calls++
		return attemptOutcome{resp: &Response{StatusCode: 500}}
	}

	policy := &RetryPolicy{BaseDelay: time.Millisecond, MaxAttempts: 3, DelayModifier: 1}
	_, _, err, stats := runRetryLoop(context.Background(), statusReqCtx(), policy, NewStatusSet(200), nil, logging.NoopLogger{}, dispatch, nil)

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, stats.attempts)
	kind, ok := errutil.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, errutil.KindRetryExhausted, kind)
}

func TestRunRetryLoopRetryPassReturnsLastResponse(t *testing.T) {
	dispatch := func(ctx context.Context, attempt int) attemptOutcome {
		return attemptOutcome{resp: &Response{StatusCode: 500, Body: []byte(`{}`)}}
	}

	policy := &RetryPolicy{BaseDelay: time.Millisecond, MaxAttempts: 2, DelayModifier: 1, Behavior: RetryPass}
	value, resp, err, _ := runRetryLoop(context.Background(), statusReqCtx(), policy, NewStatusSet(200), nil, logging.NoopLogger{}, dispatch, nil)

	assert.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, 500, resp.StatusCode)
	assert.NotNil(t, value)
}

type alwaysFailValidator struct{ err error }

func (v alwaysFailValidator) Validate(ctx *RequestContext, resp *Response) error { return v.err }

func TestRunRetryLoopRetryPassDoesNotMaskValidatorFailure(t *testing.T) {
	dispatch := func(ctx context.Context, attempt int) attemptOutcome {
		return attemptOutcome{resp: &Response{StatusCode: 200, Body: []byte(`{}`)}}
	}
	validators := []Validator{alwaysFailValidator{err: assert.AnError}}

	policy := &RetryPolicy{BaseDelay: time.Millisecond, MaxAttempts: 1, Behavior: RetryPass}
	value, _, err, _ := runRetryLoop(context.Background(), statusReqCtx(), policy, NewStatusSet(200), validators, logging.NoopLogger{}, dispatch, nil)

	assert.Nil(t, value, "retry pass must not paper over a failing validator on the last attempt")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRunRetryLoopFiresAfterAttemptOnEveryRetriedAttempt(t *testing.T) {
	dispatch := func(ctx context.Context, attempt int) attemptOutcome {
		return attemptOutcome{resp: &Response{StatusCode: 500}}
	}

	var seen []RetryState
	afterAttempt := func(ctx context.Context, outcome attemptOutcome, state RetryState) {
		assert.Equal(t, 500, outcome.status())
		seen = append(seen, state)
	}

	policy := &RetryPolicy{BaseDelay: time.Millisecond, MaxAttempts: 3, DelayModifier: 1}
	_, _, err, _ := runRetryLoop(context.Background(), statusReqCtx(), policy, NewStatusSet(200), nil, logging.NoopLogger{}, dispatch, afterAttempt)

	assert.Error(t, err)
	require.Len(t, seen, 2, "afterAttempt must fire once per non-terminal (retried) attempt, not on the final exhausting one")
	assert.Equal(t, 1, seen[0].Attempt)
	assert.Equal(t, 2, seen[1].Attempt)
	for _, s := range seen {
		assert.Equal(t, 3, s.MaxAttempts)
		assert.Equal(t, time.Millisecond, s.Delay)
	}
}

func TestRunRetryLoopStopsWhenRetryOnDoesNotMatch(t *testing.T) {
	calls := 0
	dispatch := func(ctx context.Context, attempt int) attemptOutcome {
		calls++
		return attemptOutcome{resp: &Response{StatusCode: 403}}
	}

	policy := &RetryPolicy{
		BaseDelay:   time.Millisecond,
		MaxAttempts: 5,
		RetryOn:     NewRetryOnSet(NewStatusSet(500)),
	}
	_, _, err, _ := runRetryLoop(context.Background(), statusReqCtx(), policy, NewStatusSet(200), nil, logging.NoopLogger{}, dispatch, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, calls, "a 403 not in retry_on must stop retrying immediately")
}

func TestRunRetryLoopHonorsPerStatusOverride(t *testing.T) {
	calls := 0
	dispatch := func(ctx context.Context, attempt int) attemptOutcome {
		calls++
		return attemptOutcome{resp: &Response{StatusCode: 429}}
	}

	override := 5 * time.Millisecond
	policy := &RetryPolicy{
		BaseDelay:   time.Hour, // would time out the test if the override didn't apply
		MaxAttempts: 2,
		Overrides: map[int]RetryOverride{
			429: {DelayOverride: &override},
		},
	}

	start := time.Now()
	_, _, _, _ = runRetryLoop(context.Background(), statusReqCtx(), policy, NewStatusSet(200), nil, logging.NoopLogger{}, dispatch, nil)
	elapsed := time.Since(start)

	assert.Equal(t, 2, calls)
	assert.Less(t, elapsed, time.Second)
}
