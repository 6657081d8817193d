package gracy

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/guilatrova/gracy/internal/errutil"
	"github.com/guilatrova/gracy/internal/logging"
)

// RetryBehavior controls what happens once retries are exhausted.
type RetryBehavior int

const (
	// RetryBreak raises the last failure once attempts run out.
	RetryBreak RetryBehavior = iota
	// RetryPass delivers the last response to the parser as if it had
	// succeeded, provided the last outcome was a response (not a transport
	// error).
	RetryPass
)

// RetryOnSet is the set of statuses and/or error kinds that justify a
// retry. A nil *RetryOnSet means "any failure retries".
type RetryOnSet struct {
	Statuses StatusSet
	Kinds    map[errutil.Kind]struct{}
}

// NewRetryOnSet builds a RetryOnSet from statuses and error kinds.
func NewRetryOnSet(statuses StatusSet, kinds ...errutil.Kind) *RetryOnSet {
	kindSet := make(map[errutil.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		kindSet[k] = struct{}{}
	}
	return &RetryOnSet{Statuses: statuses, Kinds: kindSet}
}

// Matches reports whether the given outcome justifies a retry under this set.
func (s *RetryOnSet) Matches(status int, kind errutil.Kind) bool {
	if s == nil {
		return true // nil RetryOnSet means "any failure"
	}
	if status != 0 && s.Statuses.Contains(status) {
		return true
	}
	if len(s.Kinds) > 0 {
		_, ok := s.Kinds[kind]
		return ok
	}
	return false
}

// RetryOverride is applied when the last outcome matched its status key;
// it can replace the computed delay and/or the retry_on set for the
// decision that follows.
type RetryOverride struct {
	DelayOverride   *time.Duration
	RetryOnOverride *RetryOnSet
}

// RetryPolicy controls how a failed attempt is retried: the backoff
// schedule, the maximum number of attempts, which outcomes qualify for a
// retry, and what happens once attempts run out.
type RetryPolicy struct {
	BaseDelay     time.Duration
	MaxAttempts   int
	DelayModifier float64
	RetryOn       *RetryOnSet
	Behavior      RetryBehavior
	Overrides     map[int]RetryOverride

	LogBeforeRetry logging.Event
	LogAfterRetry  logging.Event
	LogExhausted   logging.Event
}

// attemptOutcome is the result of one dispatch, before or after validation.
type attemptOutcome struct {
	resp *Response
	err  error
	kind errutil.Kind
}

func (o attemptOutcome) status() int {
	if o.resp != nil {
		return o.resp.StatusCode
	}
	return 0
}

// dispatchFn performs one full attempt: throttle admission, the before
// hook, and either a live transport call or a replay lookup. It returns
// the raw outcome before validation.
type dispatchFn func(ctx context.Context, attempt int) attemptOutcome

// afterAttemptFn is invoked once a non-terminal attempt (one that will be
// retried) has been validated, so a caller can fire its after hook with a
// populated RetryState in addition to the terminal after call.
type afterAttemptFn func(ctx context.Context, outcome attemptOutcome, state RetryState)

// retryStats is returned to the pipeline for metrics bookkeeping.
type retryStats struct {
	attempts int
	retried  bool
}

// runRetryLoop drives the attempting/validating/deciding/delaying state
// machine. validators runs only after the status check passes. dispatch is
// invoked once per attempt and must itself perform throttling and the
// before-hook, since a retry loops back to throttle/dispatch, not just to
// the transport call. afterAttempt, if non-nil, fires once a retried
// attempt completes, in addition to the pipeline's own terminal after call.
func runRetryLoop(
	ctx context.Context,
	reqCtx *RequestContext,
	policy *RetryPolicy,
	successSet StatusSet,
	validators []Validator,
	logger logging.Logger,
	dispatch dispatchFn,
	afterAttempt afterAttemptFn,
) (interface{}, *Response, error, retryStats) {
	stats := retryStats{}
	maxAttempts := 1
	if policy != nil && policy.MaxAttempts > 0 {
		maxAttempts = policy.MaxAttempts
	}

	var last attemptOutcome
	attempt := 1
	exhaustedLogged := false
	retrying := false
	var lastDelay time.Duration

	for {
		stats.attempts = attempt
		last = dispatch(ctx, attempt)

		if last.err != nil {
			if last.kind == "" {
				last.kind = errutil.KindTransport
			}
		} else if !successSet.Contains(last.resp.StatusCode) {
			last.kind = errutil.KindBadStatus
			last.err = errutil.BadStatus(reqCtx.Method, reqCtx.FormattedEndpoint, reqCtx.FormattedURL, last.resp.StatusCode, last.resp.Body)
		} else if err := runValidators(reqCtx, last.resp, validators); err != nil {
			last.err = err
			last.kind = errutil.KindValidatorFailed
		}

		if retrying {
			logging.Emit(logger, policy.LogAfterRetry, retryPlaceholders(reqCtx, last, lastDelay, attempt, maxAttempts))
		}

		if last.err == nil {
			// validating -> succeeded
			value, perr := parse(reqCtx, last.resp)
			if perr != nil {
				return nil, last.resp, perr, stats
			}
			return value, last.resp, nil, stats
		}

		// validating -> deciding
		if policy == nil || attempt >= maxAttempts {
			if policy != nil && attempt >= maxAttempts && !exhaustedLogged {
				logging.Emit(logger, policy.LogExhausted, exhaustedPlaceholders(reqCtx, attempt, maxAttempts))
				exhaustedLogged = true
			}
			return terminalOutcome(reqCtx, policy, last, attempt, maxAttempts, stats)
		}

		retryOn := policy.RetryOn
		delay := computeDelay(policy, attempt)
		if override, ok := policy.Overrides[last.status()]; ok {
			if override.RetryOnOverride != nil {
				retryOn = override.RetryOnOverride
			}
			if override.DelayOverride != nil {
				delay = *override.DelayOverride
			}
		}

		if !retryOn.Matches(last.status(), last.kind) {
			return terminalOutcome(reqCtx, policy, last, attempt, maxAttempts, stats)
		}

		stats.retried = true
		logging.Emit(logger, policy.LogBeforeRetry, retryPlaceholders(reqCtx, last, delay, attempt, maxAttempts))
		if afterAttempt != nil {
			afterAttempt(ctx, last, RetryState{Attempt: attempt, MaxAttempts: maxAttempts, Delay: delay})
		}

		// delaying -> attempting
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, last.resp, errutil.Cancelled(reqCtx.Method, reqCtx.FormattedEndpoint, reqCtx.FormattedURL, err), stats
		}

		attempt++
		retrying = true
		lastDelay = delay
	}
}

// terminalOutcome applies behavior=pass/break once retries stop. Pass only
// covers a persistently bad status code: a validator failure on the last
// attempt still terminates as an error (retry_exhausted wrapping the
// validator_failed cause once attempts are used up), since silently passing
// its raw response through would skip the very check that rejected it.
func terminalOutcome(reqCtx *RequestContext, policy *RetryPolicy, last attemptOutcome, attempt, maxAttempts int, stats retryStats) (interface{}, *Response, error, retryStats) {
	if policy != nil && policy.Behavior == RetryPass && last.resp != nil && last.kind == errutil.KindBadStatus {
		value, perr := parse(reqCtx, last.resp)
		if perr != nil {
			return nil, last.resp, perr, stats
		}
		return value, last.resp, nil, stats
	}

	if policy != nil && attempt >= maxAttempts {
		return nil, last.resp, errutil.RetryExhausted(reqCtx.Method, reqCtx.FormattedEndpoint, reqCtx.FormattedURL, attempt, last.err), stats
	}
	return nil, last.resp, last.err, stats
}

// computeDelay implements the exponential schedule: base × modifier^(n-1)
// for the n-th retry (n counted from the attempt that just failed).
func computeDelay(policy *RetryPolicy, attempt int) time.Duration {
	modifier := policy.DelayModifier
	if modifier <= 0 {
		modifier = 1
	}
	factor := math.Pow(modifier, float64(attempt-1))
	return time.Duration(float64(policy.BaseDelay) * factor)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryPlaceholders(reqCtx *RequestContext, outcome attemptOutcome, delay time.Duration, attempt, maxAttempts int) map[logging.Placeholder]string {
	cause := ""
	if outcome.err != nil {
		cause = outcome.err.Error()
	}
	return map[logging.Placeholder]string{
		logging.PlaceholderURL:         reqCtx.FormattedURL,
		logging.PlaceholderMethod:      reqCtx.Method,
		logging.PlaceholderEndpoint:    reqCtx.FormattedEndpoint,
		logging.PlaceholderRetryDelay:  delay.String(),
		logging.PlaceholderRetryCause:  cause,
		logging.PlaceholderCurAttempt:  strconv.Itoa(attempt),
		logging.PlaceholderMaxAttempt:  strconv.Itoa(maxAttempts),
	}
}

func exhaustedPlaceholders(reqCtx *RequestContext, attempt, maxAttempts int) map[logging.Placeholder]string {
	return map[logging.Placeholder]string{
		logging.PlaceholderURL:        reqCtx.FormattedURL,
		logging.PlaceholderMethod:     reqCtx.Method,
		logging.PlaceholderEndpoint:   reqCtx.FormattedEndpoint,
		logging.PlaceholderCurAttempt: strconv.Itoa(attempt),
		logging.PlaceholderMaxAttempt: strconv.Itoa(maxAttempts),
	}
}
