package gracy

import (
	"context"
	"strconv"
	"time"

	"github.com/guilatrova/gracy/internal/errutil"
	"github.com/guilatrova/gracy/internal/logging"
	"github.com/guilatrova/gracy/metrics"
	"github.com/guilatrova/gracy/replay"
)

// Mode selects how a RequestPipeline executes a call: hitting the live
// transport, recording the exchange for later replay, or substituting a
// previously-recorded exchange in place of a live call.
type Mode int

const (
	ModeLive Mode = iota
	ModeRecord
	ModeReplay
)

// PipelineDeps bundles the external collaborators a RequestPipeline needs.
// Transport and ReplayStore are the two collaborators callers are expected
// to swap out; everything else here is the framework's own internal
// machinery.
type PipelineDeps struct {
	Transport       Transport
	Concurrency     *ConcurrencyGate
	Throttle        *ThrottleController
	Metrics         *metrics.Collector
	ReplayStore     replay.Store
	Mode            Mode
	Logger          logging.Logger
	Hooks           []Hook
	HeaderProviders []HeaderProvider
}

// RequestPipeline is the orchestrator wiring concurrency limiting,
// throttling, hook dispatch, the retry state machine, validation, parsing,
// replay substitution, and metrics around a single logical call.
type RequestPipeline struct {
	transport       Transport
	concurrency     *ConcurrencyGate
	throttle        *ThrottleController
	metricsC        *metrics.Collector
	replayStore     replay.Store
	mode            Mode
	logger          logging.Logger
	hooks           *hookDispatcher
	headerProviders []HeaderProvider
	now             func() time.Time
}

// NewRequestPipeline builds a RequestPipeline from deps, defaulting any
// unset collaborator to a no-op so callers may opt out piecemeal (no
// concurrency limiting, no throttling, no replay store, etc).
func NewRequestPipeline(deps PipelineDeps) *RequestPipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	concurrency := deps.Concurrency
	if concurrency == nil {
		concurrency = NewConcurrencyGate(logger)
	}
	throttle := deps.Throttle
	if throttle == nil {
		throttle = NewThrottleController(nil, logger)
	}
	metricsC := deps.Metrics
	if metricsC == nil {
		metricsC = metrics.NewCollector(0)
	}

	return &RequestPipeline{
		transport:       deps.Transport,
		concurrency:     concurrency,
		throttle:        throttle,
		metricsC:        metricsC,
		replayStore:     deps.ReplayStore,
		mode:            deps.Mode,
		logger:          logger,
		hooks:           newHookDispatcher(deps.Hooks, logger),
		headerProviders: deps.HeaderProviders,
		now:             time.Now,
	}
}

// Execute runs reqCtx through the full pipeline and returns the parsed
// value from the configured Parser (or the raw *Response when no parser
// entry matches).
func (p *RequestPipeline) Execute(ctx context.Context, reqCtx *RequestContext) (interface{}, error) {
	started := p.now()
	key := metrics.Key{Method: reqCtx.Method, Endpoint: reqCtx.UnformattedEndpoint}

	policy, hasPolicy := reqCtx.Config.ConcurrentRequests.Get()
	var policyPtr *ConcurrencyPolicy
	if hasPolicy {
		policyPtr = &policy
	}
	release, err := p.concurrency.Acquire(ctx, reqCtx.UnformattedEndpoint, policyPtr)
	if err != nil {
		outcome := metrics.Outcome{Time: started, Aborted: true, Elapsed: p.now().Sub(started)}
		p.metricsC.Record(key, outcome)
		return nil, errutil.Cancelled(reqCtx.Method, reqCtx.FormattedEndpoint, reqCtx.FormattedURL, err)
	}
	defer release()

	logRequest, _ := reqCtx.Config.LogRequest.Get()
	logging.Emit(p.logger, logRequest, requestPlaceholders(reqCtx))

	successSet := reqCtx.Config.SuccessSet()
	validators, _ := reqCtx.Config.Validators.Get()
	retryPolicy, hasRetry := reqCtx.Config.Retry.Get()
	var retryPolicyPtr *RetryPolicy
	if hasRetry {
		retryPolicyPtr = &retryPolicy
	}

	throttled := false
	dispatch := func(ctx context.Context, attempt int) attemptOutcome {
		p.hooks.before(ctx, reqCtx)

		matched, err := p.awaitThrottle(ctx, reqCtx)
		if matched {
			throttled = true
		}
		if err != nil {
			return attemptOutcome{err: errutil.Cancelled(reqCtx.Method, reqCtx.FormattedEndpoint, reqCtx.FormattedURL, err), kind: errutil.KindCancelled}
		}

		if p.mode == ModeReplay {
			return p.dispatchReplay(ctx, reqCtx, successSet)
		}

		resp, err := p.dispatchLive(ctx, reqCtx)
		outcome := attemptOutcome{resp: resp, err: err}
		if err != nil {
			if kind, ok := errutil.KindOf(err); ok {
				outcome.kind = kind
			} else {
				outcome.kind = errutil.KindTransport
			}
		} else if p.mode == ModeRecord && p.replayStore != nil {
			p.recordExchange(ctx, reqCtx, resp, successSet)
		}
		return outcome
	}

	afterAttempt := func(ctx context.Context, outcome attemptOutcome, state RetryState) {
		p.hooks.after(ctx, reqCtx, HookOutcome{Response: outcome.resp, Err: outcome.err}, &state)
	}
	value, resp, err, stats := runRetryLoop(ctx, reqCtx, retryPolicyPtr, successSet, validators, p.logger, dispatch, afterAttempt)

	elapsed := p.now().Sub(started)
	status := statusOf(resp)
	outcome := metrics.Outcome{
		Time:      started,
		Status:    status,
		Success:   successSet.Contains(status),
		Retried:   stats.retried,
		Throttled: throttled,
		Replay:    p.mode == ModeReplay,
		Aborted:   err != nil && resp == nil,
		Elapsed:   elapsed,
	}
	if err != nil {
		logErrors, _ := reqCtx.Config.LogErrors.Get()
		logging.Emit(p.logger, logErrors, errorPlaceholders(reqCtx, resp, err, elapsed, p.mode == ModeReplay))
	} else {
		logResponse, _ := reqCtx.Config.LogResponse.Get()
		logging.Emit(p.logger, logResponse, responsePlaceholders(reqCtx, resp, elapsed, p.mode == ModeReplay))
	}
	p.metricsC.Record(key, outcome)

	p.hooks.after(ctx, reqCtx, HookOutcome{Response: resp, Err: err}, nil)

	return value, err
}

// awaitThrottle blocks until every throttle rule matching reqCtx's URL
// admits the request. The bool reports whether any rule matched; it does
// not tell whether admission actually had to wait.
func (p *RequestPipeline) awaitThrottle(ctx context.Context, reqCtx *RequestContext) (bool, error) {
	matched := p.throttle.matchingStates(reqCtx.FormattedURL)
	if len(matched) == 0 {
		return false, nil
	}
	return true, p.throttle.Await(ctx, reqCtx.FormattedURL)
}

func (p *RequestPipeline) dispatchLive(ctx context.Context, reqCtx *RequestContext) (*Response, error) {
	headers := reqCtx.Headers.Clone()
	if headers == nil {
		headers = make(map[string][]string)
	}
	for _, provider := range p.headerProviders {
		extra, err := provider(ctx)
		if err != nil {
			return nil, errutil.Transport(reqCtx.Method, reqCtx.FormattedEndpoint, reqCtx.FormattedURL, err)
		}
		for k, v := range extra {
			headers.Set(k, v)
		}
	}

	req := TransportRequest{
		Method:  reqCtx.Method,
		URL:     reqCtx.FormattedURL,
		Headers: headers,
		Query:   reqCtx.Query,
		Body:    reqCtx.Body,
	}
	return p.transport.Send(ctx, req)
}

func (p *RequestPipeline) dispatchReplay(ctx context.Context, reqCtx *RequestContext, successSet StatusSet) attemptOutcome {
	if p.replayStore == nil {
		return attemptOutcome{err: errutil.NoReplay(reqCtx.Method, reqCtx.FormattedEndpoint, reqCtx.FormattedURL), kind: errutil.KindNoReplay}
	}
	fp := replay.Fingerprint(reqCtx.Method, reqCtx.FormattedURL, reqCtx.Headers, reqCtx.Body)
	exchange, err := p.replayStore.Load(ctx, fp, successSet.Contains)
	if err != nil {
		return attemptOutcome{err: errutil.NoReplay(reqCtx.Method, reqCtx.FormattedEndpoint, reqCtx.FormattedURL), kind: errutil.KindNoReplay}
	}
	return attemptOutcome{resp: &Response{
		StatusCode: exchange.Status,
		Headers:    exchange.ResponseHeaders,
		Body:       exchange.ResponseBody,
	}}
}

func (p *RequestPipeline) recordExchange(ctx context.Context, reqCtx *RequestContext, resp *Response, successSet StatusSet) {
	fp := replay.Fingerprint(reqCtx.Method, reqCtx.FormattedURL, reqCtx.Headers, reqCtx.Body)
	exchange := replay.Exchange{
		Method:             reqCtx.Method,
		URL:                reqCtx.FormattedURL,
		RequestHeaders:     reqCtx.Headers,
		RequestBody:        reqCtx.Body,
		Status:             resp.StatusCode,
		ResponseHeaders:    resp.Headers,
		ResponseBody:       resp.Body,
		RecordedAt:         p.now(),
		DiscardOnBadStatus: !successSet.Contains(resp.StatusCode),
	}
	if err := p.replayStore.Record(ctx, fp, exchange); err != nil {
		p.logger.Warn("failed to record replay exchange", "error", err)
	}
}

func statusOf(resp *Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func requestPlaceholders(reqCtx *RequestContext) map[logging.Placeholder]string {
	return map[logging.Placeholder]string{
		logging.PlaceholderURL:           reqCtx.FormattedURL,
		logging.PlaceholderUnformattedURL: reqCtx.UnformattedEndpoint,
		logging.PlaceholderMethod:        reqCtx.Method,
		logging.PlaceholderEndpoint:      reqCtx.FormattedEndpoint,
		logging.PlaceholderUnformattedEP: reqCtx.UnformattedEndpoint,
	}
}

func responsePlaceholders(reqCtx *RequestContext, resp *Response, elapsed time.Duration, isReplay bool) map[logging.Placeholder]string {
	status := ""
	if resp != nil {
		status = itoaStatus(resp.StatusCode)
	}
	replayFlag := "false"
	if isReplay {
		replayFlag = "true"
	}
	return map[logging.Placeholder]string{
		logging.PlaceholderURL:      reqCtx.FormattedURL,
		logging.PlaceholderMethod:   reqCtx.Method,
		logging.PlaceholderEndpoint: reqCtx.FormattedEndpoint,
		logging.PlaceholderStatus:   status,
		logging.PlaceholderElapsed:  elapsed.String(),
		logging.PlaceholderIsReplay: replayFlag,
	}
}

func errorPlaceholders(reqCtx *RequestContext, resp *Response, err error, elapsed time.Duration, isReplay bool) map[logging.Placeholder]string {
	values := responsePlaceholders(reqCtx, resp, elapsed, isReplay)
	values[logging.PlaceholderRetryCause] = err.Error()
	return values
}

func itoaStatus(status int) string {
	if status == 0 {
		return ""
	}
	return strconv.Itoa(status)
}
