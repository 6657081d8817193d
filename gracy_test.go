package gracy

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilatrova/gracy/internal/errutil"
	"github.com/guilatrova/gracy/internal/optional"
	"github.com/guilatrova/gracy/metrics"
	"github.com/guilatrova/gracy/replay"
)

// scriptedTransport replays a fixed sequence of responses/errors, one per
// call, and records every TransportRequest it saw.
type scriptedTransport struct {
	mu       sync.Mutex
	step     int
	replies  []scriptedReply
	requests []TransportRequest
}

type scriptedReply struct {
	resp *Response
	err  error
}

func (t *scriptedTransport) Send(_ context.Context, req TransportRequest) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = append(t.requests, req)
	if t.step >= len(t.replies) {
		return t.replies[len(t.replies)-1].resp, t.replies[len(t.replies)-1].err
	}
	r := t.replies[t.step]
	t.step++
	return r.resp, r.err
}

func jsonResp(status int, body string) *Response {
	return &Response{StatusCode: status, Headers: http.Header{"Content-Type": []string{"application/json"}}, Body: []byte(body)}
}

func newClientWithTransport(transport Transport, rootConfig GracyConfig) *ClientRoot {
	return New("https://api.example.com", WithTransport(transport), WithRootConfig(rootConfig))
}

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestSuccessWithParsing(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{{resp: jsonResp(200, `{"id":1,"name":"ada"}`)}}}

	client := newClientWithTransport(transport, GracyConfig{})
	client.Endpoint("get_user", "/users/{id}", GracyConfig{
		Parser: optional.Of(ParserMap{Default: ptrParserEntry(JSONTransform[user]())}),
	})

	value, err := client.Get(context.Background(), "get_user", CallArgs{Substitutions: map[string]string{"id": "1"}})
	require.NoError(t, err)
	u, ok := value.(user)
	require.True(t, ok)
	assert.Equal(t, 1, u.ID)
	assert.Equal(t, "ada", u.Name)
}

func TestAllowed404YieldsNull(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{{resp: jsonResp(404, `{}`)}}}

	client := newClientWithTransport(transport, GracyConfig{})
	client.Endpoint("get_user", "/users/{id}", GracyConfig{
		AllowedStatusCode: optional.Of(NewStatusSet(404)),
		Parser: optional.Of(ParserMap{
			ByStatus: map[int]ParserEntry{404: Null()},
		}),
	})

	value, err := client.Get(context.Background(), "get_user", CallArgs{Substitutions: map[string]string{"id": "9"}})
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestRetryWithExponentialDelaySucceedsOnThirdAttempt(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{resp: jsonResp(500, `oops`)},
		{resp: jsonResp(500, `oops`)},
		{resp: jsonResp(200, `{"id":1,"name":"ada"}`)},
	}}

	client := newClientWithTransport(transport, GracyConfig{})
	client.Endpoint("get_user", "/users/{id}", GracyConfig{
		Retry: optional.Of(RetryPolicy{
			BaseDelay:     time.Millisecond,
			MaxAttempts:   5,
			DelayModifier: 2,
		}),
		Parser: optional.Of(ParserMap{Default: ptrParserEntry(JSONTransform[user]())}),
	})

	value, err := client.Get(context.Background(), "get_user", CallArgs{Substitutions: map[string]string{"id": "1"}})
	require.NoError(t, err)
	u := value.(user)
	assert.Equal(t, "ada", u.Name)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Equal(t, 3, len(transport.requests))
}

func TestRetryExhaustionBreaksWithRetryExhaustedError(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{resp: jsonResp(500, `oops`)},
		{resp: jsonResp(500, `oops`)},
	}}

	client := newClientWithTransport(transport, GracyConfig{})
	client.Endpoint("get_user", "/users/{id}", GracyConfig{
		Retry: optional.Of(RetryPolicy{
			BaseDelay:     time.Millisecond,
			MaxAttempts:   2,
			DelayModifier: 1,
			Behavior:      RetryBreak,
		}),
	})

	_, err := client.Get(context.Background(), "get_user", CallArgs{Substitutions: map[string]string{"id": "1"}})
	require.Error(t, err)
	kind, ok := errutil.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errutil.KindRetryExhausted, kind)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Equal(t, 2, len(transport.requests))
}

type recordingRetryHook struct {
	mu       sync.Mutex
	statuses []int
	states   []*RetryState
}

func (h *recordingRetryHook) Before(ctx context.Context, reqCtx *RequestContext) error { return nil }

func (h *recordingRetryHook) After(ctx context.Context, reqCtx *RequestContext, outcome HookOutcome, state *RetryState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	status := 0
	if outcome.Response != nil {
		status = outcome.Response.StatusCode
	}
	h.statuses = append(h.statuses, status)
	h.states = append(h.states, state)
}

func TestAfterHookObservesNonTerminalRetryAttempts(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{resp: jsonResp(429, `oops`)},
		{resp: jsonResp(200, `{"id":1,"name":"ada"}`)},
	}}

	hook := &recordingRetryHook{}
	client := New("https://api.example.com", WithTransport(transport), WithHooks(hook))
	client.Endpoint("get_user", "/users/{id}", GracyConfig{
		Retry: optional.Of(RetryPolicy{
			BaseDelay:     time.Millisecond,
			MaxAttempts:   5,
			DelayModifier: 1,
		}),
		Parser: optional.Of(ParserMap{Default: ptrParserEntry(JSONTransform[user]())}),
	})

	_, err := client.Get(context.Background(), "get_user", CallArgs{Substitutions: map[string]string{"id": "1"}})
	require.NoError(t, err)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.statuses, 2, "the hook must see the 429 retry attempt in addition to the final success")
	assert.Equal(t, 429, hook.statuses[0])
	require.NotNil(t, hook.states[0], "a non-terminal retry attempt must carry a populated RetryState")
	assert.Equal(t, 1, hook.states[0].Attempt)
	assert.Equal(t, 200, hook.statuses[1])
	assert.Nil(t, hook.states[1], "the terminal call keeps passing a nil RetryState")
}

func TestRetryPassMaskedBadStatusIsNotCountedAsMetricsSuccess(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{resp: jsonResp(500, `oops`)},
		{resp: jsonResp(500, `oops`)},
	}}

	client := newClientWithTransport(transport, GracyConfig{})
	client.Endpoint("get_user", "/users/{id}", GracyConfig{
		Retry: optional.Of(RetryPolicy{
			BaseDelay:     time.Millisecond,
			MaxAttempts:   2,
			DelayModifier: 1,
			Behavior:      RetryPass,
		}),
	})

	value, err := client.Get(context.Background(), "get_user", CallArgs{Substitutions: map[string]string{"id": "1"}})
	require.NoError(t, err, "retry pass delivers the last response instead of an error")
	require.NotNil(t, value)

	report := client.Metrics()[metrics.Key{Method: "GET", Endpoint: "/users/{id}"}]
	assert.Equal(t, int64(1), report.Total)
	assert.Equal(t, int64(1), report.C5xx)
	assert.Equal(t, int64(0), report.Success, "a retry-pass'd 500 is tolerated, not a success, and must not also count toward C5xx and Success")
}

func TestThrottleAdmitsRequestsInOrderWithinLimit(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{resp: jsonResp(200, `{}`)}, {resp: jsonResp(200, `{}`)}, {resp: jsonResp(200, `{}`)},
	}}

	client := newClientWithTransport(transport, GracyConfig{})
	pattern, err := compileThrottlePattern(`/users`)
	require.NoError(t, err)
	client.Endpoint("get_user", "/users/{id}", GracyConfig{
		Throttling: optional.Of([]ThrottleRule{{
			Name:        "users",
			URLPattern:  pattern,
			MaxRequests: 2,
			PerTime:     50 * time.Millisecond,
		}}),
	})

	ctx := context.Background()
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := client.Get(ctx, "get_user", CallArgs{Substitutions: map[string]string{"id": "1"}})
			assert.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Len(t, order, 3)
}

func TestReplayModeShortCircuitsTransport(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{{resp: jsonResp(200, `{"id":1,"name":"ada"}`)}}}
	store := replay.NewMemoryStore(8)

	client := New("https://api.example.com",
		WithTransport(transport),
		WithMode(ModeRecord),
		WithReplayStore(store),
	)
	client.Endpoint("get_user", "/users/{id}", GracyConfig{
		Parser: optional.Of(ParserMap{Default: ptrParserEntry(JSONTransform[user]())}),
	})

	_, err := client.Get(context.Background(), "get_user", CallArgs{Substitutions: map[string]string{"id": "1"}})
	require.NoError(t, err)

	replayClient := New("https://api.example.com",
		WithTransport(transport),
		WithMode(ModeReplay),
		WithReplayStore(store),
	)
	replayClient.Endpoint("get_user", "/users/{id}", GracyConfig{
		Parser: optional.Of(ParserMap{Default: ptrParserEntry(JSONTransform[user]())}),
	})

	transport.mu.Lock()
	before := len(transport.requests)
	transport.mu.Unlock()

	value, err := replayClient.Get(context.Background(), "get_user", CallArgs{Substitutions: map[string]string{"id": "1"}})
	require.NoError(t, err)
	u := value.(user)
	assert.Equal(t, "ada", u.Name)

	transport.mu.Lock()
	after := len(transport.requests)
	transport.mu.Unlock()
	assert.Equal(t, before, after, "replay mode must never reach the live transport")
}

func TestConcurrencyGateNeverExceedsLimit(t *testing.T) {
	transport := &blockingTransport{release: make(chan struct{})}
	client := newClientWithTransport(transport, GracyConfig{})
	client.Endpoint("slow", "/slow", GracyConfig{
		ConcurrentRequests: optional.Of(ConcurrencyPolicy{Limit: 2}),
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = client.Get(context.Background(), "slow", CallArgs{})
		}()
	}

	// Give goroutines a chance to pile up against the gate.
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt64(&transport.inFlight), int64(2))
	close(transport.release)
	wg.Wait()
}

type blockingTransport struct {
	inFlight int64
	release  chan struct{}
}

func (t *blockingTransport) Send(ctx context.Context, req TransportRequest) (*Response, error) {
	atomic.AddInt64(&t.inFlight, 1)
	defer atomic.AddInt64(&t.inFlight, -1)
	select {
	case <-t.release:
	case <-ctx.Done():
	}
	return jsonResp(200, `{}`), nil
}

func ptrParserEntry(e ParserEntry) *ParserEntry { return &e }
