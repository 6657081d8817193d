// Package gracy implements a graceful HTTP client framework: config
// resolution and inheritance, a validate-then-retry dispatch pipeline,
// sliding-window throttling, named-semaphore concurrency limiting, hook
// dispatch, pluggable validators/parsers, record/replay, and per-endpoint
// metrics.
package gracy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/guilatrova/gracy/internal/logging"
	"github.com/guilatrova/gracy/metrics"
	"github.com/guilatrova/gracy/replay"
)

// ClientRoot is the endpoint registry, config-inheritance root, and
// transport factory. One ClientRoot owns one RequestPipeline and one
// shared Transport instance, created once at construction.
type ClientRoot struct {
	baseURL    string
	config     GracyConfig
	namespaces map[string]*Namespace
	pipeline   *RequestPipeline
	logger     logging.Logger
	userAgent  string
}

// Option configures a ClientRoot at construction using the functional
// options pattern.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient      *http.Client
	transport       Transport
	config          GracyConfig
	logger          logging.Logger
	userAgent       string
	mode            Mode
	replayStore     replay.Store
	metricsCollector *metrics.Collector
	hooks           []Hook
	headerProviders []HeaderProvider
	concurrency     *ConcurrencyGate
	throttle        *ThrottleController
}

const defaultUserAgent = "gracy-go/1.0"

// WithLogger installs logger as the client's Logger. Defaults to
// logging.NoopLogger{}.
func WithLogger(logger logging.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithHTTPClient supplies a custom *http.Client for the default transport.
// Ignored if WithTransport is also given.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = client }
}

// WithTransport overrides the default http.Client-backed Transport
// entirely, e.g. to inject a test double or a non-HTTP backend.
func WithTransport(transport Transport) Option {
	return func(o *clientOptions) { o.transport = transport }
}

// WithRootConfig sets the top-level GracyConfig every namespace and
// endpoint config merges on top of.
func WithRootConfig(config GracyConfig) Option {
	return func(o *clientOptions) { o.config = config }
}

// WithUserAgent sets the User-Agent header applied to every outgoing
// request.
func WithUserAgent(userAgent string) Option {
	return func(o *clientOptions) { o.userAgent = userAgent }
}

// WithMode selects live, record, or replay execution.
func WithMode(mode Mode) Option {
	return func(o *clientOptions) { o.mode = mode }
}

// WithReplayStore installs the replay.Store record/replay mode reads from
// and writes to.
func WithReplayStore(store replay.Store) Option {
	return func(o *clientOptions) { o.replayStore = store }
}

// WithMetricsCollector installs a pre-built metrics.Collector, e.g. one
// shared across multiple ClientRoot instances.
func WithMetricsCollector(collector *metrics.Collector) Option {
	return func(o *clientOptions) { o.metricsCollector = collector }
}

// WithHooks registers hooks to run before/after every dispatch.
func WithHooks(hooks ...Hook) Option {
	return func(o *clientOptions) { o.hooks = append(o.hooks, hooks...) }
}

// WithHeaderProviders registers HeaderProviders (e.g. OAuth2HeaderProvider)
// that inject headers onto every live dispatch.
func WithHeaderProviders(providers ...HeaderProvider) Option {
	return func(o *clientOptions) { o.headerProviders = append(o.headerProviders, providers...) }
}

// WithConcurrencyGate installs a pre-built ConcurrencyGate, e.g. one shared
// across multiple ClientRoot instances that must respect the same limits.
func WithConcurrencyGate(gate *ConcurrencyGate) Option {
	return func(o *clientOptions) { o.concurrency = gate }
}

// WithThrottleController installs a pre-built ThrottleController, e.g. one
// shared across multiple ClientRoot instances.
func WithThrottleController(controller *ThrottleController) Option {
	return func(o *clientOptions) { o.throttle = controller }
}

// New builds a ClientRoot rooted at baseURL.
func New(baseURL string, opts ...Option) *ClientRoot {
	o := &clientOptions{
		logger:    logging.NoopLogger{},
		userAgent: defaultUserAgent,
		mode:      ModeLive,
	}
	for _, opt := range opts {
		opt(o)
	}

	transport := o.transport
	if transport == nil {
		httpClient := o.httpClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 60 * time.Second}
		}
		transport = NewHTTPTransport(httpClient)
	}

	headerProviders := append([]HeaderProvider{userAgentHeaderProvider(o.userAgent)}, o.headerProviders...)

	pipeline := NewRequestPipeline(PipelineDeps{
		Transport:       transport,
		Concurrency:     o.concurrency,
		Throttle:        o.throttle,
		Metrics:         o.metricsCollector,
		ReplayStore:     o.replayStore,
		Mode:            o.mode,
		Logger:          o.logger,
		Hooks:           o.hooks,
		HeaderProviders: headerProviders,
	})

	return &ClientRoot{
		baseURL:    strings.TrimRight(baseURL, "/"),
		config:     o.config,
		namespaces: make(map[string]*Namespace),
		pipeline:   pipeline,
		logger:     o.logger,
		userAgent:  o.userAgent,
	}
}

func userAgentHeaderProvider(userAgent string) HeaderProvider {
	return func(ctx context.Context) (map[string]string, error) {
		if userAgent == "" {
			return nil, nil
		}
		return map[string]string{"User-Agent": userAgent}, nil
	}
}

// Namespace registers (or returns, if already registered) a namespace with
// the given config layered on top of the root config.
func (c *ClientRoot) Namespace(name string, config GracyConfig) *Namespace {
	if ns, ok := c.namespaces[name]; ok {
		return ns
	}
	ns := newNamespace(config)
	c.namespaces[name] = ns
	return ns
}

// Endpoint registers a root-namespace endpoint directly on the client.
func (c *ClientRoot) Endpoint(name, template string, config GracyConfig) *ClientRoot {
	c.Namespace("", GracyConfig{}).Endpoint(name, template, config)
	return c
}

// Metrics returns the aggregate report every registered endpoint has
// accumulated so far.
func (c *ClientRoot) Metrics() map[metrics.Key]metrics.Report {
	return c.pipeline.metricsC.Report()
}

func (c *ClientRoot) resolve(endpointKey string) (resolvedEndpoint, error) {
	nsName, epName := splitEndpointKey(endpointKey)
	ns, ok := c.namespaces[nsName]
	if !ok {
		return resolvedEndpoint{}, fmt.Errorf("gracy: unknown namespace %q", nsName)
	}
	ep, ok := ns.endpoints[epName]
	if !ok {
		return resolvedEndpoint{}, fmt.Errorf("gracy: unknown endpoint %q", endpointKey)
	}

	merged := Merge(c.config, ns.config)
	merged = Merge(merged, ep.Config)

	return resolvedEndpoint{
		unformattedEndpoint: ep.Template,
		template:            ep.Template,
		config:              merged,
	}, nil
}

// CallArgs bundles the per-call inputs an endpoint call takes:
// substitutions for the template, query parameters, a body, and extra
// headers.
type CallArgs struct {
	Substitutions map[string]string
	Query         map[string][]string
	Headers       http.Header
	Body          []byte
}

func (c *ClientRoot) call(ctx context.Context, method, endpointKey string, args CallArgs) (interface{}, error) {
	resolved, err := c.resolve(endpointKey)
	if err != nil {
		return nil, err
	}

	formattedEndpoint := formatTemplate(resolved.template, args.Substitutions)
	formattedURL := c.baseURL + formattedEndpoint

	reqCtx := &RequestContext{
		Method:              method,
		UnformattedEndpoint: resolved.unformattedEndpoint,
		FormattedEndpoint:   formattedEndpoint,
		FormattedURL:        formattedURL,
		Substitutions:       args.Substitutions,
		Query:               args.Query,
		Headers:             args.Headers,
		Body:                args.Body,
		Config:              resolved.config,
	}

	return c.pipeline.Execute(ctx, reqCtx)
}

// Get issues a GET call to endpoint.
func (c *ClientRoot) Get(ctx context.Context, endpoint string, args CallArgs) (interface{}, error) {
	return c.call(ctx, http.MethodGet, endpoint, args)
}

// Post issues a POST call to endpoint.
func (c *ClientRoot) Post(ctx context.Context, endpoint string, args CallArgs) (interface{}, error) {
	return c.call(ctx, http.MethodPost, endpoint, args)
}

// Put issues a PUT call to endpoint.
func (c *ClientRoot) Put(ctx context.Context, endpoint string, args CallArgs) (interface{}, error) {
	return c.call(ctx, http.MethodPut, endpoint, args)
}

// Patch issues a PATCH call to endpoint.
func (c *ClientRoot) Patch(ctx context.Context, endpoint string, args CallArgs) (interface{}, error) {
	return c.call(ctx, http.MethodPatch, endpoint, args)
}

// Delete issues a DELETE call to endpoint.
func (c *ClientRoot) Delete(ctx context.Context, endpoint string, args CallArgs) (interface{}, error) {
	return c.call(ctx, http.MethodDelete, endpoint, args)
}

// Head issues a HEAD call to endpoint.
func (c *ClientRoot) Head(ctx context.Context, endpoint string, args CallArgs) (interface{}, error) {
	return c.call(ctx, http.MethodHead, endpoint, args)
}
