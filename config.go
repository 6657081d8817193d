package gracy

import (
	"net/http"

	"github.com/guilatrova/gracy/internal/logging"
	"github.com/guilatrova/gracy/internal/optional"
)

// StatusSet is a small set of HTTP status codes, used for strict_status_code
// and allowed_status_code.
type StatusSet map[int]struct{}

// NewStatusSet builds a StatusSet from a list of codes.
func NewStatusSet(codes ...int) StatusSet {
	s := make(StatusSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Contains reports whether code is a member of the set.
func (s StatusSet) Contains(code int) bool {
	if s == nil {
		return false
	}
	_, ok := s[code]
	return ok
}

// Union returns a new StatusSet containing every code from both sets.
func (s StatusSet) Union(other StatusSet) StatusSet {
	out := make(StatusSet, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// is2xx reports whether code is in the default 2xx success range.
func is2xx(code int) bool { return code >= 200 && code < 300 }

// GracyConfig is the behavior bundle attached to a client, a namespace, or a
// single method. Every field is an optional.Option so merge() can tell
// "never set" apart from "explicitly disabled".
type GracyConfig struct {
	StrictStatusCode   optional.Option[StatusSet]
	AllowedStatusCode  optional.Option[StatusSet]
	Validators         optional.Option[[]Validator]
	Parser             optional.Option[ParserMap]
	Retry              optional.Option[RetryPolicy]
	Throttling         optional.Option[[]ThrottleRule]
	ConcurrentRequests optional.Option[ConcurrencyPolicy]
	LogRequest         optional.Option[logging.Event]
	LogResponse        optional.Option[logging.Event]
	LogErrors          optional.Option[logging.Event]
}

// Merge applies child overrides onto parent field-by-field: a Set field in
// child wins, a Disabled field in child clears the result, and an unset
// field inherits the parent's value.
func Merge(parent, child GracyConfig) GracyConfig {
	return GracyConfig{
		StrictStatusCode:   optional.Merge(parent.StrictStatusCode, child.StrictStatusCode),
		AllowedStatusCode:  optional.Merge(parent.AllowedStatusCode, child.AllowedStatusCode),
		Validators:         optional.Merge(parent.Validators, child.Validators),
		Parser:             optional.Merge(parent.Parser, child.Parser),
		Retry:              optional.Merge(parent.Retry, child.Retry),
		Throttling:         optional.Merge(parent.Throttling, child.Throttling),
		ConcurrentRequests: optional.Merge(parent.ConcurrentRequests, child.ConcurrentRequests),
		LogRequest:         optional.Merge(parent.LogRequest, child.LogRequest),
		LogResponse:        optional.Merge(parent.LogResponse, child.LogResponse),
		LogErrors:          optional.Merge(parent.LogErrors, child.LogErrors),
	}
}

// SuccessSet computes the effective set of status codes considered
// non-error for a request: strict dominates allowed; allowed extends 2xx.
func (c GracyConfig) SuccessSet() StatusSet {
	if strict, ok := c.StrictStatusCode.Get(); ok {
		return strict
	}
	allowed, _ := c.AllowedStatusCode.Get()
	base := NewStatusSet()
	for c := 200; c < 300; c++ {
		base[c] = struct{}{}
	}
	return base.Union(allowed)
}

// IsSuccess reports whether status is in the effective success set.
func (c GracyConfig) IsSuccess(status int) bool {
	return c.SuccessSet().Contains(status)
}

// RequestContext is the immutable per-call descriptor flowing through the
// whole pipeline: hooks, validators, parsers, and metrics all see the same
// instance. It is created when a call enters the pipeline and never
// mutated afterward.
type RequestContext struct {
	Method              string
	UnformattedEndpoint string
	FormattedEndpoint   string
	FormattedURL        string
	Substitutions       map[string]string
	Query               map[string][]string
	Headers             http.Header
	Body                []byte
	Config              GracyConfig
}
