// Package errutil defines the distinct, matchable error kinds a pipeline
// execution can terminate with. Each kind wraps an optional cause and
// carries enough context (method, endpoint, status, raw body) for message
// templating and for retry_on matching.
package errutil

import (
	"errors"
	"fmt"
)

// Kind identifies one of the nine terminal error kinds a request can fail
// with. Kind values are comparable, so RetryPolicy.RetryOn can hold a set
// of them directly.
type Kind string

const (
	KindTransport       Kind = "transport"
	KindBadStatus       Kind = "bad_status"
	KindValidatorFailed Kind = "validator_failed"
	KindParserFailed    Kind = "parser_failed"
	KindUserDefined     Kind = "user_defined"
	KindRetryExhausted  Kind = "retry_exhausted"
	KindNoReplay        Kind = "no_replay"
	KindTimeout         Kind = "timeout"
	KindCancelled       Kind = "cancelled"
)

// GracyError is the error type every pipeline failure surfaces as. It
// always carries a Kind, and optionally a status code (for bad_status /
// user_defined), a raw response body, and an underlying cause.
type GracyError struct {
	Kind       Kind
	Method     string
	Endpoint   string
	URL        string
	StatusCode int
	Raw        []byte
	Message    string
	Err        error
}

func (e *GracyError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gracy: %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("gracy: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("gracy: %s", e.Kind)
}

func (e *GracyError) Unwrap() error { return e.Err }

// Is reports a match for any *GracyError target of the same Kind, so
// errors.Is(err, errutil.New(errutil.KindBadStatus, "", nil)) matches by
// kind rather than by identity.
func (e *GracyError) Is(target error) bool {
	var other *GracyError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs a GracyError of the given kind.
func New(kind Kind, message string, cause error) *GracyError {
	return &GracyError{Kind: kind, Message: message, Err: cause}
}

// Transport wraps an underlying transport failure (connect/timeout/reset/TLS).
func Transport(method, endpoint, url string, cause error) *GracyError {
	return &GracyError{Kind: KindTransport, Method: method, Endpoint: endpoint, URL: url, Message: "transport failed", Err: cause}
}

// BadStatus reports a response outside the effective success set.
func BadStatus(method, endpoint, url string, status int, raw []byte) *GracyError {
	return &GracyError{Kind: KindBadStatus, Method: method, Endpoint: endpoint, URL: url, StatusCode: status, Raw: raw, Message: fmt.Sprintf("status %d not in success set", status)}
}

// ValidatorFailed reports a user validator rejecting the response.
func ValidatorFailed(method, endpoint, url string, status int, cause error) *GracyError {
	return &GracyError{Kind: KindValidatorFailed, Method: method, Endpoint: endpoint, URL: url, StatusCode: status, Message: "validator rejected response", Err: cause}
}

// ParserFailed reports a parser callback panicking/erroring.
func ParserFailed(method, endpoint, url string, status int, cause error) *GracyError {
	return &GracyError{Kind: KindParserFailed, Method: method, Endpoint: endpoint, URL: url, StatusCode: status, Message: "parser failed", Err: cause}
}

// RetryExhausted carries the last outcome's error after attempts ran out.
func RetryExhausted(method, endpoint, url string, attempts int, lastErr error) *GracyError {
	return &GracyError{Kind: KindRetryExhausted, Method: method, Endpoint: endpoint, URL: url, Message: fmt.Sprintf("exhausted %d attempts", attempts), Err: lastErr}
}

// NoReplay reports a replay-mode lookup miss.
func NoReplay(method, endpoint, url string) *GracyError {
	return &GracyError{Kind: KindNoReplay, Method: method, Endpoint: endpoint, URL: url, Message: "no replay found"}
}

// Timeout reports the total request deadline elapsing.
func Timeout(method, endpoint, url string, cause error) *GracyError {
	return &GracyError{Kind: KindTimeout, Method: method, Endpoint: endpoint, URL: url, Message: "request timed out", Err: cause}
}

// Cancelled reports caller cancellation.
func Cancelled(method, endpoint, url string, cause error) *GracyError {
	return &GracyError{Kind: KindCancelled, Method: method, Endpoint: endpoint, URL: url, Message: "request cancelled", Err: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a *GracyError.
func KindOf(err error) (Kind, bool) {
	var ge *GracyError
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return "", false
}
