package gracy

import (
	"fmt"

	"github.com/guilatrova/gracy/internal/errutil"
	"github.com/guilatrova/gracy/internal/logging"
)

// ParserEntryKind distinguishes the three shapes a parser map entry can
// take, modeled here as a closed sum type instead of mixed dynamic values.
type ParserEntryKind int

const (
	// ParserTransform applies Transform to the response; a panic/error
	// inside Transform becomes a parser_failed error.
	ParserTransform ParserEntryKind = iota
	// ParserNull yields a nil result without invoking any callback.
	ParserNull
	// ParserRaise constructs a typed user error via Raise.
	ParserRaise
)

// ErrorDescriptor describes a user-defined error to raise from a parser
// entry: a message template (may use the log placeholder vocabulary) and a
// factory receiving the request context and response for message details.
type ErrorDescriptor struct {
	Template string
	Factory  func(ctx *RequestContext, resp *Response) error
}

// ParserEntry is one value in a ParserMap: either a transform callback, the
// null sentinel, or a typed error-raising descriptor.
type ParserEntry struct {
	Kind      ParserEntryKind
	Transform func(resp *Response) (interface{}, error)
	Raise     ErrorDescriptor
}

// Transform builds a ParserTransform entry.
func Transform(fn func(resp *Response) (interface{}, error)) ParserEntry {
	return ParserEntry{Kind: ParserTransform, Transform: fn}
}

// JSONTransform builds a ParserTransform entry that JSON-decodes the
// response body into a fresh T.
func JSONTransform[T any]() ParserEntry {
	return Transform(func(resp *Response) (interface{}, error) {
		var out T
		if err := resp.JSON(&out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// Null builds a ParserNull entry.
func Null() ParserEntry {
	return ParserEntry{Kind: ParserNull}
}

// Raise builds a ParserRaise entry.
func Raise(descriptor ErrorDescriptor) ParserEntry {
	return ParserEntry{Kind: ParserRaise, Raise: descriptor}
}

// ParserMap maps a status code to a ParserEntry, plus an explicit Default
// entry used when no exact status match exists.
type ParserMap struct {
	ByStatus map[int]ParserEntry
	Default  *ParserEntry
}

// Lookup resolves the parser entry for status, in order: exact match,
// default, then none (raw response).
func (m ParserMap) Lookup(status int) (ParserEntry, bool) {
	if m.ByStatus != nil {
		if entry, ok := m.ByStatus[status]; ok {
			return entry, true
		}
	}
	if m.Default != nil {
		return *m.Default, true
	}
	return ParserEntry{}, false
}

// parse applies the ParserMap to resp, returning the raw response when no
// entry matches.
func parse(ctx *RequestContext, resp *Response) (interface{}, error) {
	parserMap, hasParser := ctx.Config.Parser.Get()
	if !hasParser {
		return resp, nil
	}

	entry, ok := parserMap.Lookup(resp.StatusCode)
	if !ok {
		return resp, nil
	}

	switch entry.Kind {
	case ParserNull:
		return nil, nil
	case ParserRaise:
		if entry.Raise.Factory != nil {
			return nil, entry.Raise.Factory(ctx, resp)
		}
		msg := entry.Raise.Template
		if msg == "" {
			msg = fmt.Sprintf("user-defined error for status %d", resp.StatusCode)
		} else {
			values := requestPlaceholders(ctx)
			values[logging.PlaceholderStatus] = itoaStatus(resp.StatusCode)
			msg = logging.Render(msg, values)
		}
		return nil, &errutil.GracyError{
			Kind:       errutil.KindUserDefined,
			Method:     ctx.Method,
			Endpoint:   ctx.FormattedEndpoint,
			URL:        ctx.FormattedURL,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	case ParserTransform:
		if entry.Transform == nil {
			return resp, nil
		}
		value, err := transformSafely(entry.Transform, resp)
		if err != nil {
			return nil, errutil.ParserFailed(ctx.Method, ctx.FormattedEndpoint, ctx.FormattedURL, resp.StatusCode, err)
		}
		return value, nil
	default:
		return resp, nil
	}
}

// transformSafely recovers a panicking Transform callback into an error so
// a misbehaving user parser can't crash the pipeline goroutine.
func transformSafely(fn func(*Response) (interface{}, error), resp *Response) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panicked: %v", r)
		}
	}()
	return fn(resp)
}
