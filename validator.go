package gracy

import (
	"encoding/json"

	playgroundValidator "github.com/go-playground/validator/v10"
	"github.com/guilatrova/gracy/internal/errutil"
)

// Validator is invoked after the status check passes. Multiple validators
// run in declaration order; the first failure short-circuits the
// remaining ones.
type Validator interface {
	Validate(ctx *RequestContext, resp *Response) error
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(ctx *RequestContext, resp *Response) error

func (f ValidatorFunc) Validate(ctx *RequestContext, resp *Response) error {
	return f(ctx, resp)
}

// runValidators runs every validator in order, stopping at the first
// failure and wrapping it as a validator_failed GracyError.
func runValidators(ctx *RequestContext, resp *Response, validators []Validator) error {
	for _, v := range validators {
		if v == nil {
			continue
		}
		if err := v.Validate(ctx, resp); err != nil {
			return errutil.ValidatorFailed(ctx.Method, ctx.FormattedEndpoint, ctx.FormattedURL, resp.StatusCode, err)
		}
	}
	return nil
}

// StructValidator decodes the response body into a new T and runs
// go-playground/validator struct-tag validation against it. It is useful
// as a GracyConfig validator entry when a success status alone isn't
// enough proof that the payload is well-formed.
type StructValidator[T any] struct {
	validate *playgroundValidator.Validate
}

// NewStructValidator builds a StructValidator for T using the default
// go-playground validator engine.
func NewStructValidator[T any]() *StructValidator[T] {
	return &StructValidator[T]{validate: playgroundValidator.New(playgroundValidator.WithRequiredStructEnabled())}
}

func (s *StructValidator[T]) Validate(_ *RequestContext, resp *Response) error {
	var target T
	if err := json.Unmarshal(resp.Body, &target); err != nil {
		return err
	}
	return s.validate.Struct(target)
}
