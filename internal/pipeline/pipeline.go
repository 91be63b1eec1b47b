// Package pipeline composes middleware into onion-style chains that wrap every
// event handler invocation.
package pipeline

import "errors"

// ErrNextCalledMultipleTimes is returned when a middleware invokes its
// continuation more than once.
var ErrNextCalledMultipleTimes = errors.New("next() called multiple times")

// Handler handles one event.
type Handler func(ctx *Context) error

// Next continues to the next middleware, or to the terminal handler after the last one.
type Next func() error

// Middleware runs around the rest of the chain. It may mutate ctx before
// calling next, skip next to short-circuit, or do work after next returns.
type Middleware func(ctx *Context, next Next) error

// Pipeline runs the composed middleware and finally terminal.
type Pipeline func(ctx *Context, terminal Handler) error

// Compose builds a Pipeline from middleware. The slice is copied, so later
// changes to it never reach an already compiled pipeline.
func Compose(middleware []Middleware) Pipeline {
	stack := make([]Middleware, len(middleware))
	copy(stack, middleware)

	if len(stack) == 0 {
		return func(ctx *Context, terminal Handler) error {
			if terminal == nil {
				return nil
			}
			return terminal(ctx)
		}
	}

	return func(ctx *Context, terminal Handler) error {
		index := -1

		var dispatch func(i int) error
		dispatch = func(i int) error {
			if i <= index {
				return ErrNextCalledMultipleTimes
			}
			index = i

			if i == len(stack) {
				if terminal == nil {
					return nil
				}
				return terminal(ctx)
			}

			return stack[i](ctx, func() error {
				return dispatch(i + 1)
			})
		}

		return dispatch(0)
	}
}
