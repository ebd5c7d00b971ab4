// Package middleware wraps the dispatcher's method invocation with
// cross-cutting behavior. Middlewares compose into an onion:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//
// so A sees the request first and the response last.
package middleware

import (
	"context"

	"post-rpc/wire"
)

// HandlerFunc handles one classified request and always produces a
// response; protocol errors travel inside it, never up the stack.
type HandlerFunc func(ctx context.Context, req *wire.Request) *wire.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into a single middleware, outermost first.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
