package middleware

import (
	"context"
	"time"

	"post-rpc/wire"
)

// Timeout bounds handler execution on the serving side. The calling side
// has its own per-call deadline; this one protects the server from
// handlers that never return. On expiry the caller gets an internal error
// response, and the handler goroutine is left to finish into the void.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) *wire.Response {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan *wire.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return wire.NewFailure(req.ID, wire.CodeInternalError, "handler timed out", nil)
			}
		}
	}
}
