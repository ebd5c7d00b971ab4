package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"post-rpc/wire"
)

// RateLimit rejects requests beyond a token-bucket budget with an internal
// error response. The limiter is shared across all methods on the channel.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) *wire.Response {
			if !limiter.Allow() {
				return wire.NewFailure(req.ID, wire.CodeInternalError, "rate limit exceeded", nil)
			}
			return next(ctx, req)
		}
	}
}
