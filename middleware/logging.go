package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"post-rpc/wire"
)

// Logging records every dispatched method with its duration and outcome.
func Logging(log zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) *wire.Response {
			start := time.Now()
			resp := next(ctx, req)
			evt := log.Debug().
				Str("method", req.Method).
				Str("id", req.ID).
				Dur("duration", time.Since(start))
			if resp.Error != nil {
				evt = log.Warn().
					Str("method", req.Method).
					Str("id", req.ID).
					Dur("duration", time.Since(start)).
					Int("code", resp.Error.Code).
					Str("error", resp.Error.Message)
			}
			evt.Msg("dispatched")
			return resp
		}
	}
}
