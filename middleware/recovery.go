package middleware

import (
	"context"
	"encoding/json"
	"fmt"

	"post-rpc/wire"
)

// Recovery converts a handler panic into an internal error response with
// the panic value attached as error data, keeping one poisoned request
// from taking down the delivery loop.
func Recovery() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) (resp *wire.Response) {
			defer func() {
				if v := recover(); v != nil {
					data, err := json.Marshal(fmt.Sprint(v))
					if err != nil {
						data = nil
					}
					resp = wire.NewFailure(req.ID, wire.CodeInternalError, "Internal error", data)
				}
			}()
			return next(ctx, req)
		}
	}
}
