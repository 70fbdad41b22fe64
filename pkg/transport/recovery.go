package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/knikam3027/jnj/pkg/api"
)

// PanicBody is the envelope body of an invocation that panicked. The panic
// value is logged, never returned.
const PanicBody = "Error: 1007 - Internal error"

// Recovery returns middleware that turns a panic below it into a 500
// envelope carrying PanicBody. The panic is logged with code 1007.
func Recovery() Middleware {
	return func(next Invoker) Invoker {
		return InvokerFunc(func(ctx context.Context, req *api.QueryRequest) (res *api.PipelineResult) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("invocation panicked",
						"code", api.CodeTransportFailure,
						"request_id", RequestIDFromContext(ctx),
						"user_id", req.Parameters.UserID,
						"panic", r,
					)
					res = api.NewPipelineResult(http.StatusInternalServerError, PanicBody)
				}
			}()
			return next.Invoke(ctx, req)
		})
	}
}
