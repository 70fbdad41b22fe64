package transport

import (
	"context"

	"github.com/knikam3027/jnj/pkg/api"
)

type requestIDKey struct{}

// RequestIDFromContext returns the invocation's request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID attaches id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID makes sure every invocation carries a request ID. An ID the
// HTTP adapter took from X-Request-ID is kept; otherwise a UUID is minted.
func RequestID() Middleware {
	return func(next Invoker) Invoker {
		return InvokerFunc(func(ctx context.Context, req *api.QueryRequest) *api.PipelineResult {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, api.NewRequestID())
			}
			return next.Invoke(ctx, req)
		})
	}
}
