package transport

import (
	"context"

	"github.com/knikam3027/jnj/pkg/api"
)

// Invoker runs the pipeline for one request.
type Invoker interface {
	Invoke(ctx context.Context, req *api.QueryRequest) *api.PipelineResult
}

// InvokerFunc is an adapter that allows using an ordinary function as an
// Invoker.
type InvokerFunc func(ctx context.Context, req *api.QueryRequest) *api.PipelineResult

// Invoke calls f(ctx, req).
func (f InvokerFunc) Invoke(ctx context.Context, req *api.QueryRequest) *api.PipelineResult {
	return f(ctx, req)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
