package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/knikam3027/jnj/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// invocation. Results with a statusCode of 400 or above log at WARN.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Invoker) Invoker {
		return InvokerFunc(func(ctx context.Context, req *api.QueryRequest) *api.PipelineResult {
			start := time.Now()
			res := next.Invoke(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("user_id", req.Parameters.UserID),
				slog.Int("status_code", res.StatusCode),
				slog.Duration("duration", time.Since(start)),
			}
			level := slog.LevelInfo
			if res.StatusCode >= 400 {
				level = slog.LevelWarn
			}
			logger.LogAttrs(ctx, level, "invocation completed", attrs...)
			return res
		})
	}
}
