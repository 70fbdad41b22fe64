package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/knikam3027/jnj/pkg/observability"
)

const scopeName = "github.com/knikam3027/jnj/pkg/engine"

var tracer = otel.Tracer(scopeName)

// stage runs fn inside a span and records its duration.
func stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	observability.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	slog.Info("stage finished", "stage", name, "duration", elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
