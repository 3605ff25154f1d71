package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "steadystate.io/havoc"

// StartExperimentSpan opens a span covering one experiment run.
func StartExperimentSpan(ctx context.Context, definitionID, runID string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "experiment.run",
		trace.WithAttributes(
			attribute.String("havoc.definition_id", definitionID),
			attribute.String("havoc.run_id", runID),
		))
}
