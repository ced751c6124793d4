package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "concierge"

// StartHopSpan starts a span for one pipeline hop (dispatch, augment,
// generate, validate, escalate) within a turn.
func StartHopSpan(ctx context.Context, hop, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, hop,
		trace.WithAttributes(
			attribute.String("task.id", taskID),
		),
	)
}

// StartCollaboratorSpan starts a span for one outbound collaborator call.
func StartCollaboratorSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "collaborator",
		trace.WithAttributes(
			attribute.String("collaborator.name", name),
		),
	)
}
