package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tasktrack"

// StartTransitionSpan starts a span for a workflow action on a task.
func StartTransitionSpan(ctx context.Context, taskID, action, actorRole string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.transition",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.action", action),
			attribute.String("actor.role", actorRole),
		),
	)
}

// StartSummarySpan starts a span for summarizing one evidence document.
func StartSummarySpan(ctx context.Context, taskID, contentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "evidence.summarize",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("evidence.content_id", contentID),
		),
	)
}

// EndSpan records err on span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
