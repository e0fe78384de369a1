package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "curatd"

// StartSubmitSpan starts a span covering the intake of one content item.
// The workflow instance itself can wait days on a review SLA, so only the
// bounded submission work is traced.
func StartSubmitSpan(ctx context.Context, instanceID, contentItemID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "submit",
		trace.WithAttributes(
			attribute.String("instance.id", instanceID),
			attribute.String("content_item.id", contentItemID),
		),
	)
}

// StartActivitySpan starts a span for one workflow activity execution.
func StartActivitySpan(ctx context.Context, instanceID, step string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "activity",
		trace.WithAttributes(
			attribute.String("instance.id", instanceID),
			attribute.String("activity.step", step),
		),
	)
}

// StartRepairSpan starts a span for a side-effect repair attempt.
func StartRepairSpan(ctx context.Context, contentItemID, side string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "repair",
		trace.WithAttributes(
			attribute.String("content_item.id", contentItemID),
			attribute.String("repair.side", side),
		),
	)
}
