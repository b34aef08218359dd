package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "codepulse"

// StartSessionSpan starts a span covering one sync session.
func StartSessionSpan(ctx context.Context, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "session",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
		),
	)
}

// StartFetchSpan starts a span for one poll-channel fetch.
func StartFetchSpan(ctx context.Context, taskID, channel string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "fetch",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("fetch.channel", channel),
		),
	)
}
