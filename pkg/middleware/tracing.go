package middleware

import (
	"context"
	"fmt"

	"github.com/plaenen/eventstore/pkg/aggregate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing adds an OpenTelemetry span around command execution, using the
// global tracer provider under tracerName. Pass TracingWithTracer to supply
// one explicitly instead.
func Tracing[C aggregate.Command, E aggregate.DomainEvent](tracerName string) Middleware[C, E] {
	if tracerName == "" {
		tracerName = "github.com/plaenen/eventstore"
	}
	return TracingWithTracer[C, E](otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an explicit trace.Tracer, for callers
// that already hold one wired to their own TracerProvider.
func TracingWithTracer[C aggregate.Command, E aggregate.DomainEvent](tracer trace.Tracer) Middleware[C, E] {
	return func(next Handler[C, E]) Handler[C, E] {
		return HandlerFunc[C, E](func(ctx context.Context, cmd C) ([]E, error) {
			commandType := cmd.Name()

			spanCtx, span := tracer.Start(ctx, fmt.Sprintf("command.%s", commandType),
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(
					attribute.String("command.type", commandType),
				),
			)
			defer span.End()

			events, err := next.Handle(spanCtx, cmd)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}

			span.SetAttributes(attribute.Int("events.count", len(events)))
			if len(events) > 0 {
				eventTypes := make([]string, len(events))
				for i, evt := range events {
					eventTypes[i] = evt.Name()
				}
				span.SetAttributes(attribute.StringSlice("events.types", eventTypes))
			}

			span.SetStatus(codes.Ok, "command executed successfully")
			return events, nil
		})
	}
}
