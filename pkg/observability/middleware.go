package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RepositoryMiddleware provides observability for repository operations
type RepositoryMiddleware struct {
	tel *Telemetry
}

// NewRepositoryMiddleware creates a new repository middleware
func NewRepositoryMiddleware(tel *Telemetry) *RepositoryMiddleware {
	return &RepositoryMiddleware{tel: tel}
}

// WrapLoad wraps a repository Load operation with tracing and metrics
func (m *RepositoryMiddleware) WrapLoad(aggregateType, aggregateID string, snapshotUsed bool, operation func() error) error {
	tracer := m.tel.Tracer("eventsourcing.repository")
	ctx := context.Background()

	ctx, span := tracer.Start(ctx, "repository.load",
		trace.WithAttributes(
			AttrAggregateType.String(aggregateType),
			AttrAggregateID.String(aggregateID),
			AttrOperation.String("load"),
			AttrSnapshotHit.Bool(snapshotUsed),
		),
	)
	defer span.End()

	start := time.Now()
	err := operation()
	duration := time.Since(start)

	// Record metrics
	if m.tel.Metrics != nil {
		m.tel.Metrics.RecordRepositoryOperation(ctx, "load", aggregateType)
		m.tel.Metrics.RecordAggregateLoad(ctx, aggregateType, snapshotUsed)
	}

	// Update span
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Milliseconds())))

	return err
}

// WrapSave wraps a repository Save operation with tracing and metrics
func (m *RepositoryMiddleware) WrapSave(aggregateType, aggregateID string, version int64, eventCount int, operation func() error) error {
	tracer := m.tel.Tracer("eventsourcing.repository")
	ctx := context.Background()

	ctx, span := tracer.Start(ctx, "repository.save",
		trace.WithAttributes(
			AttrAggregateType.String(aggregateType),
			AttrAggregateID.String(aggregateID),
			AttrVersion.Int64(version),
			AttrOperation.String("save"),
			AttrEventCount.Int(eventCount),
		),
	)
	defer span.End()

	start := time.Now()
	err := operation()
	duration := time.Since(start)

	// Record metrics
	if m.tel.Metrics != nil {
		m.tel.Metrics.RecordRepositoryOperation(ctx, "save", aggregateType)
		m.tel.Metrics.RecordEventStoreOperation(ctx, "append", duration, eventCount)
	}

	// Update span
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Milliseconds())))

	return err
}

// EventStoreMiddleware provides observability for event store operations
type EventStoreMiddleware struct {
	tel *Telemetry
}

// NewEventStoreMiddleware creates a new event store middleware
func NewEventStoreMiddleware(tel *Telemetry) *EventStoreMiddleware {
	return &EventStoreMiddleware{tel: tel}
}

// WrapAppendEvents wraps an AppendEvents operation with tracing and metrics
func (m *EventStoreMiddleware) WrapAppendEvents(ctx context.Context, aggregateType, aggregateID string, eventCount int, operation func(context.Context) error) error {
	tracer := m.tel.Tracer("eventsourcing.eventstore")

	ctx, span := tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			AttrAggregateType.String(aggregateType),
			AttrAggregateID.String(aggregateID),
			AttrEventCount.Int(eventCount),
		),
	)
	defer span.End()

	start := time.Now()
	err := operation(ctx)
	duration := time.Since(start)

	// Record metrics
	if m.tel.Metrics != nil {
		m.tel.Metrics.RecordEventStoreOperation(ctx, "append", duration, eventCount)
	}

	// Update span
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		if m.tel.Metrics != nil {
			m.tel.Metrics.EventsAppended.Add(ctx, int64(eventCount))
		}
	}

	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Milliseconds())))

	return err
}

// WrapLoadEvents wraps a LoadEvents operation with tracing and metrics
func (m *EventStoreMiddleware) WrapLoadEvents(ctx context.Context, aggregateType, aggregateID string, operation func(context.Context) (int, error)) (int, error) {
	tracer := m.tel.Tracer("eventsourcing.eventstore")

	ctx, span := tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(
			AttrAggregateType.String(aggregateType),
			AttrAggregateID.String(aggregateID),
		),
	)
	defer span.End()

	start := time.Now()
	eventCount, err := operation(ctx)
	duration := time.Since(start)

	// Record metrics
	if m.tel.Metrics != nil {
		m.tel.Metrics.RecordEventStoreOperation(ctx, "load", duration, eventCount)
	}

	// Update span
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(AttrEventCount.Int(eventCount))
	}

	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Milliseconds())))

	return eventCount, err
}

