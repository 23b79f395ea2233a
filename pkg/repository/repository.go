// Package repository implements the event-sourced repository: loading
// an aggregate from its latest snapshot plus any journal events written
// since, committing the events a command produced alongside the
// integration events and inverted-index keyword claims they carry, and
// bounded-concurrency batch loading.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/plaenen/eventstore/pkg/aggregate"
	"github.com/plaenen/eventstore/pkg/eventstore"
	"github.com/plaenen/eventstore/pkg/idgen"
	"github.com/plaenen/eventstore/pkg/invertedindex"
	"github.com/plaenen/eventstore/pkg/message"
	"github.com/plaenen/eventstore/pkg/middleware"
	"github.com/plaenen/eventstore/pkg/observability"
	"github.com/plaenen/eventstore/pkg/serde"
)

// ID is the constraint every aggregate identifier must satisfy: a string
// wire form, matching aggregateid.ID[T].
type ID interface {
	comparable
	fmt.Stringer
}

// Repository loads and commits aggregates of one type against an
// eventstore.Store and an invertedindex.Store.
type Repository[T ID, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[T, C, E]] struct {
	aggregateType   string
	store           eventstore.Store
	index           invertedindex.Store
	eventCodec      serde.Codec[E]
	snapshotCodec   serde.Codec[A]
	factory         aggregate.Factory[T, C, E, A]
	parseID         func(string) (T, error)
	concurrentLimit int
	logger          *slog.Logger
	metrics         *observability.Metrics
	middlewares     []middleware.Middleware[C, E]
}

// Option configures a Repository.
type Option[T ID, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[T, C, E]] func(*Repository[T, C, E, A])

// WithConcurrentLimit bounds how many aggregates LoadAggregates fetches in
// parallel. Default is 10.
func WithConcurrentLimit[T ID, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[T, C, E]](n int) Option[T, C, E, A] {
	return func(r *Repository[T, C, E, A]) { r.concurrentLimit = n }
}

// WithLogger sets the structured logger used for load/commit diagnostics.
func WithLogger[T ID, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[T, C, E]](logger *slog.Logger) Option[T, C, E, A] {
	return func(r *Repository[T, C, E, A]) { r.logger = logger }
}

// WithMetrics records optimistic-lock conflict counts on metrics for this
// repository's aggregate type, in addition to the structured logging
// WithLogger already provides. No other metric is recorded by the
// repository.
func WithMetrics[T ID, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[T, C, E]](metrics *observability.Metrics) Option[T, C, E, A] {
	return func(r *Repository[T, C, E, A]) { r.metrics = metrics }
}

// WithMiddleware wraps every command handled by HandleAndCommit and
// RetryOnConflict in mws, outermost first, the same chain a command bus
// applies around a handler's Handle method.
func WithMiddleware[T ID, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[T, C, E]](mws ...middleware.Middleware[C, E]) Option[T, C, E, A] {
	return func(r *Repository[T, C, E, A]) { r.middlewares = append(r.middlewares, mws...) }
}

// New constructs a Repository for one aggregate type.
func New[T ID, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[T, C, E]](
	aggregateType string,
	store eventstore.Store,
	index invertedindex.Store,
	eventCodec serde.Codec[E],
	snapshotCodec serde.Codec[A],
	factory aggregate.Factory[T, C, E, A],
	parseID func(string) (T, error),
	opts ...Option[T, C, E, A],
) *Repository[T, C, E, A] {
	r := &Repository[T, C, E, A]{
		aggregateType:   aggregateType,
		store:           store,
		index:           index,
		eventCodec:      eventCodec,
		snapshotCodec:   snapshotCodec,
		factory:         factory,
		parseID:         parseID,
		concurrentLimit: 10,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reconstructs an aggregate from its latest snapshot, if any, plus
// every journal event written since. An aggregate with no snapshot and no
// journal rows loads as a freshly initialized, version-0 aggregate.
func (r *Repository[T, C, E, A]) Load(ctx context.Context, id T) (*aggregate.VersionedAggregate[T, C, E, A], error) {
	idStr := id.String()

	snapshot, found, err := r.store.GetSnapshot(ctx, r.aggregateType, idStr)
	if err != nil {
		return nil, err
	}

	var va aggregate.VersionedAggregate[T, C, E, A]
	if found {
		state, err := r.snapshotCodec.Unmarshal(snapshot.Aggregate)
		if err != nil {
			return nil, eventstore.Deserialization(err)
		}
		va = aggregate.FromSnapshot[T, C, E, A](state, snapshot.Version, snapshot.SeqNr)
	} else {
		va = aggregate.New[T, C, E, A](r.factory(id))
	}

	rows, err := r.store.LoadEvents(ctx, r.aggregateType, idStr, va.SeqNr+1)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		event, err := r.eventCodec.Unmarshal(row.Payload)
		if err != nil {
			return nil, eventstore.Deserialization(err)
		}
		va.ApplyAtSeqNr(event, row.SeqNr)
	}

	r.logger.DebugContext(ctx, "loaded aggregate",
		slog.String("aggregate_type", r.aggregateType),
		slog.String("aggregate_id", idStr),
		slog.Bool("snapshot_used", found),
		slog.Int64("seq_nr", va.SeqNr))

	return &va, nil
}

// Exists reports whether an aggregate has any persisted state at all,
// distinguishing "never created" from "loads to a fresh, empty aggregate".
func (r *Repository[T, C, E, A]) Exists(ctx context.Context, id T) (bool, error) {
	idStr := id.String()
	_, found, err := r.store.GetSnapshot(ctx, r.aggregateType, idStr)
	if err != nil {
		return false, err
	}
	if found {
		return true, nil
	}

	rows, err := r.store.LoadEvents(ctx, r.aggregateType, idStr, 1)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Commit appends events to va's journal, writes any integration events and
// inverted-index keyword claims those events carry, and writes a fresh
// snapshot when the commit crosses a snapshot-interval boundary. va is
// mutated in place: each event is applied to it (advancing SeqNr) before
// the write is attempted, and on success its Version reflects any snapshot
// written. A failed write does not undo those applied events: when the
// store reports an optimistic-lock conflict Commit returns
// aggregate.ErrConflict and va is left ahead of the store, so the caller
// reloads before retrying (see RetryOnConflict).
func (r *Repository[T, C, E, A]) Commit(ctx context.Context, va *aggregate.VersionedAggregate[T, C, E, A], events []E, md message.Metadata) error {
	if len(events) == 0 {
		return nil
	}

	idStr := va.Aggregate.AggregateID().String()
	startSeqNr := va.SeqNr

	domainRows := make([]eventstore.SerializedDomainEvent, 0, len(events))
	var integrationRows []eventstore.SerializedIntegrationEvent
	var keywordClaims []string

	flatMetadata := map[string]string{
		"causation_id":   md.CausationID,
		"correlation_id": md.CorrelationID,
		"principal_id":   md.PrincipalID,
	}
	for k, v := range md.Custom {
		flatMetadata[k] = v
	}

	for i, event := range events {
		payload, err := r.eventCodec.Marshal(event)
		if err != nil {
			return eventstore.Deserialization(err)
		}

		seqNr := startSeqNr + int64(i) + 1
		domainRows = append(domainRows, eventstore.SerializedDomainEvent{
			EventID:       "evt-" + idgen.MustGenerateSortableID(),
			AggregateType: r.aggregateType,
			AggregateID:   idStr,
			EventType:     event.Name(),
			SeqNr:         seqNr,
			Payload:       payload,
			Metadata:      flatMetadata,
		})

		if indexer, ok := any(event).(aggregate.KeywordIndexer); ok {
			keywordClaims = append(keywordClaims, indexer.IndexKeywords()...)
		}

		if source, ok := any(event).(aggregate.IntegrationEventSource); ok {
			for _, integration := range source.IntoIntegrationEvents() {
				integrationPayload, err := integration.MarshalPayload()
				if err != nil {
					return eventstore.Deserialization(err)
				}
				integrationRows = append(integrationRows, eventstore.SerializedIntegrationEvent{
					EventID:       "evt-" + idgen.MustGenerateSortableID(),
					AggregateType: r.aggregateType,
					AggregateID:   idStr,
					EventType:     integration.Name(),
					Payload:       integrationPayload,
				})
			}
		}

		va.Apply(event)
	}

	var snapshot *eventstore.PersistedSnapshot
	if at := eventstore.CommitSnapshotAt(r.store.SnapshotInterval(), startSeqNr, int64(len(events))); at > 0 {
		state, version, seqNr := va.Snapshot()
		payload, err := r.snapshotCodec.Marshal(state)
		if err != nil {
			return eventstore.Deserialization(err)
		}
		newVersion := version + 1
		snapshot = &eventstore.PersistedSnapshot{
			AggregateType: r.aggregateType,
			AggregateID:   idStr,
			Aggregate:     payload,
			SeqNr:         seqNr,
			Version:       newVersion,
		}
	}

	if err := r.store.Persist(ctx, domainRows, integrationRows, snapshot); err != nil {
		if errors.Is(err, eventstore.ErrOptimisticLock) {
			if r.metrics != nil {
				r.metrics.RecordOptimisticLockConflict(ctx, r.aggregateType)
			}
			return aggregate.ErrConflict
		}
		return err
	}

	if snapshot != nil {
		va.Version = snapshot.Version
	}

	// Index writes are independent of the journal transaction: losing a
	// race here never rolls back a commit that already succeeded.
	for _, keyword := range keywordClaims {
		if err := r.index.Commit(ctx, idStr, keyword); err != nil {
			r.logger.ErrorContext(ctx, "inverted index commit failed",
				slog.String("aggregate_id", idStr), slog.String("keyword", keyword), slog.Any("error", err))
		}
	}

	r.logger.InfoContext(ctx, "committed aggregate",
		slog.String("aggregate_type", r.aggregateType),
		slog.String("aggregate_id", idStr),
		slog.Int("event_count", len(events)),
		slog.Bool("snapshot_written", snapshot != nil))

	return nil
}

// LoadAggregates loads every id in ids, bounding concurrency to the
// repository's configured limit.
func (r *Repository[T, C, E, A]) LoadAggregates(ctx context.Context, ids []T) ([]*aggregate.VersionedAggregate[T, C, E, A], error) {
	results := make([]*aggregate.VersionedAggregate[T, C, E, A], len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrentLimit)

	for i, id := range ids {
		g.Go(func() error {
			va, err := r.Load(gctx, id)
			if err != nil {
				return err
			}
			results[i] = va
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// handle runs cmd against va through the repository's configured middleware
// chain, falling back to a direct va.Handle call when none is configured.
func (r *Repository[T, C, E, A]) handle(ctx context.Context, va *aggregate.VersionedAggregate[T, C, E, A], cmd C) ([]E, error) {
	base := middleware.HandlerFunc[C, E](func(_ context.Context, cmd C) ([]E, error) {
		return va.Handle(cmd)
	})
	if len(r.middlewares) == 0 {
		return base.Handle(ctx, cmd)
	}
	return middleware.Chain(base, r.middlewares...).Handle(ctx, cmd)
}

// HandleAndCommit loads id, runs cmd against it, and commits the resulting
// events in one call. The domain error from Handle, if any, is returned
// wrapped as aggregate.CommandError.
func (r *Repository[T, C, E, A]) HandleAndCommit(ctx context.Context, id T, cmd C, md message.Metadata) (*aggregate.VersionedAggregate[T, C, E, A], error) {
	va, err := r.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := r.handle(ctx, va, cmd)
	if err != nil {
		return va, aggregate.Rejected(err)
	}

	if err := r.Commit(ctx, va, events, md); err != nil {
		return va, err
	}
	return va, nil
}

// RetryOnConflict retries HandleAndCommit-shaped work on aggregate.ErrConflict
// with exponential backoff (10ms, 20ms, 40ms, ...), reloading and
// regenerating the command each attempt via cmdFn so it can react to the
// aggregate's freshly reloaded state. It does not retry domain rejections
// or any other error: the caller is in the best position to decide whether
// those deserve a retry.
func (r *Repository[T, C, E, A]) RetryOnConflict(ctx context.Context, id T, maxAttempts int, md message.Metadata, cmdFn func(*aggregate.VersionedAggregate[T, C, E, A]) (C, error)) (*aggregate.VersionedAggregate[T, C, E, A], error) {
	backoff := 10 * time.Millisecond

	for attempt := 0; attempt < maxAttempts; attempt++ {
		va, err := r.Load(ctx, id)
		if err != nil {
			return nil, err
		}

		cmd, err := cmdFn(va)
		if err != nil {
			return nil, err
		}

		events, err := r.handle(ctx, va, cmd)
		if err != nil {
			return va, aggregate.Rejected(err)
		}

		err = r.Commit(ctx, va, events, md)
		if err == nil {
			return va, nil
		}
		if !errors.Is(err, aggregate.ErrConflict) {
			return nil, err
		}

		r.logger.WarnContext(ctx, "retrying after conflict",
			slog.String("aggregate_id", id.String()), slog.Int("attempt", attempt+1))
		time.Sleep(backoff)
		backoff *= 2
	}

	return nil, fmt.Errorf("%w: exhausted %d attempts", aggregate.ErrConflict, maxAttempts)
}
