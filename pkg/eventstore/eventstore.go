// Package eventstore defines the storage-layer contract the repository
// commits through and loads from: the journal/outbox/snapshot record
// shapes, the Store interface a concrete backend (pkg/dynamostore)
// implements, and the snapshot-interval arithmetic that decides when a
// commit should also write a fresh snapshot.
package eventstore

import "context"

// SerializedDomainEvent is one journal row: a domain event encoded to bytes
// by a pkg/serde.Codec, addressed by aggregate and sequence number.
type SerializedDomainEvent struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	SeqNr         int64
	Payload       []byte
	Metadata      map[string]string
}

// SerializedIntegrationEvent is one outbox row produced alongside a commit.
type SerializedIntegrationEvent struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// PersistedSnapshot is the latest known state of an aggregate, encoded to
// bytes, alongside the journal sequence number it was built from and the
// CAS version used to guard concurrent snapshot writers.
type PersistedSnapshot struct {
	AggregateType string
	AggregateID   string
	Aggregate     []byte
	SeqNr         int64
	Version       int64
}

// Store is the contract a concrete backend implements. It combines the
// original's SnapshotIntervalProvider, AggregateEventStreamer, Persister,
// and SnapshotGetter traits into one interface, since every implementation
// in this module needs all four.
type Store interface {
	// SnapshotInterval returns the number of journal events between
	// automatic snapshots.
	SnapshotInterval() int64

	// LoadEvents streams journal rows for an aggregate from fromSeqNr
	// (inclusive) onward, ordered by sequence number.
	LoadEvents(ctx context.Context, aggregateType, aggregateID string, fromSeqNr int64) ([]SerializedDomainEvent, error)

	// GetSnapshot returns the latest snapshot for an aggregate, or
	// found=false if none exists yet.
	GetSnapshot(ctx context.Context, aggregateType, aggregateID string) (snapshot PersistedSnapshot, found bool, err error)

	// Persist commits domainEvents, integrationEvents, and an optional
	// snapshot update as a single atomic write. snapshot may be the zero
	// value when no snapshot update is due for this commit.
	Persist(ctx context.Context, domainEvents []SerializedDomainEvent, integrationEvents []SerializedIntegrationEvent, snapshot *PersistedSnapshot) error
}

// CommitSnapshotAt decides whether appending numEvents events (starting
// right after currentSeqNr) should trigger a snapshot write, returning 0 if
// it should not. A non-zero result is the offset, relative to
// currentSeqNr, of the last event in the batch whose sequence number falls
// exactly on a multiple of snapshotInterval.
func CommitSnapshotAt(snapshotInterval, currentSeqNr, numEvents int64) int64 {
	remaining := snapshotInterval - (currentSeqNr % snapshotInterval)
	if numEvents < remaining {
		return 0
	}
	excess := numEvents - remaining
	return remaining + excess - (excess % snapshotInterval)
}
