package aggregate

// VersionedAggregate wraps an aggregate with the bookkeeping the repository
// needs for optimistic concurrency and snapshotting: Version is the
// snapshot's own CAS counter, SeqNr is the highest journal sequence number
// applied so far.
type VersionedAggregate[ID any, C Command, E DomainEvent, A Root[ID, C, E]] struct {
	Aggregate A
	Version   int64
	SeqNr     int64
}

// New wraps a freshly initialized aggregate at version 0, sequence 0.
func New[ID any, C Command, E DomainEvent, A Root[ID, C, E]](a A) VersionedAggregate[ID, C, E, A] {
	return VersionedAggregate[ID, C, E, A]{Aggregate: a}
}

// FromSnapshot reconstructs a versioned aggregate from a previously
// persisted snapshot's state, version, and sequence number.
func FromSnapshot[ID any, C Command, E DomainEvent, A Root[ID, C, E]](a A, version, seqNr int64) VersionedAggregate[ID, C, E, A] {
	return VersionedAggregate[ID, C, E, A]{Aggregate: a, Version: version, SeqNr: seqNr}
}

// Handle delegates to the wrapped aggregate's Handle.
func (v *VersionedAggregate[ID, C, E, A]) Handle(cmd C) ([]E, error) {
	return v.Aggregate.Handle(cmd)
}

// Apply delegates to the wrapped aggregate's Apply and advances SeqNr.
func (v *VersionedAggregate[ID, C, E, A]) Apply(event E) {
	v.Aggregate.Apply(event)
	v.SeqNr++
}

// ApplyAtSeqNr applies an event replayed from the journal, pinning SeqNr to
// the journal row's own sequence number rather than incrementing blindly,
// so gaps or out-of-order replay are caught by the caller instead of
// silently skewing the counter.
func (v *VersionedAggregate[ID, C, E, A]) ApplyAtSeqNr(event E, seqNr int64) {
	v.Aggregate.Apply(event)
	v.SeqNr = seqNr
}

// Snapshot returns the current state alongside its version and sequence
// number, ready to be serialized into a PersistedSnapshot.
func (v *VersionedAggregate[ID, C, E, A]) Snapshot() (A, int64, int64) {
	return v.Aggregate, v.Version, v.SeqNr
}
