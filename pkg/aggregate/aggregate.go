// Package aggregate defines the aggregate contract every domain type
// implements, and VersionedAggregate, the wrapper the repository uses to
// track an aggregate's optimistic-concurrency version and sequence number
// alongside its business state.
package aggregate

import "github.com/plaenen/eventstore/pkg/message"

// Command is handled by an aggregate and produces zero or more domain
// events, or an error.
type Command interface {
	message.Message
}

// DomainEvent is applied to an aggregate to evolve its state and is what
// the journal persists.
type DomainEvent interface {
	message.Message
}

// KeywordIndexer is an optional interface a DomainEvent can implement to
// claim inverted-index keywords for its aggregate. Events that don't
// implement it claim nothing.
type KeywordIndexer interface {
	IndexKeywords() []string
}

// IntegrationEvent is an event written to the outbox for downstream
// consumers. It carries its own payload encoding so the repository can
// serialize a heterogeneous mix of integration event types without a
// generic codec per aggregate.
type IntegrationEvent interface {
	message.Message
	MarshalPayload() ([]byte, error)
}

// IntegrationEventSource is an optional interface a DomainEvent can
// implement to project itself into one or more integration events written
// to the outbox. Events that don't implement it produce none.
type IntegrationEventSource interface {
	IntoIntegrationEvents() []IntegrationEvent
}

// Root is implemented by every aggregate. ID is the aggregate's typed
// identifier (an aggregateid.ID[T]); Command and DomainEvent are the
// aggregate's own command and event types.
type Root[ID any, C Command, E DomainEvent] interface {
	// AggregateID returns the aggregate's identity.
	AggregateID() ID

	// Type returns the aggregate type name stored in the journal's
	// aggregate_type column.
	Type() string

	// Handle validates a command against current state and returns the
	// events it produces, or an error. Handle must not mutate state;
	// mutation happens only through Apply.
	Handle(cmd C) ([]E, error)

	// Apply mutates state in response to an event, during both normal
	// command handling and history replay.
	Apply(event E)
}

// Factory constructs a zero-value aggregate for a given id. Go has no
// static methods reachable from a type parameter, so callers supply one.
type Factory[ID any, C Command, E DomainEvent, A Root[ID, C, E]] func(id ID) A
