// Package invertedindex defines the keyword-to-aggregate-ids lookup
// contract (C7) that domain events can populate via
// aggregate.KeywordIndexer, letting callers answer "which aggregates
// claimed this keyword" without scanning the journal.
package invertedindex

import "context"

// Store is implemented by a concrete backend (pkg/dynamostore) and by test
// doubles. Commit and Remove are independent of the journal transaction:
// losing a race on an index write never rolls back a journal commit.
type Store interface {
	// Commit records that aggregateID claims keyword.
	Commit(ctx context.Context, aggregateID, keyword string) error

	// Remove releases aggregateID's claim on keyword.
	Remove(ctx context.Context, aggregateID, keyword string) error

	// AggregateIDs returns every aggregate id that has claimed keyword, in
	// no particular order. An unclaimed keyword returns an empty slice,
	// never an error.
	AggregateIDs(ctx context.Context, keyword string) ([]string, error)
}
