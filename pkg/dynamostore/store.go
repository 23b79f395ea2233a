// Package dynamostore is a concrete sharded wide-column backend: journal
// rows keyed by a shard-hashed partition key and an aggregate/sequence
// sort key, an outbox row written in the same transaction as the journal
// rows it was derived from, and a single CAS-guarded snapshot row per
// aggregate.
package dynamostore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/plaenen/eventstore/pkg/eventstore"
)

const maxTransactionItems = 25

// Store implements eventstore.Store and invertedindex.Store against a
// DynamoDB-shaped Client.
type Store struct {
	client Client
	Config
}

// New constructs a Store. client is usually a *dynamodb.Client; tests pass
// pkg/dynamostore/memkv's in-memory fake instead.
func New(client Client, opts ...Option) *Store {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{client: client, Config: cfg}
}

// SnapshotInterval implements eventstore.Store.
func (s *Store) SnapshotInterval() int64 { return s.snapshotInterval }

func journalItem(tables TableNames, shardCount int, e eventstore.SerializedDomainEvent) map[string]types.AttributeValue {
	metadata, _ := json.Marshal(e.Metadata)
	pkey := resolvePartitionKey(e.AggregateType, e.AggregateID, shardCount)
	skey := resolveSortKey(e.AggregateType, e.AggregateID, e.SeqNr)
	return map[string]types.AttributeValue{
		"pkey":           &types.AttributeValueMemberS{Value: pkey},
		"skey":           &types.AttributeValueMemberS{Value: skey},
		"event_id":       &types.AttributeValueMemberS{Value: e.EventID},
		"aid":            &types.AttributeValueMemberS{Value: e.AggregateID},
		"aggregate_type": &types.AttributeValueMemberS{Value: e.AggregateType},
		"event_type":     &types.AttributeValueMemberS{Value: e.EventType},
		"seq_nr":         &types.AttributeValueMemberN{Value: strconv.FormatInt(e.SeqNr, 10)},
		"payload":        &types.AttributeValueMemberB{Value: e.Payload},
		"metadata":       &types.AttributeValueMemberB{Value: metadata},
	}
}

func outboxItem(e eventstore.SerializedIntegrationEvent) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pkey":           &types.AttributeValueMemberS{Value: e.AggregateType},
		"skey":           &types.AttributeValueMemberS{Value: e.EventID},
		"aid":            &types.AttributeValueMemberS{Value: e.AggregateID},
		"aggregate_type": &types.AttributeValueMemberS{Value: e.AggregateType},
		"event_type":     &types.AttributeValueMemberS{Value: e.EventType},
		"payload":        &types.AttributeValueMemberB{Value: e.Payload},
		"status":         &types.AttributeValueMemberS{Value: "PENDING"},
		"attempts":       &types.AttributeValueMemberN{Value: "0"},
	}
}

func snapshotItem(snapshot eventstore.PersistedSnapshot) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pkey":           &types.AttributeValueMemberS{Value: snapshotPartitionKey(snapshot.AggregateType, snapshot.AggregateID)},
		"skey":           &types.AttributeValueMemberS{Value: "snapshot"},
		"aid":            &types.AttributeValueMemberS{Value: snapshot.AggregateID},
		"aggregate_type": &types.AttributeValueMemberS{Value: snapshot.AggregateType},
		"aggregate":      &types.AttributeValueMemberB{Value: snapshot.Aggregate},
		"seq_nr":         &types.AttributeValueMemberN{Value: strconv.FormatInt(snapshot.SeqNr, 10)},
		"version":        &types.AttributeValueMemberN{Value: strconv.FormatInt(snapshot.Version, 10)},
	}
}

// buildTransactItems assembles one TransactWriteItem per journal row
// (condition-guarded so a retried append can never silently duplicate a
// sequence number), one per outbox row (plain inserts), and, when snapshot
// is non-nil, one CAS-guarded snapshot upsert.
func (s *Store) buildTransactItems(domainEvents []eventstore.SerializedDomainEvent, integrationEvents []eventstore.SerializedIntegrationEvent, snapshot *eventstore.PersistedSnapshot) ([]types.TransactWriteItem, error) {
	items := make([]types.TransactWriteItem, 0, len(domainEvents)+len(integrationEvents)+1)

	for _, e := range domainEvents {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           &s.tables.Journal,
				Item:                journalItem(s.tables, s.shardCount, e),
				ConditionExpression: strPtr("attribute_not_exists(#seq)"),
				ExpressionAttributeNames: map[string]string{
					"#seq": "seq_nr",
				},
			},
		})
	}

	for _, e := range integrationEvents {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: &s.tables.Outbox,
				Item:      outboxItem(e),
			},
		})
	}

	if snapshot != nil {
		expected := snapshot.Version - 1
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           &s.tables.Snapshot,
				Item:                snapshotItem(*snapshot),
				ConditionExpression: strPtr("attribute_not_exists(version) OR version = :expected"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
				},
			},
		})
	}

	if len(items) > maxTransactionItems {
		return nil, eventstore.Unknown(fmt.Errorf("dynamostore: transaction has %d items, limit is %d", len(items), maxTransactionItems))
	}
	return items, nil
}

// Persist implements eventstore.Store.
func (s *Store) Persist(ctx context.Context, domainEvents []eventstore.SerializedDomainEvent, integrationEvents []eventstore.SerializedIntegrationEvent, snapshot *eventstore.PersistedSnapshot) error {
	if len(domainEvents) == 0 && len(integrationEvents) == 0 && snapshot == nil {
		return nil
	}

	items, err := s.buildTransactItems(domainEvents, integrationEvents, snapshot)
	if err != nil {
		return err
	}

	input := dynamoTransactInput(items)
	_, err = s.client.TransactWriteItems(ctx, &input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return &eventstoreOptimisticLockError{cause: err}
		}
		return eventstore.Connection(err)
	}
	return nil
}

// LoadEvents implements eventstore.Store by querying the journal's
// aid-index (partition key aid, sort key seq_nr).
func (s *Store) LoadEvents(ctx context.Context, aggregateType, aggregateID string, fromSeqNr int64) ([]eventstore.SerializedDomainEvent, error) {
	query := queryInput(s.tables.Journal, "aid", aggregateID, "seq_nr", fromSeqNr, false)
	query.IndexName = &s.tables.JournalAidIndex

	out, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, eventstore.Connection(err)
	}

	events := make([]eventstore.SerializedDomainEvent, 0, len(out.Items))
	for _, item := range out.Items {
		event, err := decodeJournalItem(item)
		if err != nil {
			return nil, eventstore.Deserialization(err)
		}
		events = append(events, event)
	}
	return events, nil
}

// GetSnapshot implements eventstore.Store.
func (s *Store) GetSnapshot(ctx context.Context, aggregateType, aggregateID string) (eventstore.PersistedSnapshot, bool, error) {
	query := queryInput(s.tables.Snapshot, "pkey", snapshotPartitionKey(aggregateType, aggregateID), "", 0, true)

	out, err := s.client.Query(ctx, query)
	if err != nil {
		return eventstore.PersistedSnapshot{}, false, eventstore.Connection(err)
	}
	if len(out.Items) == 0 {
		return eventstore.PersistedSnapshot{}, false, nil
	}

	snapshot, err := decodeSnapshotItem(out.Items[0])
	if err != nil {
		return eventstore.PersistedSnapshot{}, false, eventstore.Deserialization(err)
	}
	return snapshot, true, nil
}

// Commit implements invertedindex.Store. A duplicate (aggregateID, keyword)
// claim is an OptimisticLockError, not a silent no-op: §4.7 calls this
// "loudly idempotent" — re-claiming an existing pair is a bug in the caller
// (e.g. a retried commit that forgot it already claimed this keyword), not
// a condition to paper over.
func (s *Store) Commit(ctx context.Context, aggregateID, keyword string) error {
	input := putItemInput(s.tables.InvertedIndex, map[string]types.AttributeValue{
		"pkey": &types.AttributeValueMemberS{Value: invertedIndexPartitionKey(keyword)},
		"skey": &types.AttributeValueMemberS{Value: aggregateID},
	})
	_, err := s.client.PutItem(ctx, &input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return &eventstoreOptimisticLockError{cause: err}
		}
		return eventstore.Connection(err)
	}
	return nil
}

// Remove implements invertedindex.Store.
func (s *Store) Remove(ctx context.Context, aggregateID, keyword string) error {
	input := deleteItemInput(s.tables.InvertedIndex, invertedIndexPartitionKey(keyword), aggregateID)
	_, err := s.client.DeleteItem(ctx, &input)
	if err != nil {
		return eventstore.Connection(err)
	}
	return nil
}

// invertedIndexRow is the inverted index's item shape for decoding via
// attributevalue.UnmarshalListOfMaps, the SDK's idiomatic Go-struct-tag
// counterpart to the explicit per-attribute construction putItemInput and
// the journal/snapshot decoders above use.
type invertedIndexRow struct {
	AggregateID string `dynamodbav:"skey"`
}

// AggregateIDs implements invertedindex.Store.
func (s *Store) AggregateIDs(ctx context.Context, keyword string) ([]string, error) {
	query := queryInput(s.tables.InvertedIndex, "pkey", invertedIndexPartitionKey(keyword), "", 0, false)
	out, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, eventstore.Connection(err)
	}

	var rows []invertedIndexRow
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &rows); err != nil {
		return nil, fmt.Errorf("dynamostore: decode inverted index rows: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.AggregateID)
	}
	return ids, nil
}

func strPtr(s string) *string { return &s }
