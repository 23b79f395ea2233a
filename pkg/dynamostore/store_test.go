package dynamostore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/eventstore/pkg/dynamostore"
	"github.com/plaenen/eventstore/pkg/dynamostore/memkv"
	"github.com/plaenen/eventstore/pkg/eventstore"
)

func newStore() *dynamostore.Store {
	return dynamostore.New(memkv.New())
}

func TestPersistAndLoadEvents(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	events := []eventstore.SerializedDomainEvent{
		{EventID: "evt-1", AggregateType: "Order", AggregateID: "order-1", EventType: "Created", SeqNr: 1, Payload: []byte("one")},
		{EventID: "evt-2", AggregateType: "Order", AggregateID: "order-1", EventType: "Confirmed", SeqNr: 2, Payload: []byte("two")},
	}

	require.NoError(t, store.Persist(ctx, events, nil, nil))

	loaded, err := store.LoadEvents(ctx, "Order", "order-1", 1)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, int64(1), loaded[0].SeqNr)
	assert.Equal(t, int64(2), loaded[1].SeqNr)
	assert.Equal(t, []byte("one"), loaded[0].Payload)
}

func TestLoadEventsFromMidStream(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	events := []eventstore.SerializedDomainEvent{
		{EventID: "evt-1", AggregateType: "Order", AggregateID: "order-1", EventType: "Created", SeqNr: 1, Payload: []byte("one")},
		{EventID: "evt-2", AggregateType: "Order", AggregateID: "order-1", EventType: "Confirmed", SeqNr: 2, Payload: []byte("two")},
		{EventID: "evt-3", AggregateType: "Order", AggregateID: "order-1", EventType: "Shipped", SeqNr: 3, Payload: []byte("three")},
	}
	require.NoError(t, store.Persist(ctx, events, nil, nil))

	loaded, err := store.LoadEvents(ctx, "Order", "order-1", 2)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, int64(2), loaded[0].SeqNr)
	assert.Equal(t, int64(3), loaded[1].SeqNr)
}

func TestPersistDuplicateSeqNrIsOptimisticLock(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	event := eventstore.SerializedDomainEvent{EventID: "evt-1", AggregateType: "Order", AggregateID: "order-1", EventType: "Created", SeqNr: 1}
	require.NoError(t, store.Persist(ctx, []eventstore.SerializedDomainEvent{event}, nil, nil))

	duplicate := eventstore.SerializedDomainEvent{EventID: "evt-1-retry", AggregateType: "Order", AggregateID: "order-1", EventType: "Created", SeqNr: 1}
	err := store.Persist(ctx, []eventstore.SerializedDomainEvent{duplicate}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, eventstore.ErrOptimisticLock))
}

func TestPersistWithOutboxAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	events := []eventstore.SerializedDomainEvent{
		{EventID: "evt-1", AggregateType: "Order", AggregateID: "order-1", EventType: "Created", SeqNr: 1},
	}
	integration := []eventstore.SerializedIntegrationEvent{
		{EventID: "ievt-1", AggregateType: "Order", AggregateID: "order-1", EventType: "OrderCreated", Payload: []byte("payload")},
	}
	snapshot := &eventstore.PersistedSnapshot{AggregateType: "Order", AggregateID: "order-1", Aggregate: []byte("state-v1"), SeqNr: 1, Version: 1}

	require.NoError(t, store.Persist(ctx, events, integration, snapshot))

	got, found, err := store.GetSnapshot(ctx, "Order", "order-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("state-v1"), got.Aggregate)
	assert.Equal(t, int64(1), got.Version)
}

func TestSnapshotCASReseatAfterLoss(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	first := &eventstore.PersistedSnapshot{AggregateType: "Order", AggregateID: "order-1", Aggregate: []byte("state-v1"), SeqNr: 1, Version: 1}
	require.NoError(t, store.Persist(ctx, nil, nil, first))

	stale := &eventstore.PersistedSnapshot{AggregateType: "Order", AggregateID: "order-1", Aggregate: []byte("state-v2-wrong"), SeqNr: 2, Version: 1}
	err := store.Persist(ctx, nil, nil, stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, eventstore.ErrOptimisticLock))

	correct := &eventstore.PersistedSnapshot{AggregateType: "Order", AggregateID: "order-1", Aggregate: []byte("state-v2"), SeqNr: 2, Version: 2}
	require.NoError(t, store.Persist(ctx, nil, nil, correct))

	got, found, err := store.GetSnapshot(ctx, "Order", "order-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("state-v2"), got.Aggregate)
}

func TestInvertedIndexCommitAndRemove(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	require.NoError(t, store.Commit(ctx, "order-1", "priority"))
	require.NoError(t, store.Commit(ctx, "order-2", "priority"))

	ids, err := store.AggregateIDs(ctx, "priority")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"order-1", "order-2"}, ids)

	require.NoError(t, store.Remove(ctx, "order-1", "priority"))
	ids, err = store.AggregateIDs(ctx, "priority")
	require.NoError(t, err)
	assert.Equal(t, []string{"order-2"}, ids)
}

func TestAggregateIDsUnclaimedKeywordIsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	ids, err := store.AggregateIDs(ctx, "never-claimed")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
