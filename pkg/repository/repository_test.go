package repository_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/eventstore/pkg/aggregate"
	"github.com/plaenen/eventstore/pkg/aggregateid"
	"github.com/plaenen/eventstore/pkg/dynamostore"
	"github.com/plaenen/eventstore/pkg/dynamostore/memkv"
	"github.com/plaenen/eventstore/pkg/message"
	"github.com/plaenen/eventstore/pkg/repository"
	"github.com/plaenen/eventstore/pkg/serde"
)

// counterTag and the counter fixture below are a minimal aggregate used only
// to exercise the repository in isolation; examples/order exercises the full
// stack end to end against a richer domain.

type counterTag struct{}

func (counterTag) Prefix() string { return "counter" }

type counterID = aggregateid.ID[counterTag]

type incrementCmd struct{ By int }

func (incrementCmd) Name() string { return "Increment" }

type incrementedEvent struct {
	By       int
	Keyword  string
	Integration bool
}

func (incrementedEvent) Name() string { return "Incremented" }

func (e incrementedEvent) IndexKeywords() []string {
	if e.Keyword == "" {
		return nil
	}
	return []string{e.Keyword}
}

func (e incrementedEvent) IntoIntegrationEvents() []aggregate.IntegrationEvent {
	if !e.Integration {
		return nil
	}
	return []aggregate.IntegrationEvent{incrementedIntegration{By: e.By}}
}

type incrementedIntegration struct{ By int }

func (incrementedIntegration) Name() string { return "CounterIncremented" }
func (e incrementedIntegration) MarshalPayload() ([]byte, error) {
	return []byte{byte(e.By)}, nil
}

type counter struct {
	ID    counterID
	Value int
}

func (c *counter) AggregateID() counterID { return c.ID }
func (c *counter) Type() string           { return "Counter" }

func (c *counter) Handle(cmd incrementCmd) ([]incrementedEvent, error) {
	if cmd.By < 0 {
		return nil, errNegativeIncrement
	}
	return []incrementedEvent{{By: cmd.By}}, nil
}

func (c *counter) Apply(e incrementedEvent) {
	c.Value += e.By
}

var errNegativeIncrement = fmt.Errorf("increment: negative amount not allowed")

func counterFactory(id counterID) *counter {
	return &counter{ID: id}
}

func newTestRepo(t *testing.T) (*repository.Repository[counterID, incrementCmd, incrementedEvent, *counter], *dynamostore.Store) {
	t.Helper()
	store := dynamostore.New(memkv.New())
	repo := repository.New[counterID, incrementCmd, incrementedEvent, *counter](
		"Counter",
		store,
		store,
		serde.Json[incrementedEvent]{},
		serde.Json[*counter]{},
		counterFactory,
		aggregateid.Parse[counterTag],
	)
	return repo, store
}

func TestLoadFreshAggregateHasZeroVersionAndSeqNr(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	id := aggregateid.New[counterTag]()

	va, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), va.SeqNr)
	assert.Equal(t, 0, va.Aggregate.Value)
}

func TestHandleAndCommitPersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	id := aggregateid.New[counterTag]()

	va, err := repo.HandleAndCommit(ctx, id, incrementCmd{By: 3}, message.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, 3, va.Aggregate.Value)
	assert.Equal(t, int64(1), va.SeqNr)

	reloaded, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Aggregate.Value)
	assert.Equal(t, int64(1), reloaded.SeqNr)
}

func TestHandleAndCommitRejectsDomainError(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	id := aggregateid.New[counterTag]()

	_, err := repo.HandleAndCommit(ctx, id, incrementCmd{By: -1}, message.Metadata{})
	require.Error(t, err)
	var cmdErr *aggregate.CommandError
	require.ErrorAs(t, err, &cmdErr)
}

func TestCommitConflictOnStaleAggregate(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	id := aggregateid.New[counterTag]()

	stale, err := repo.Load(ctx, id)
	require.NoError(t, err)

	_, err = repo.HandleAndCommit(ctx, id, incrementCmd{By: 1}, message.Metadata{})
	require.NoError(t, err)

	events, err := stale.Handle(incrementCmd{By: 2})
	require.NoError(t, err)
	err = repo.Commit(ctx, stale, events, message.Metadata{})
	require.ErrorIs(t, err, aggregate.ErrConflict)
}

func TestRetryOnConflictSucceedsAfterReload(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	id := aggregateid.New[counterTag]()

	require.NoError(t, repo.Commit(ctx, mustLoad(t, ctx, repo, id), []incrementedEvent{{By: 1}}, message.Metadata{}))

	attempts := 0
	va, err := repo.RetryOnConflict(ctx, id, 3, message.Metadata{}, func(_ *aggregate.VersionedAggregate[counterID, incrementCmd, incrementedEvent, *counter]) (incrementCmd, error) {
		attempts++
		return incrementCmd{By: 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 3, va.Aggregate.Value)
}

func mustLoad(t *testing.T, ctx context.Context, repo *repository.Repository[counterID, incrementCmd, incrementedEvent, *counter], id counterID) *aggregate.VersionedAggregate[counterID, incrementCmd, incrementedEvent, *counter] {
	t.Helper()
	va, err := repo.Load(ctx, id)
	require.NoError(t, err)
	return va
}

func TestLoadAggregatesBoundedFanOut(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	ids := make([]counterID, 0, 5)
	for i := 0; i < 5; i++ {
		id := aggregateid.New[counterTag]()
		_, err := repo.HandleAndCommit(ctx, id, incrementCmd{By: i}, message.Metadata{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	loaded, err := repo.LoadAggregates(ctx, ids)
	require.NoError(t, err)
	require.Len(t, loaded, 5)
	for i, va := range loaded {
		assert.Equal(t, i, va.Aggregate.Value)
	}
}

func TestKeywordIndexClaimIsQueryableAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := dynamostore.New(memkv.New())
	repo := repository.New[counterID, incrementCmd, incrementedEvent, *counter](
		"Counter", store, store,
		indexingCodec{}, serde.Json[*counter]{},
		counterFactory, aggregateid.Parse[counterTag],
	)

	id := aggregateid.New[counterTag]()
	va, err := repo.Load(ctx, id)
	require.NoError(t, err)

	err = repo.Commit(ctx, va, []incrementedEvent{{By: 1, Keyword: "priority"}}, message.Metadata{})
	require.NoError(t, err)

	ids, err := store.AggregateIDs(ctx, "priority")
	require.NoError(t, err)
	assert.Equal(t, []string{id.String()}, ids)
}

// indexingCodec is serde.Json, named separately only so the keyword-index
// test above reads clearly about which codec is in play.
type indexingCodec = serde.Json[incrementedEvent]
