package streamrouter_test

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/eventstore/pkg/streamrouter"
)

func TestDispatchExactMatchWins(t *testing.T) {
	r := streamrouter.New()
	var gotExact, gotPrefix []byte
	r.Register("ProjectDomainEvent", streamrouter.ProcessorFunc(func(_ context.Context, _ string, payload []byte) error {
		gotExact = payload
		return nil
	}))
	r.Register("Project", streamrouter.ProcessorFunc(func(_ context.Context, _ string, payload []byte) error {
		gotPrefix = payload
		return nil
	}))

	matched, err := r.Dispatch(context.Background(), "ProjectDomainEvent", []byte("payload"))
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, []byte("payload"), gotExact)
	assert.Nil(t, gotPrefix)
}

func TestDispatchPrefixMatch(t *testing.T) {
	r := streamrouter.New()
	var got string
	r.Register("ProjectDomainEvent", streamrouter.ProcessorFunc(func(_ context.Context, eventType string, _ []byte) error {
		got = eventType
		return nil
	}))

	matched, err := r.Dispatch(context.Background(), "ProjectDomainEventBodyChanged", []byte("x"))
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, "ProjectDomainEventBodyChanged", got)
}

func TestDispatchLongestPrefixWins(t *testing.T) {
	r := streamrouter.New()
	var winner string
	r.Register("Order", streamrouter.ProcessorFunc(func(_ context.Context, _ string, _ []byte) error {
		winner = "Order"
		return nil
	}))
	r.Register("OrderShipped", streamrouter.ProcessorFunc(func(_ context.Context, _ string, _ []byte) error {
		winner = "OrderShipped"
		return nil
	}))

	_, err := r.Dispatch(context.Background(), "OrderShippedToWarehouse", nil)
	require.NoError(t, err)
	assert.Equal(t, "OrderShipped", winner)
}

func TestDispatchNoMatchIsNotAnError(t *testing.T) {
	r := streamrouter.New()
	r.Register("Order", streamrouter.ProcessorFunc(func(context.Context, string, []byte) error { return nil }))

	matched, err := r.Dispatch(context.Background(), "UnrelatedEvent", nil)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestParseRecordBase64Payload(t *testing.T) {
	raw := []byte(`{"field":"value"}`)
	encoded := base64.StdEncoding.EncodeToString(raw)
	data := []byte(`{"dynamodb":{"NewImage":{"event_type":{"S":"OrderCreated"},"payload":{"B":"` + encoded + `"}}}}`)

	eventType, payload, err := streamrouter.ParseRecord(data)
	require.NoError(t, err)
	assert.Equal(t, "OrderCreated", eventType)
	assert.Equal(t, raw, payload)
}

func TestParseRecordNonBase64UTF8Payload(t *testing.T) {
	data := []byte(`{"dynamodb":{"NewImage":{"event_type":{"S":"OrderCreated"},"payload":{"B":"not-base64!!"}}}}`)

	eventType, payload, err := streamrouter.ParseRecord(data)
	require.NoError(t, err)
	assert.Equal(t, "OrderCreated", eventType)
	assert.Equal(t, []byte("not-base64!!"), payload)
}

func TestDispatchRecordEndToEnd(t *testing.T) {
	r := streamrouter.New()
	var gotPayload []byte
	r.Register("ProjectDomainEvent", streamrouter.ProcessorFunc(func(_ context.Context, _ string, payload []byte) error {
		gotPayload = payload
		return nil
	}))

	raw := []byte("hello")
	encoded := base64.StdEncoding.EncodeToString(raw)
	data := []byte(`{"dynamodb":{"NewImage":{"event_type":{"S":"ProjectDomainEventBodyChanged"},"payload":{"B":"` + encoded + `"}}}}`)

	matched, err := r.DispatchRecord(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, raw, gotPayload)

	unrelated := []byte(`{"dynamodb":{"NewImage":{"event_type":{"S":"UnrelatedEvent"},"payload":{"B":""}}}}`)
	matched, err = r.DispatchRecord(context.Background(), unrelated)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestRegisteredPrefixesSorted(t *testing.T) {
	r := streamrouter.New()
	r.Register("Zeta", streamrouter.ProcessorFunc(func(context.Context, string, []byte) error { return nil }))
	r.Register("Alpha", streamrouter.ProcessorFunc(func(context.Context, string, []byte) error { return nil }))

	assert.Equal(t, []string{"Alpha", "Zeta"}, r.RegisteredPrefixes())
}
