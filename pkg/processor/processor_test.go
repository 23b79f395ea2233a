package processor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/eventstore/pkg/message"
	"github.com/plaenen/eventstore/pkg/processor"
	"github.com/plaenen/eventstore/pkg/serde"
	"github.com/plaenen/eventstore/pkg/streamrouter"
)

type bodyChanged struct {
	NewBody string `json:"new_body"`
}

func (bodyChanged) Name() string { return "ProjectDomainEventBodyChanged" }

func TestProcessorDecodesAndDispatches(t *testing.T) {
	var got message.Envelope[bodyChanged]
	adapter := processor.AdapterFunc[bodyChanged](func(_ context.Context, env message.Envelope[bodyChanged]) error {
		got = env
		return nil
	})
	p := processor.New[bodyChanged](serde.Json[bodyChanged]{}, adapter)

	payload, err := serde.Json[bodyChanged]{}.Marshal(bodyChanged{NewBody: "hello"})
	require.NoError(t, err)

	require.NoError(t, p.ProcessBytes(context.Background(), "ProjectDomainEventBodyChanged", payload))
	assert.Equal(t, "hello", got.Message.NewBody)
}

func TestProcessorDecodeErrorIsWrapped(t *testing.T) {
	adapter := processor.AdapterFunc[bodyChanged](func(context.Context, message.Envelope[bodyChanged]) error {
		t.Fatal("adapter should not be called on decode failure")
		return nil
	})
	p := processor.New[bodyChanged](serde.Json[bodyChanged]{}, adapter)

	err := p.ProcessBytes(context.Background(), "ProjectDomainEventBodyChanged", []byte("not json"))
	require.Error(t, err)
}

func TestProcessorWiredThroughRouter(t *testing.T) {
	r := streamrouter.New()
	var calls int
	adapter := processor.AdapterFunc[bodyChanged](func(context.Context, message.Envelope[bodyChanged]) error {
		calls++
		return nil
	})
	r.Register("ProjectDomainEvent", processor.New[bodyChanged](serde.Json[bodyChanged]{}, adapter))

	payload, err := serde.Json[bodyChanged]{}.Marshal(bodyChanged{NewBody: "x"})
	require.NoError(t, err)

	matched, err := r.Dispatch(context.Background(), "ProjectDomainEventBodyChanged", payload)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, 1, calls)

	matched, err = r.Dispatch(context.Background(), "UnrelatedEvent", payload)
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Equal(t, 1, calls)
}
