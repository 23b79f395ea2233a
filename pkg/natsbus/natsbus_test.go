package natsbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plaenen/eventstore/pkg/eventstore"
	"github.com/plaenen/eventstore/pkg/natsbus"
	"github.com/plaenen/eventstore/pkg/streamrouter"
)

func TestPublisherSubscriberDrainRoundTrip(t *testing.T) {
	srv, err := startEmbeddedServer()
	require.NoError(t, err)
	defer srv.shutdown()

	cfg := natsbus.DefaultConfig()
	cfg.StreamSubjects = []string{"outbox.Order.>"}

	pub, closeConn, err := natsbus.NewPublisher(srv.url(), cfg)
	require.NoError(t, err)
	defer closeConn()

	rows := []eventstore.SerializedIntegrationEvent{
		{
			EventID:       "evt-1",
			AggregateType: "Order",
			AggregateID:   "order-1",
			EventType:     "OrderShippedNotification",
			Payload:       []byte(`{"tracking_number":"TRACK-1"}`),
		},
	}
	require.NoError(t, pub.Publish(context.Background(), rows))

	sub, err := natsbus.Subscribe(pub.JetStream(), "outbox.Order.OrderShippedNotification", "test-consumer")
	require.NoError(t, err)

	var dispatched []byte
	router := streamrouter.New()
	router.Register("OrderShippedNotification", streamrouter.ProcessorFunc(func(_ context.Context, _ string, payload []byte) error {
		dispatched = payload
		return nil
	}))

	processed, err := sub.Drain(context.Background(), router, 10, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, rows[0].Payload, dispatched)
}

func TestPublisherPublishIsIdempotentByEventID(t *testing.T) {
	srv, err := startEmbeddedServer()
	require.NoError(t, err)
	defer srv.shutdown()

	cfg := natsbus.DefaultConfig()
	cfg.StreamSubjects = []string{"outbox.Order.>"}

	pub, closeConn, err := natsbus.NewPublisher(srv.url(), cfg)
	require.NoError(t, err)
	defer closeConn()

	row := eventstore.SerializedIntegrationEvent{
		EventID:       "evt-dup",
		AggregateType: "Order",
		AggregateID:   "order-1",
		EventType:     "OrderShippedNotification",
		Payload:       []byte(`{"tracking_number":"TRACK-1"}`),
	}

	require.NoError(t, pub.Publish(context.Background(), []eventstore.SerializedIntegrationEvent{row}))
	require.NoError(t, pub.Publish(context.Background(), []eventstore.SerializedIntegrationEvent{row}))

	sub, err := natsbus.Subscribe(pub.JetStream(), "outbox.Order.OrderShippedNotification", "dedup-consumer")
	require.NoError(t, err)

	router := streamrouter.New()
	var deliveries int
	router.Register("OrderShippedNotification", streamrouter.ProcessorFunc(func(context.Context, string, []byte) error {
		deliveries++
		return nil
	}))

	processed, err := sub.Drain(context.Background(), router, 10, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, 1, deliveries)
}

func TestPublisherNoRowsIsNoop(t *testing.T) {
	srv, err := startEmbeddedServer()
	require.NoError(t, err)
	defer srv.shutdown()

	pub, closeConn, err := natsbus.NewPublisher(srv.url(), natsbus.DefaultConfig())
	require.NoError(t, err)
	defer closeConn()

	require.NoError(t, pub.Publish(context.Background(), nil))
}
