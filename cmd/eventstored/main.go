// Command eventstored is a runnable demonstration of the event-sourcing
// runtime: it seeds an Order aggregate through its full lifecycle against
// an embedded SQLite backend, then, if NATS_URL is set, publishes the
// resulting outbox rows to JetStream and runs a runner.Runner-managed
// service that drains them back through the stream-record router.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plaenen/eventstore/examples/order"
	"github.com/plaenen/eventstore/pkg/eventstore"
	"github.com/plaenen/eventstore/pkg/message"
	"github.com/plaenen/eventstore/pkg/natsbus"
	"github.com/plaenen/eventstore/pkg/observability"
	"github.com/plaenen/eventstore/pkg/processor"
	"github.com/plaenen/eventstore/pkg/repository"
	"github.com/plaenen/eventstore/pkg/runner"
	"github.com/plaenen/eventstore/pkg/secretconfig"
	"github.com/plaenen/eventstore/pkg/sqlitestore"
	"github.com/plaenen/eventstore/pkg/streamrouter"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := loadConfig(ctx, logger)

	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:    "eventstored",
		ServiceVersion: "dev",
		Environment:    "local",
		Logger:         logger,
	})
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	store, err := sqlitestore.Open(ctx, sqlitestore.WithDSN(":memory:"), sqlitestore.WithSnapshotInterval(cfg.SnapshotInterval))
	if err != nil {
		logger.Error("open store failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	repo := repository.New[order.ID, order.Command, order.Event, *order.Order](
		"Order", store, store,
		order.EventCodec, order.SnapshotCodec,
		order.New, order.ParseID,
		repository.WithLogger[order.ID, order.Command, order.Event, *order.Order](logger),
		repository.WithConcurrentLimit[order.ID, order.Command, order.Event, *order.Order](cfg.ConcurrentLoadLimit),
	)

	id, outboxRows := seedOrder(ctx, logger, repo)

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		logger.Info("NATS_URL not set, skipping outbox drain service", "order_id", id.String())
		return
	}

	svc, err := newOutboxDrainService(natsURL, outboxRows, logger)
	if err != nil {
		logger.Error("outbox drain service setup failed", "error", err)
		os.Exit(1)
	}

	run := runner.New([]runner.Service{svc},
		runner.WithLogger(slogRunnerLogger{logger}),
		runner.WithShutdownTimeout(10*time.Second),
	)
	if err := run.Run(ctx); err != nil {
		logger.Error("runner exited with error", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the repository config from the secret keeper named by
// EVENTSTORE_CONFIG_URL, falling back to documented defaults when unset -
// the local/dev path this demo binary always needs, since standing up a
// KMS-backed secret just to run it would be its own yak shave.
func loadConfig(ctx context.Context, logger *slog.Logger) secretconfig.Config {
	keeperURL := os.Getenv("EVENTSTORE_CONFIG_URL")
	if keeperURL == "" {
		return secretconfig.DefaultConfig()
	}
	cfg, err := secretconfig.Load(ctx, keeperURL)
	if err != nil {
		logger.Warn("secretconfig load failed, falling back to defaults", "error", err)
		return secretconfig.DefaultConfig()
	}
	return cfg
}

// seedOrder walks one Order through Create -> Confirm -> Ship -> Deliver,
// logging each transition, and returns the id plus the outbox rows Ship
// produced. Payloads are serialized the same way repository.Commit writes
// them; each row's EventID is "<order id>-<event name>" rather than
// Commit's "evt-"-prefixed ULID.
func seedOrder(ctx context.Context, logger *slog.Logger, repo *repository.Repository[order.ID, order.Command, order.Event, *order.Order]) (order.ID, []eventstore.SerializedIntegrationEvent) {
	id := order.NewID()
	md := message.Metadata{CausationID: "eventstored-seed"}

	mustHandleAndCommit := func(cmd order.Command) []order.Event {
		va, err := repo.Load(ctx, id)
		if err != nil {
			logger.Error("load failed", "error", err)
			os.Exit(1)
		}
		events, err := va.Handle(cmd)
		if err != nil {
			logger.Error("command rejected", "command", cmd.Name(), "error", err)
			os.Exit(1)
		}
		if err := repo.Commit(ctx, va, events, md); err != nil {
			logger.Error("commit failed", "error", err)
			os.Exit(1)
		}
		logger.Info("committed", "event", cmd.Name(), "seq_nr", va.SeqNr, "status", va.Aggregate.Status.String())
		return events
	}

	mustHandleAndCommit(order.CreateOrder{UserID: "u-demo", UserEmail: "demo@example.com", Total: decimal.NewFromInt(2500)})
	mustHandleAndCommit(order.ConfirmOrder{})
	shipped := mustHandleAndCommit(order.ShipOrder{TrackingNumber: "TRACK-DEMO-1"})
	mustHandleAndCommit(order.DeliverOrder{})

	var rows []eventstore.SerializedIntegrationEvent
	for _, e := range shipped {
		sh, ok := e.(order.Shipped)
		if !ok {
			continue
		}
		for _, ie := range sh.IntoIntegrationEvents() {
			payload, err := ie.MarshalPayload()
			if err != nil {
				logger.Error("marshal integration event failed", "error", err)
				os.Exit(1)
			}
			rows = append(rows, eventstore.SerializedIntegrationEvent{
				EventID:       fmt.Sprintf("%s-%s", id.String(), ie.Name()),
				AggregateType: "Order",
				AggregateID:   id.String(),
				EventType:     ie.Name(),
				Payload:       payload,
			})
		}
	}
	return id, rows
}

// outboxDrainService is a runner.Service that publishes the demo's seeded
// outbox rows to JetStream once on Start, then, in the background, drains
// its own durable subscription back through a streamrouter.Router until
// Stop is called - the same publish/drain shape a real outbox-to-
// projection pipeline runs continuously, just against one seeded batch.
type outboxDrainService struct {
	natsURL   string
	rows      []eventstore.SerializedIntegrationEvent
	logger    *slog.Logger
	closeNATS func() error
	cancel    context.CancelFunc
	done      chan struct{}
}

func newOutboxDrainService(natsURL string, rows []eventstore.SerializedIntegrationEvent, logger *slog.Logger) (*outboxDrainService, error) {
	return &outboxDrainService{natsURL: natsURL, rows: rows, logger: logger}, nil
}

func (s *outboxDrainService) Name() string { return "outbox-drain" }

func (s *outboxDrainService) Start(ctx context.Context) error {
	publisher, closeNATS, err := natsbus.NewPublisher(s.natsURL, natsbus.DefaultConfig())
	if err != nil {
		return err
	}
	s.closeNATS = closeNATS

	if err := publisher.Publish(ctx, s.rows); err != nil {
		closeNATS()
		return err
	}

	router := streamrouter.New()
	router.Register("OrderShippedNotification", processor.New[order.ShippedNotification](
		shippedNotificationCodec{},
		processor.AdapterFunc[order.ShippedNotification](func(_ context.Context, env message.Envelope[order.ShippedNotification]) error {
			s.logger.Info("delivered outbox notification", "tracking_number", env.Message.TrackingNumber)
			return nil
		}),
	))

	nc, err := natsbus.Subscribe(publisher.JetStream(), "outbox.>", "eventstored-demo")
	if err != nil {
		closeNATS()
		return err
	}

	drainCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-drainCtx.Done():
				return
			case <-ticker.C:
				if _, err := nc.Drain(drainCtx, router, 10, 200*time.Millisecond); err != nil {
					s.logger.Error("drain failed", "error", err)
				}
			}
		}
	}()

	return nil
}

func (s *outboxDrainService) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	if s.closeNATS != nil {
		return s.closeNATS()
	}
	return nil
}

type shippedNotificationCodec struct{}

func (shippedNotificationCodec) Marshal(v order.ShippedNotification) ([]byte, error) {
	return v.MarshalPayload()
}

func (shippedNotificationCodec) Unmarshal(data []byte) (order.ShippedNotification, error) {
	var n struct {
		TrackingNumber string `json:"tracking_number"`
	}
	if err := json.Unmarshal(data, &n); err != nil {
		return order.ShippedNotification{}, err
	}
	return order.ShippedNotification{TrackingNumber: n.TrackingNumber}, nil
}

type slogRunnerLogger struct{ logger *slog.Logger }

func (l slogRunnerLogger) Info(msg string, kv ...interface{})  { l.logger.Info(msg, kv...) }
func (l slogRunnerLogger) Error(msg string, kv ...interface{}) { l.logger.Error(msg, kv...) }
func (l slogRunnerLogger) Debug(msg string, kv ...interface{}) { l.logger.Debug(msg, kv...) }
