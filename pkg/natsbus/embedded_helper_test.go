package natsbus_test

import (
	"fmt"
	"sync"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// embeddedServer wraps an in-process NATS server with JetStream enabled, so
// this package's tests exercise a real stream/consumer instead of a fake,
// adapted from the teacher's standalone embedded-NATS helper down to the
// one shape this package's tests need: start, connect, shut down.
type embeddedServer struct {
	server       *natsserver.Server
	shutdownOnce sync.Once
}

func startEmbeddedServer() (*embeddedServer, error) {
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
	}

	s, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("natsbus: start embedded nats: %w", err)
	}

	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("natsbus: embedded nats not ready within 5s")
	}

	return &embeddedServer{server: s}, nil
}

func (e *embeddedServer) url() string { return e.server.ClientURL() }

func (e *embeddedServer) connect() (*nats.Conn, error) {
	return nats.Connect(e.url())
}

func (e *embeddedServer) shutdown() {
	e.shutdownOnce.Do(func() {
		e.server.Shutdown()
		e.server.WaitForShutdown()
	})
}
