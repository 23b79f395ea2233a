// Package processor adapts a typed event handler into the byte-erased
// streamrouter.Processor interface (C11): decode payload via a
// pkg/serde.Codec, wrap it in a pkg/message.Envelope, and hand it to a
// user-supplied adapter. One Processor type serves both projections and
// integrations; only the adapter differs. The decode-wrap-dispatch shape is
// grounded in tsuzuri/src/processor.rs's Processor<A, E, Codec>.
package processor

import (
	"context"
	"fmt"

	"github.com/plaenen/eventstore/pkg/message"
	"github.com/plaenen/eventstore/pkg/serde"
)

// Adapter receives a decoded event envelope. Implementations project it
// into a read model or dispatch it to an external system; the processor
// itself is agnostic to which.
type Adapter[E message.Message] interface {
	Handle(ctx context.Context, envelope message.Envelope[E]) error
}

// AdapterFunc adapts a plain function to an Adapter.
type AdapterFunc[E message.Message] func(ctx context.Context, envelope message.Envelope[E]) error

func (f AdapterFunc[E]) Handle(ctx context.Context, envelope message.Envelope[E]) error {
	return f(ctx, envelope)
}

// Processor decodes bytes via codec and hands the result to adapter,
// implementing streamrouter.Processor. eventType only labels a decode
// error: the codec already knows which concrete event type it produces, matching
// the original's per-registration processor (one Processor per prefix, not
// one dispatching internally on eventType).
type Processor[E message.Message] struct {
	Codec   serde.Codec[E]
	Adapter Adapter[E]
}

// New constructs a Processor.
func New[E message.Message](codec serde.Codec[E], adapter Adapter[E]) *Processor[E] {
	return &Processor[E]{Codec: codec, Adapter: adapter}
}

// ProcessBytes implements streamrouter.Processor.
func (p *Processor[E]) ProcessBytes(ctx context.Context, eventType string, payload []byte) error {
	event, err := p.Codec.Unmarshal(payload)
	if err != nil {
		return fmt.Errorf("processor: decode %s: %w", eventType, err)
	}
	return p.Adapter.Handle(ctx, message.New(event))
}
