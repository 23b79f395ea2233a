// Package middleware chains cross-cutting concerns (logging, panic
// recovery, tracing) around an aggregate's command handling step, the same
// wrap-a-handler-in-a-handler shape command-bus middleware typically uses,
// generalized over the aggregate's own command and event types instead of
// a fixed CommandEnvelope/Event pair.
package middleware

import (
	"context"

	"github.com/plaenen/eventstore/pkg/aggregate"
)

// Handler runs cmd and returns the events it produced, or an error. It is
// the shape of aggregate.VersionedAggregate.Handle, narrow enough that
// middleware can wrap it without knowing about versioning or commits.
type Handler[C aggregate.Command, E aggregate.DomainEvent] interface {
	Handle(ctx context.Context, cmd C) ([]E, error)
}

// HandlerFunc adapts a plain function to a Handler.
type HandlerFunc[C aggregate.Command, E aggregate.DomainEvent] func(ctx context.Context, cmd C) ([]E, error)

func (f HandlerFunc[C, E]) Handle(ctx context.Context, cmd C) ([]E, error) { return f(ctx, cmd) }

// Middleware wraps a Handler with a cross-cutting concern.
type Middleware[C aggregate.Command, E aggregate.DomainEvent] func(Handler[C, E]) Handler[C, E]

// Chain wraps h with mws in order, so mws[0] sees the command first and the
// innermost handler last, matching the order middleware is typically
// registered in (outermost-first).
func Chain[C aggregate.Command, E aggregate.DomainEvent](h Handler[C, E], mws ...Middleware[C, E]) Handler[C, E] {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
