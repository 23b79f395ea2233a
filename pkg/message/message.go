// Package message provides the envelope used to carry every command, domain
// event, and integration event through the runtime alongside free-form
// metadata (causation, correlation, principal) without each message type
// needing its own metadata fields.
package message

// Message is implemented by every command and event type. Name reports a
// stable, human-readable type name used for logging, routing, and the
// journal's event_type column.
type Message interface {
	Name() string
}

// Metadata carries cross-cutting concerns that travel with a message but
// are not part of its business payload.
type Metadata struct {
	CausationID   string
	CorrelationID string
	PrincipalID   string
	Custom        map[string]string
}

// WithCustom returns a copy of m with key set in Custom.
func (m Metadata) WithCustom(key, value string) Metadata {
	out := m
	out.Custom = make(map[string]string, len(m.Custom)+1)
	for k, v := range m.Custom {
		out.Custom[k] = v
	}
	out.Custom[key] = value
	return out
}

// Envelope pairs a message with its metadata. Equality between two
// envelopes compares only the wrapped message: metadata is transport
// bookkeeping, not part of a message's identity.
type Envelope[T Message] struct {
	Message  T
	Metadata Metadata
}

// New wraps a message with empty metadata.
func New[T Message](msg T) Envelope[T] {
	return Envelope[T]{Message: msg}
}

// WithMetadata returns a copy of the envelope carrying the given metadata.
func (e Envelope[T]) WithMetadata(md Metadata) Envelope[T] {
	e.Metadata = md
	return e
}

// Equal reports whether two envelopes wrap an equal message, ignoring
// metadata, mirroring the original's PartialEq implementation for Envelope.
func Equal[T Message](a, b Envelope[T], eq func(x, y T) bool) bool {
	return eq(a.Message, b.Message)
}
