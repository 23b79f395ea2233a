// Package streamrouter dispatches replayed change-data-capture records to
// typed per-event-type processors. A record's payload is opaque bytes
// until a registered Processor claims it by event type; the router itself
// never decodes a payload, it only routes them through a type-erased
// dispatch map.
package streamrouter

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/plaenen/eventstore/pkg/observability"
)

// Processor handles the raw bytes of one or more event types registered
// under a common prefix. Per-event-type decoding lives inside the
// implementation; the router only ever sees bytes.
type Processor interface {
	ProcessBytes(ctx context.Context, eventType string, payload []byte) error
}

// ProcessorFunc adapts a plain function to a Processor.
type ProcessorFunc func(ctx context.Context, eventType string, payload []byte) error

func (f ProcessorFunc) ProcessBytes(ctx context.Context, eventType string, payload []byte) error {
	return f(ctx, eventType, payload)
}

// Router dispatches by event-type string: an exact match always wins; failing
// that, the longest registered prefix that is a prefix of the event type
// wins, with lexicographically-smallest prefix breaking further ties. An
// unmatched event type is not an error: the caller is told nothing claimed it.
type Router struct {
	mu         sync.RWMutex
	processors map[string]Processor
	metrics    *observability.Metrics
}

// Option configures a Router.
type Option func(*Router)

// WithMetrics records a router.dispatches count, tagged by match kind
// ("exact", "prefix", or "none"), on every Dispatch call.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Router) { r.metrics = metrics }
}

// New returns an empty Router.
func New(opts ...Option) *Router {
	r := &Router{processors: make(map[string]Processor)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds a Processor under prefix. Re-registering the same prefix
// replaces the previous binding.
func (r *Router) Register(prefix string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[prefix] = p
}

// Dispatch routes one record's (event_type, payload) to the matching
// Processor, or does nothing if none matches. Matched returns false when no
// processor claimed the event type, letting callers log or count unmatched
// records without treating them as failures.
func (r *Router) Dispatch(ctx context.Context, eventType string, payload []byte) (matched bool, err error) {
	p, kind := r.resolve(eventType)
	if r.metrics != nil {
		r.metrics.RecordRouterDispatch(ctx, eventType, kind)
	}
	if kind == "none" {
		return false, nil
	}
	return true, p.ProcessBytes(ctx, eventType, payload)
}

// resolve picks the processor for eventType under the exact/longest-prefix
// rule described on Router, reporting which kind of match it used ("exact",
// "prefix", or "none").
func (r *Router) resolve(eventType string) (Processor, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.processors[eventType]; ok {
		return p, "exact"
	}

	var bestPrefix string
	var best Processor
	found := false
	for prefix, p := range r.processors {
		if !strings.HasPrefix(eventType, prefix) {
			continue
		}
		if !found || len(prefix) > len(bestPrefix) || (len(prefix) == len(bestPrefix) && prefix < bestPrefix) {
			bestPrefix, best, found = prefix, p, true
		}
	}
	if !found {
		return nil, "none"
	}
	return best, "prefix"
}

// RegisteredPrefixes returns every registered prefix in sorted order, mainly
// useful for diagnostics and tests asserting on registration state.
func (r *Router) RegisteredPrefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prefixes := make([]string, 0, len(r.processors))
	for prefix := range r.processors {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}
