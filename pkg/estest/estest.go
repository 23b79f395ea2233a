// Package estest implements a Given-When-Then test harness: a fluent DSL
// for driving an aggregate's Handle/Apply in isolation.
package estest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/eventstore/pkg/aggregate"
)

// Harness starts the Given phase for aggregate a.
type Harness[ID any, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[ID, C, E]] struct {
	t *testing.T
	a A
}

// With starts a test against a freshly constructed aggregate instance.
func With[ID any, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[ID, C, E]](t *testing.T, a A) *Harness[ID, C, E, A] {
	t.Helper()
	return &Harness[ID, C, E, A]{t: t, a: a}
}

// GivenNoPreviousEvents starts the When phase with a's state untouched.
func (h *Harness[ID, C, E, A]) GivenNoPreviousEvents() *WhenPhase[ID, C, E, A] {
	return &WhenPhase[ID, C, E, A]{t: h.t, a: h.a}
}

// Given applies events to a before the When phase, seeding prior history.
func (h *Harness[ID, C, E, A]) Given(events []E) *WhenPhase[ID, C, E, A] {
	h.t.Helper()
	for _, e := range events {
		h.a.Apply(e)
	}
	return &WhenPhase[ID, C, E, A]{t: h.t, a: h.a}
}

// GivenEvent applies a single event before the When phase.
func (h *Harness[ID, C, E, A]) GivenEvent(event E) *WhenPhase[ID, C, E, A] {
	return h.Given([]E{event})
}

// WhenPhase executes a command against the seeded aggregate.
type WhenPhase[ID any, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[ID, C, E]] struct {
	t *testing.T
	a A
}

// When invokes cmd and captures the result for assertion.
func (w *WhenPhase[ID, C, E, A]) When(cmd C) *ThenPhase[ID, C, E, A] {
	w.t.Helper()
	events, err := w.a.Handle(cmd)
	return &ThenPhase[ID, C, E, A]{t: w.t, a: w.a, events: events, err: err}
}

// ThenPhase asserts on the outcome of a When call.
type ThenPhase[ID any, C aggregate.Command, E aggregate.DomainEvent, A aggregate.Root[ID, C, E]] struct {
	t      *testing.T
	a      A
	events []E
	err    error
}

// ThenExpectEvents asserts Handle produced exactly expected, in order.
func (p *ThenPhase[ID, C, E, A]) ThenExpectEvents(expected []E) {
	p.t.Helper()
	require.NoError(p.t, p.err, "expected events but got error")
	assert.Equal(p.t, expected, p.events)
}

// ThenExpectEvent asserts Handle produced exactly one event, event.
func (p *ThenPhase[ID, C, E, A]) ThenExpectEvent(event E) {
	p.t.Helper()
	p.ThenExpectEvents([]E{event})
}

// ThenExpectNoEvents asserts Handle produced no events and no error.
func (p *ThenPhase[ID, C, E, A]) ThenExpectNoEvents() {
	p.t.Helper()
	require.NoError(p.t, p.err)
	assert.Empty(p.t, p.events)
}

// ThenExpectError asserts Handle returned an error, without inspecting it.
func (p *ThenPhase[ID, C, E, A]) ThenExpectError() error {
	p.t.Helper()
	require.Error(p.t, p.err, "expected error but got events: %v", p.events)
	return p.err
}

// ThenExpectErrorMatches asserts Handle returned an error satisfying predicate.
func (p *ThenPhase[ID, C, E, A]) ThenExpectErrorMatches(predicate func(error) bool) {
	p.t.Helper()
	require.Error(p.t, p.err, "expected error but got events: %v", p.events)
	assert.True(p.t, predicate(p.err), "error %v does not match expected predicate", p.err)
}

// ThenAggregateState applies any produced events to the aggregate, then
// hands it to assertion for custom checks on final state.
func (p *ThenPhase[ID, C, E, A]) ThenAggregateState(assertion func(A)) {
	p.t.Helper()
	if p.err == nil {
		for _, e := range p.events {
			p.a.Apply(e)
		}
	}
	assertion(p.a)
}

// ThenVerify hands the raw (events, err) result to verification for
// assertions the other Then* helpers don't cover.
func (p *ThenPhase[ID, C, E, A]) ThenVerify(verification func([]E, error)) {
	p.t.Helper()
	verification(p.events, p.err)
}
