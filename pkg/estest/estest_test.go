package estest_test

import (
	"errors"
	"testing"

	"github.com/plaenen/eventstore/pkg/aggregateid"
	"github.com/plaenen/eventstore/pkg/estest"
)

type widgetTag struct{}

func (widgetTag) Prefix() string { return "widget" }

type widgetID = aggregateid.ID[widgetTag]

type widgetCommand struct {
	Create    bool
	NewValue  int
	HasValue  bool
	Deactivate bool
}

func (widgetCommand) Name() string { return "WidgetCommand" }

type widgetEvent struct {
	Created     bool
	ID          widgetID
	ValueSet    bool
	Value       int
	Deactivated bool
}

func (widgetEvent) Name() string { return "WidgetEvent" }

var errAlreadyCreated = errors.New("already created")
var errNotActive = errors.New("not active")
var errInvalidValue = errors.New("invalid value")

type widget struct {
	ID       widgetID
	Value    int
	IsActive bool
}

func (w *widget) AggregateID() widgetID { return w.ID }
func (w *widget) Type() string          { return "Widget" }

func (w *widget) Handle(cmd widgetCommand) ([]widgetEvent, error) {
	switch {
	case cmd.Create:
		if w.IsActive {
			return nil, errAlreadyCreated
		}
		return []widgetEvent{{Created: true, ID: w.ID}}, nil
	case cmd.HasValue:
		if !w.IsActive {
			return nil, errNotActive
		}
		if cmd.NewValue < 0 {
			return nil, errInvalidValue
		}
		return []widgetEvent{{ValueSet: true, Value: cmd.NewValue}}, nil
	case cmd.Deactivate:
		if !w.IsActive {
			return nil, errNotActive
		}
		return []widgetEvent{{Deactivated: true}}, nil
	}
	return nil, nil
}

func (w *widget) Apply(e widgetEvent) {
	switch {
	case e.Created:
		w.ID = e.ID
		w.IsActive = true
	case e.ValueSet:
		w.Value = e.Value
	case e.Deactivated:
		w.IsActive = false
	}
}

func TestGivenNoPreviousEventsThenExpectEvent(t *testing.T) {
	id := aggregateid.New[widgetTag]()
	a := &widget{ID: id}

	estest.With[widgetID, widgetCommand, widgetEvent, *widget](t, a).
		GivenNoPreviousEvents().
		When(widgetCommand{Create: true}).
		ThenExpectEvent(widgetEvent{Created: true, ID: id})
}

func TestGivenWithEventsThenExpectEvent(t *testing.T) {
	id := aggregateid.New[widgetTag]()
	a := &widget{ID: id}

	estest.With[widgetID, widgetCommand, widgetEvent, *widget](t, a).
		GivenEvent(widgetEvent{Created: true, ID: id}).
		When(widgetCommand{HasValue: true, NewValue: 42}).
		ThenExpectEvent(widgetEvent{ValueSet: true, Value: 42})
}

func TestThenExpectErrorMatches(t *testing.T) {
	id := aggregateid.New[widgetTag]()
	a := &widget{ID: id}

	estest.With[widgetID, widgetCommand, widgetEvent, *widget](t, a).
		GivenNoPreviousEvents().
		When(widgetCommand{HasValue: true, NewValue: 10}).
		ThenExpectErrorMatches(func(err error) bool { return errors.Is(err, errNotActive) })
}

func TestThenAggregateState(t *testing.T) {
	id := aggregateid.New[widgetTag]()
	a := &widget{ID: id}

	estest.With[widgetID, widgetCommand, widgetEvent, *widget](t, a).
		GivenEvent(widgetEvent{Created: true, ID: id}).
		When(widgetCommand{HasValue: true, NewValue: 99}).
		ThenAggregateState(func(w *widget) {
			if w.Value != 99 || !w.IsActive {
				t.Fatalf("unexpected final state: %+v", w)
			}
		})
}

func TestDeactivateAlreadyInactive(t *testing.T) {
	id := aggregateid.New[widgetTag]()
	a := &widget{ID: id}

	estest.With[widgetID, widgetCommand, widgetEvent, *widget](t, a).
		Given([]widgetEvent{{Created: true, ID: id}, {Deactivated: true}}).
		When(widgetCommand{Deactivate: true}).
		ThenExpectErrorMatches(func(err error) bool { return errors.Is(err, errNotActive) })
}

func TestThenExpectNoEvents(t *testing.T) {
	id := aggregateid.New[widgetTag]()
	a := &widget{ID: id}

	estest.With[widgetID, widgetCommand, widgetEvent, *widget](t, a).
		GivenNoPreviousEvents().
		When(widgetCommand{}).
		ThenExpectNoEvents()
}
