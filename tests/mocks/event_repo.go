package mocks

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.com/ucmsv2/idbroker/internal/domain/event"
)

// EventRepo records published events in memory.
type EventRepo struct {
	events     []event.Event
	eventsMu   sync.Mutex
	eventCh    chan event.Event
	publishErr error
}

func NewEventRepo() *EventRepo {
	return &EventRepo{
		events:  []event.Event{},
		eventCh: make(chan event.Event, 100),
	}
}

func (r *EventRepo) Publish(_ context.Context, events ...event.Event) error {
	r.eventsMu.Lock()
	err := r.publishErr
	r.eventsMu.Unlock()
	if err != nil {
		return err
	}

	r.appendEvents(events...)
	return nil
}

// FailPublish makes every following Publish call return err.
func (r *EventRepo) FailPublish(err error) *EventRepo {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	r.publishErr = err
	return r
}

func (r *EventRepo) EventChannel() <-chan event.Event {
	return r.eventCh
}

func (r *EventRepo) Events() []event.Event {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	eventsCopy := make([]event.Event, len(r.events))
	copy(eventsCopy, r.events)
	return eventsCopy
}

func (r *EventRepo) AssertEventNotExists(t *testing.T, e event.Event) *EventRepo {
	t.Helper()

	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	for _, ev := range r.events {
		if fmt.Sprintf("%T", ev) == fmt.Sprintf("%T", e) {
			t.Errorf("expected event %T to not exist, but it does", e)
			return r
		}
	}

	return r
}

func (r *EventRepo) AssertEventCount(t *testing.T, expectedCount int) *EventRepo {
	t.Helper()

	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	if len(r.events) != expectedCount {
		t.Errorf("expected %d events, but got %d", expectedCount, len(r.events))
	}

	return r
}

func (r *EventRepo) appendEvents(events ...event.Event) {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	for _, e := range events {
		r.events = append(r.events, e)
		select {
		case r.eventCh <- e:
		default:
		}
	}
}

// RequireEventExists returns the last recorded event of the same type as e.
func RequireEventExists[T event.Event](t *testing.T, r *EventRepo, e T) T {
	t.Helper()

	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	tnil := *new(T)

	for i := len(r.events) - 1; i >= 0; i-- {
		ev := r.events[i]
		if fmt.Sprintf("%T", ev) == fmt.Sprintf("%T", e) {
			header := ev.GetEventHeader()
			assert.NotEmpty(t, header, "event header should not be empty")
			return ev.(T)
		}
	}

	t.Fatalf("event %T not found in repository", e)

	return tnil
}
