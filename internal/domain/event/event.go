package event

import (
	"time"

	"github.com/google/uuid"
)

type Event interface {
	GetEventHeader() Header
	GetStreamName() string
}

type Header struct {
	ID        uuid.UUID `json:"event_id"`
	Timestamp time.Time `json:"event_timestamp"`
}

func (e Header) GetEventHeader() Header {
	return e
}

func NewEventHeader() Header {
	return Header{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
	}
}

// Recorder collects events raised by an aggregate until they are published.
type Recorder struct {
	events []Event
}

func (e *Recorder) AddEvent(event Event) {
	if e == nil {
		return
	}
	e.events = append(e.events, event)
}

func (e *Recorder) GetUncommittedEvents() []Event {
	if e == nil {
		return nil
	}
	return e.events
}

func (e *Recorder) MarkEventsAsCommitted() {
	if e == nil {
		return
	}
	e.events = nil
}
