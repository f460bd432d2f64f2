package loginsession

import "gitlab.com/ucmsv2/idbroker/internal/domain/event"

const EventStreamName = "events_login_session"

type FailureReason string

const (
	ReasonNotFound        FailureReason = "not_found"
	ReasonIncorrectCode   FailureReason = "incorrect_code"
	ReasonTooManyAttempts FailureReason = "too_many_attempts"
)

// LoginCodeIssued never carries the code itself.
type LoginCodeIssued struct {
	event.Header
	event.Otel
	SessionID ID     `json:"session_id"`
	Email     string `json:"email"`
	ClientID  string `json:"client_id"`
}

func (e LoginCodeIssued) GetStreamName() string {
	return EventStreamName
}

type LoginVerified struct {
	event.Header
	event.Otel
	SessionID ID     `json:"session_id"`
	Email     string `json:"email"`
	ClientID  string `json:"client_id"`
}

func (e LoginVerified) GetStreamName() string {
	return EventStreamName
}

type LoginVerificationFailed struct {
	event.Header
	event.Otel
	SessionID ID            `json:"session_id"`
	Reason    FailureReason `json:"reason"`
	Attempts  int           `json:"attempts"`
}

func (e LoginVerificationFailed) GetStreamName() string {
	return EventStreamName
}

func NewNotFoundEvent(id ID) *LoginVerificationFailed {
	return &LoginVerificationFailed{
		Header:    event.NewEventHeader(),
		SessionID: id,
		Reason:    ReasonNotFound,
	}
}
