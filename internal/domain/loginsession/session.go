package loginsession

import (
	"errors"
	"fmt"

	"gitlab.com/ucmsv2/idbroker/internal/domain/email"
	"gitlab.com/ucmsv2/idbroker/internal/domain/event"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
)

const DefaultMaxAttempts = 5

// Session is a pending email login for one (email, client id) pair.
type Session struct {
	event.Recorder
	id          ID
	email       email.Address
	clientID    string
	code        string
	redirectURI string
	attempts    int
	consumed    bool
	exhausted   bool
}

type NewSessionArgs struct {
	Key         []byte
	Email       email.Address
	ClientID    string
	RedirectURI string
	CodeLength  int
}

// NewSession derives the session id, draws a fresh code and records LoginCodeIssued.
func NewSession(args NewSessionArgs) (*Session, error) {
	if args.Email == "" {
		return nil, ErrInvalidAddress
	}
	if args.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if args.RedirectURI == "" {
		return nil, ErrMissingRedirectURI
	}
	length := args.CodeLength
	if length == 0 {
		length = DefaultCodeLength
	}

	id, err := DeriveID(args.Key, args.Email.String(), args.ClientID)
	if err != nil {
		return nil, err
	}
	code, err := GenerateCode(length)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:          id,
		email:       args.Email,
		clientID:    args.ClientID,
		code:        code,
		redirectURI: args.RedirectURI,
	}
	s.AddEvent(&LoginCodeIssued{
		Header:    event.NewEventHeader(),
		SessionID: id,
		Email:     args.Email.String(),
		ClientID:  args.ClientID,
	})

	return s, nil
}

type RehydrateArgs struct {
	ID          ID
	Email       string
	ClientID    string
	Code        string
	RedirectURI string
	Attempts    int
}

func Rehydrate(args RehydrateArgs) *Session {
	return &Session{
		id:          args.ID,
		email:       email.Address(args.Email),
		clientID:    args.ClientID,
		code:        args.Code,
		redirectURI: args.RedirectURI,
		attempts:    args.Attempts,
	}
}

func (s *Session) ID() ID {
	if s == nil {
		return ""
	}
	return s.id
}

func (s *Session) Email() email.Address {
	if s == nil {
		return ""
	}
	return s.email
}

func (s *Session) ClientID() string {
	if s == nil {
		return ""
	}
	return s.clientID
}

func (s *Session) Code() string {
	if s == nil {
		return ""
	}
	return s.code
}

func (s *Session) RedirectURI() string {
	if s == nil {
		return ""
	}
	return s.redirectURI
}

func (s *Session) Attempts() int {
	if s == nil {
		return 0
	}
	return s.attempts
}

// Consumed reports whether a successful single-use verification has spent the code.
func (s *Session) Consumed() bool {
	return s != nil && s.consumed
}

// Exhausted reports whether the failed attempt limit has been reached.
func (s *Session) Exhausted() bool {
	return s != nil && s.exhausted
}

// Terminated reports whether the record must be removed from the store.
func (s *Session) Terminated() bool {
	return s.Consumed() || s.Exhausted()
}

type VerifyPolicy struct {
	// MaxAttempts of zero or less disables the limit.
	MaxAttempts int
	SingleUse   bool
}

// VerifyCode compares code with the stored one in constant time.
//
// A mismatch increments the attempt counter and returns a persistable
// ErrIncorrectCode, or ErrTooManyAttempts once the limit is hit, so the caller
// still stores the new state. A match resets the counter and consumes the
// session under a single-use policy.
func (s *Session) VerifyCode(code string, policy VerifyPolicy) error {
	if s == nil {
		return ErrSessionNotFound
	}
	if s.Terminated() {
		return fmt.Errorf("session %s is no longer usable: %w", s.id, ErrSessionNotFound)
	}

	if code == "" || !codesEqual(s.code, code) {
		s.attempts++
		reason, err := ReasonIncorrectCode, ErrIncorrectCode
		if policy.MaxAttempts > 0 && s.attempts >= policy.MaxAttempts {
			s.exhausted = true
			reason, err = ReasonTooManyAttempts, ErrTooManyAttempts
		}
		s.AddEvent(&LoginVerificationFailed{
			Header:    event.NewEventHeader(),
			SessionID: s.id,
			Reason:    reason,
			Attempts:  s.attempts,
		})
		return errorx.NewPersistable(err)
	}

	s.attempts = 0
	if policy.SingleUse {
		s.consumed = true
	}
	s.AddEvent(&LoginVerified{
		Header:    event.NewEventHeader(),
		SessionID: s.id,
		Email:     s.email.String(),
		ClientID:  s.clientID,
	})

	return nil
}

// FailureReasonOf maps a verification error to the reason recorded in events and metrics.
func FailureReasonOf(err error) FailureReason {
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		return ReasonTooManyAttempts
	case errors.Is(err, ErrIncorrectCode):
		return ReasonIncorrectCode
	default:
		return ReasonNotFound
	}
}
