package mail

import (
	"errors"
	"net/mail"
)

var (
	ErrNoRecipient = errors.New("mail: recipient is required")
	ErrNoSender    = errors.New("mail: sender address is required")
)

type Sender struct {
	Name    string
	Address string
}

// String renders the sender as an RFC 5322 address.
func (s Sender) String() string {
	return (&mail.Address{Name: s.Name, Address: s.Address}).String()
}

type Payload struct {
	To      string
	From    Sender
	Subject string
	Body    string
}

func (p Payload) Validate() error {
	if p.To == "" {
		return ErrNoRecipient
	}
	if p.From.Address == "" {
		return ErrNoSender
	}
	return nil
}
