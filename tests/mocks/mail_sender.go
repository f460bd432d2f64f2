package mocks

import (
	"context"
	"strings"
	"sync"
	"testing"

	"gitlab.com/ucmsv2/idbroker/internal/domain/valueobject/mail"
)

type MockMailSender struct {
	mu        sync.Mutex
	sentMails []mail.Payload
	err       error
}

func NewMockMailSender() *MockMailSender {
	return &MockMailSender{
		sentMails: make([]mail.Payload, 0),
	}
}

func (m *MockMailSender) SendMail(ctx context.Context, payload mail.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sentMails = append(m.sentMails, payload)
	return nil
}

// Fail makes every following SendMail call return err without recording the mail.
func (m *MockMailSender) Fail(err error) *MockMailSender {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.err = err
	return m
}

func (m *MockMailSender) GetSentMails() []mail.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]mail.Payload{}, m.sentMails...)
}

func (m *MockMailSender) LastMail(t *testing.T) mail.Payload {
	t.Helper()

	mails := m.GetSentMails()
	if len(mails) == 0 {
		t.Fatalf("expected at least one mail to be sent")
	}
	return mails[len(mails)-1]
}

func (m *MockMailSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sentMails = make([]mail.Payload, 0)
	m.err = nil
}

func (m *MockMailSender) AssertMailSent(t *testing.T, email, subject string) {
	t.Helper()

	for _, mail := range m.GetSentMails() {
		if mail.To == email && strings.Contains(mail.Subject, subject) {
			return
		}
	}
	t.Errorf("expected mail to %s with subject containing %q not found", email, subject)
}

func (m *MockMailSender) AssertMailCount(t *testing.T, n int) {
	t.Helper()

	if got := len(m.GetSentMails()); got != n {
		t.Errorf("expected %d mails to be sent, got %d", n, got)
	}
}
