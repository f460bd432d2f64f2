package loginsession

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.com/ucmsv2/idbroker/internal/domain/email"
)

type SessionAssertion struct {
	Session *Session
}

func NewSessionAssertion(s *Session) *SessionAssertion {
	return &SessionAssertion{Session: s}
}

func (sa *SessionAssertion) AssertEmail(t *testing.T, expected string) *SessionAssertion {
	t.Helper()
	assert.Equal(t, email.Address(expected), sa.Session.email, "Expected session email to be %s, got %s", expected, sa.Session.email)
	return sa
}

func (sa *SessionAssertion) AssertClientID(t *testing.T, expected string) *SessionAssertion {
	t.Helper()
	assert.Equal(t, expected, sa.Session.clientID, "Expected session client id to be %s, got %s", expected, sa.Session.clientID)
	return sa
}

func (sa *SessionAssertion) AssertRedirectURI(t *testing.T, expected string) *SessionAssertion {
	t.Helper()
	assert.Equal(t, expected, sa.Session.redirectURI, "Expected session redirect to be %s, got %s", expected, sa.Session.redirectURI)
	return sa
}

func (sa *SessionAssertion) AssertCode(t *testing.T, expected string) *SessionAssertion {
	t.Helper()
	assert.Equal(t, expected, sa.Session.code, "Expected session code to be %s, got %s", expected, sa.Session.code)
	return sa
}

func (sa *SessionAssertion) AssertCodeIsNot(t *testing.T, unexpected string) *SessionAssertion {
	t.Helper()
	assert.NotEqual(t, unexpected, sa.Session.code, "Expected session code to change from %s", unexpected)
	return sa
}

func (sa *SessionAssertion) AssertCodeValid(t *testing.T) *SessionAssertion {
	t.Helper()
	assert.NotEmpty(t, sa.Session.code, "Expected session code to not be empty")
	for _, r := range sa.Session.code {
		assert.Contains(t, CodeAlphabet, string(r), "Expected code symbol %q to be in the alphabet", r)
	}
	return sa
}

func (sa *SessionAssertion) AssertAttempts(t *testing.T, expected int) *SessionAssertion {
	t.Helper()
	assert.Equal(t, expected, sa.Session.attempts, "Expected session attempts to be %d, got %d", expected, sa.Session.attempts)
	return sa
}
