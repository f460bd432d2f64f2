package builders

import (
	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/tests/integration/fixtures"
)

type SessionBuilder struct {
	key         []byte
	email       string
	clientID    string
	code        string
	redirectURI string
	attempts    int
}

func NewSessionBuilder() *SessionBuilder {
	code, _ := loginsession.GenerateCode(fixtures.DefaultCodeLength)

	return &SessionBuilder{
		key:         fixtures.SessionIDKey,
		email:       fixtures.ValidEmail,
		clientID:    fixtures.ClientID,
		code:        code,
		redirectURI: fixtures.RedirectURI,
	}
}

func (b *SessionBuilder) WithKey(key []byte) *SessionBuilder {
	b.key = key
	return b
}

func (b *SessionBuilder) WithEmail(email string) *SessionBuilder {
	b.email = email
	return b
}

func (b *SessionBuilder) WithClientID(clientID string) *SessionBuilder {
	b.clientID = clientID
	return b
}

func (b *SessionBuilder) WithCode(code string) *SessionBuilder {
	b.code = code
	return b
}

func (b *SessionBuilder) WithRedirectURI(uri string) *SessionBuilder {
	b.redirectURI = uri
	return b
}

func (b *SessionBuilder) WithAttempts(attempts int) *SessionBuilder {
	b.attempts = attempts
	return b
}

// ID returns the id the built session will carry.
func (b *SessionBuilder) ID() loginsession.ID {
	id, err := loginsession.DeriveID(b.key, b.email, b.clientID)
	if err != nil {
		panic(err)
	}
	return id
}

func (b *SessionBuilder) Build() *loginsession.Session {
	return loginsession.Rehydrate(loginsession.RehydrateArgs{
		ID:          b.ID(),
		Email:       b.email,
		ClientID:    b.clientID,
		Code:        b.code,
		RedirectURI: b.redirectURI,
		Attempts:    b.attempts,
	})
}
