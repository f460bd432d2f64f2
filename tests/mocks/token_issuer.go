package mocks

import (
	"context"
	"fmt"
	"sync"
)

type IssuedToken struct {
	Subject  string
	Audience string
	Token    string
}

// TokenIssuer hands out predictable tokens and remembers what it issued.
type TokenIssuer struct {
	mu     sync.Mutex
	issued []IssuedToken
	err    error
}

func NewTokenIssuer() *TokenIssuer {
	return &TokenIssuer{}
}

func (i *TokenIssuer) IssueIDToken(ctx context.Context, subject, audience string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.err != nil {
		return "", i.err
	}
	token := fmt.Sprintf("token-%d-%s-%s", len(i.issued)+1, subject, audience)
	i.issued = append(i.issued, IssuedToken{Subject: subject, Audience: audience, Token: token})
	return token, nil
}

func (i *TokenIssuer) Fail(err error) *TokenIssuer {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.err = err
	return i
}

func (i *TokenIssuer) Issued() []IssuedToken {
	i.mu.Lock()
	defer i.mu.Unlock()

	return append([]IssuedToken{}, i.issued...)
}
