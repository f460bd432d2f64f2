package builders

type Factory struct {
	Session *SessionFactory
	Client  *ClientFactory
}

func NewFactory() *Factory {
	return &Factory{
		Session: &SessionFactory{},
		Client:  &ClientFactory{},
	}
}

type SessionFactory struct{}

// WithKnownCode is a session for the default pair whose code is fixed.
func (f *SessionFactory) WithKnownCode(code string) *SessionBuilder {
	return NewSessionBuilder().WithCode(code)
}

func (f *SessionFactory) NearAttemptLimit(code string, limit int) *SessionBuilder {
	return NewSessionBuilder().WithCode(code).WithAttempts(limit - 1)
}

type ClientFactory struct{}

func (f *ClientFactory) WithRedirects(uris ...string) *ClientBuilder {
	return NewClientBuilder().WithRedirectURIs(uris...)
}
