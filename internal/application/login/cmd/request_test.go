package cmd

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ARUMANDESU/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/ucmsv2/idbroker/internal/domain/client"
	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/internal/domain/valueobject/mail"
	"gitlab.com/ucmsv2/idbroker/pkg/env"
	"gitlab.com/ucmsv2/idbroker/tests/integration/builders"
	"gitlab.com/ucmsv2/idbroker/tests/integration/fixtures"
	"gitlab.com/ucmsv2/idbroker/tests/mocks"
)

type RequestSuite struct {
	Handler    *RequestHandler
	MockRepo   *mocks.SessionRepo
	MockMailer *mocks.MockMailSender
	MockEvents *mocks.EventRepo
}

func NewRequestSuite(clients ClientGetter) *RequestSuite {
	repo := mocks.NewSessionRepo()
	mailer := mocks.NewMockMailSender()
	events := mocks.NewEventRepo()

	handler := NewRequestHandler(RequestHandlerArgs{
		Mode:       env.Test,
		Repo:       repo,
		Mailer:     mailer,
		Clients:    clients,
		Events:     events,
		IDKey:      fixtures.SessionIDKey,
		BaseURL:    fixtures.BaseURL,
		SessionTTL: fixtures.SessionTTL,
		Sender:     mail.Sender{Name: fixtures.SenderName, Address: fixtures.SenderAddress},
	})

	return &RequestSuite{
		Handler:    handler,
		MockRepo:   repo,
		MockMailer: mailer,
		MockEvents: events,
	}
}

func validRequest() RequestLogin {
	return RequestLogin{
		Email:       fixtures.ValidEmail,
		ClientID:    fixtures.ClientID,
		RedirectURI: fixtures.RedirectURI,
	}
}

func TestRequestHandler_HappyPath(t *testing.T) {
	t.Parallel()

	s := NewRequestSuite(nil)

	outcome, err := s.Handler.Handle(t.Context(), validRequest())
	require.NoError(t, err)
	assert.True(t, outcome.OK())
	assert.NoError(t, outcome.Err())
	assert.Equal(t, Diagnostics{}, outcome.Diagnostics())

	wantID, err := loginsession.DeriveID(fixtures.SessionIDKey, fixtures.ValidEmail, fixtures.ClientID)
	require.NoError(t, err)
	assert.Equal(t, wantID, outcome.SessionID)

	stored := s.MockRepo.AssertSessionExists(t, outcome.SessionID).
		AssertEmail(t, fixtures.ValidEmail).
		AssertClientID(t, fixtures.ClientID).
		AssertRedirectURI(t, fixtures.RedirectURI).
		AssertAttempts(t, 0).
		AssertCodeValid(t)
	code := stored.Session.Code()
	assert.Len(t, code, loginsession.DefaultCodeLength)

	ttl, ok := s.MockRepo.TTL(outcome.SessionID)
	require.True(t, ok, "expected ttl to be set")
	assert.InDelta(t, fixtures.SessionTTL.Seconds(), ttl.Seconds(), 2)

	sent := s.MockMailer.LastMail(t)
	assert.Equal(t, fixtures.ValidEmail, sent.To)
	assert.Equal(t, fixtures.SenderAddress, sent.From.Address)
	assert.Equal(t, "Code: "+code+" - Finish logging in to "+fixtures.ClientID, sent.Subject)
	assert.Contains(t, sent.Body, "\n"+code+"\n")
	assert.Contains(t, sent.Body, ConfirmURL(fixtures.BaseURL, outcome.SessionID, code))
	assert.Contains(t, sent.Body, "15 minutes")

	s.MockEvents.AssertEventCount(t, 1)
	e := mocks.RequireEventExists(t, s.MockEvents, &loginsession.LoginCodeIssued{})
	assert.Equal(t, outcome.SessionID, e.SessionID)
	assert.Equal(t, fixtures.ValidEmail, e.Email)
	assert.Equal(t, fixtures.ClientID, e.ClientID)
}

func TestRequestHandler_CanonicalisesEmail(t *testing.T) {
	t.Parallel()

	s := NewRequestSuite(nil)

	outcome, err := s.Handler.Handle(t.Context(), RequestLogin{
		Email:       "  " + fixtures.MixedCaseEmail + " ",
		ClientID:    fixtures.ClientID,
		RedirectURI: fixtures.RedirectURI,
	})
	require.NoError(t, err)

	s.MockRepo.AssertSessionExists(t, outcome.SessionID).AssertEmail(t, fixtures.CanonicalEmail)
	s.MockMailer.AssertMailSent(t, fixtures.CanonicalEmail, "Code: ")
}

func TestRequestHandler_ReissueOverwrites(t *testing.T) {
	t.Parallel()

	s := NewRequestSuite(nil)
	seeded := builders.NewSessionBuilder().WithCode(fixtures.KnownCode).WithAttempts(3).Build()
	s.MockRepo.SeedSession(t, seeded, time.Minute)

	outcome, err := s.Handler.Handle(t.Context(), validRequest())
	require.NoError(t, err)
	require.Equal(t, seeded.ID(), outcome.SessionID)

	s.MockRepo.AssertSessionCount(t, 1)
	s.MockRepo.AssertSessionExists(t, outcome.SessionID).
		AssertAttempts(t, 0).
		AssertCodeValid(t)

	ttl, ok := s.MockRepo.TTL(outcome.SessionID)
	require.True(t, ok)
	assert.Greater(t, ttl, time.Minute)
}

func TestRequestHandler_DistinctClientsGetDistinctSessions(t *testing.T) {
	t.Parallel()

	s := NewRequestSuite(nil)

	a, err := s.Handler.Handle(t.Context(), validRequest())
	require.NoError(t, err)
	req := validRequest()
	req.ClientID = fixtures.ClientID2
	b, err := s.Handler.Handle(t.Context(), req)
	require.NoError(t, err)

	assert.NotEqual(t, a.SessionID, b.SessionID)
	s.MockRepo.AssertSessionCount(t, 2)
}

func TestRequestHandler_InvalidArgs_ShouldReturnError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(r *RequestLogin)
		wantErr error
	}{
		{name: "invalid email", mutate: func(r *RequestLogin) { r.Email = fixtures.InvalidEmail }, wantErr: loginsession.ErrInvalidAddress},
		{name: "empty email", mutate: func(r *RequestLogin) { r.Email = "" }, wantErr: loginsession.ErrInvalidAddress},
		{name: "display name", mutate: func(r *RequestLogin) { r.Email = fixtures.DisplayNameEmail }, wantErr: loginsession.ErrInvalidAddress},
		{name: "empty client id", mutate: func(r *RequestLogin) { r.ClientID = "" }},
		{name: "empty redirect", mutate: func(r *RequestLogin) { r.RedirectURI = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewRequestSuite(nil)
			req := validRequest()
			tt.mutate(&req)

			outcome, err := s.Handler.Handle(t.Context(), req)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				var verrs validation.Errors
				assert.ErrorAs(t, err, &verrs)
			}
			assert.Empty(t, outcome.SessionID)

			s.MockRepo.AssertSessionCount(t, 0)
			s.MockMailer.AssertMailCount(t, 0)
			s.MockEvents.AssertEventCount(t, 0)
		})
	}
}

func TestRequestHandler_OpaqueClientWithoutRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		clientID    string
		redirectURI string
	}{
		{name: "custom scheme redirect", clientID: fixtures.ClientID, redirectURI: "com.example.app:/oauth2redirect"},
		{name: "redirect with fragment", clientID: fixtures.ClientID, redirectURI: "https://rp.example/cb#frag"},
		{name: "relative redirect", clientID: fixtures.ClientID, redirectURI: "/cb"},
		{name: "client id with spaces", clientID: "My Relying Party", redirectURI: fixtures.RedirectURI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewRequestSuite(nil)

			outcome, err := s.Handler.Handle(t.Context(), RequestLogin{
				Email:       fixtures.ValidEmail,
				ClientID:    tt.clientID,
				RedirectURI: tt.redirectURI,
			})
			require.NoError(t, err)
			assert.True(t, outcome.OK())

			s.MockRepo.AssertSessionExists(t, outcome.SessionID).
				AssertClientID(t, tt.clientID).
				AssertRedirectURI(t, tt.redirectURI)
			s.MockMailer.AssertMailCount(t, 1)
		})
	}
}

func TestRequestHandler_ClientRegistry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		clientID    string
		redirectURI string
		wantErr     error
	}{
		{name: "registered", clientID: fixtures.ClientID, redirectURI: fixtures.RedirectURI},
		{name: "second registered redirect", clientID: fixtures.ClientID, redirectURI: fixtures.RedirectURI2},
		{name: "unknown client", clientID: "unknown-rp", redirectURI: fixtures.RedirectURI, wantErr: client.ErrUnknownClient},
		{name: "unregistered redirect", clientID: fixtures.ClientID, redirectURI: fixtures.UnregisteredURI, wantErr: client.ErrRedirectNotRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clients := mocks.NewClientRepo()
			clients.SeedClient(t, builders.NewFactory().Client.WithRedirects(fixtures.RedirectURI, fixtures.RedirectURI2).Build())
			s := NewRequestSuite(clients)

			_, err := s.Handler.Handle(t.Context(), RequestLogin{
				Email:       fixtures.ValidEmail,
				ClientID:    tt.clientID,
				RedirectURI: tt.redirectURI,
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
				s.MockMailer.AssertMailCount(t, 1)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			s.MockRepo.AssertSessionCount(t, 0)
			s.MockMailer.AssertMailCount(t, 0)
		})
	}
}

func TestRequestHandler_ClientRegistryUnavailable(t *testing.T) {
	t.Parallel()

	clients := mocks.NewClientRepo().Fail(errors.New("connection refused"))
	s := NewRequestSuite(clients)

	_, err := s.Handler.Handle(t.Context(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	s.MockRepo.AssertSessionCount(t, 0)
}

func TestRequestHandler_InfrastructureFailures(t *testing.T) {
	t.Parallel()

	t.Run("store down: ttl and mail still attempted", func(t *testing.T) {
		t.Parallel()
		s := NewRequestSuite(nil)
		s.MockRepo.FailSave(errors.New("store unavailable"))

		outcome, err := s.Handler.Handle(t.Context(), validRequest())
		require.NoError(t, err)
		assert.False(t, outcome.OK())
		assert.ErrorContains(t, outcome.StoreErr, "store unavailable")
		assert.ErrorContains(t, outcome.TTLErr, "key does not exist")
		assert.NoError(t, outcome.MailErr)
		s.MockMailer.AssertMailCount(t, 1)
		s.MockEvents.AssertEventCount(t, 0)

		d := outcome.Diagnostics()
		assert.Equal(t, "store unavailable", d.StoreError)
		assert.NotEmpty(t, d.TTLError)
		assert.Empty(t, d.MailError)
	})

	t.Run("ttl failure only", func(t *testing.T) {
		t.Parallel()
		s := NewRequestSuite(nil)
		s.MockRepo.FailExpire(errors.New("expire failed"))

		outcome, err := s.Handler.Handle(t.Context(), validRequest())
		require.NoError(t, err)
		assert.NoError(t, outcome.StoreErr)
		assert.ErrorContains(t, outcome.TTLErr, "expire failed")
		assert.NoError(t, outcome.MailErr)
		s.MockRepo.AssertSessionExists(t, outcome.SessionID)
		_, hasTTL := s.MockRepo.TTL(outcome.SessionID)
		assert.False(t, hasTTL)
	})

	t.Run("mail failure", func(t *testing.T) {
		t.Parallel()
		s := NewRequestSuite(nil)
		s.MockMailer.Fail(errors.New("smtp: 550 mailbox unavailable"))

		outcome, err := s.Handler.Handle(t.Context(), validRequest())
		require.NoError(t, err)
		assert.NoError(t, outcome.StoreErr)
		assert.NoError(t, outcome.TTLErr)
		assert.ErrorContains(t, outcome.MailErr, "mailbox unavailable")
		assert.ErrorContains(t, outcome.Err(), "mailbox unavailable")
		assert.Equal(t, "smtp: 550 mailbox unavailable", outcome.Diagnostics().MailError)
		s.MockRepo.AssertSessionExists(t, outcome.SessionID)
	})

	t.Run("event publish failure is not reported", func(t *testing.T) {
		t.Parallel()
		s := NewRequestSuite(nil)
		s.MockEvents.FailPublish(errors.New("bus closed"))

		outcome, err := s.Handler.Handle(t.Context(), validRequest())
		require.NoError(t, err)
		assert.True(t, outcome.OK())
	})
}

func TestRequestHandler_CustomCodeLength(t *testing.T) {
	t.Parallel()

	repo := mocks.NewSessionRepo()
	mailer := mocks.NewMockMailSender()
	h := NewRequestHandler(RequestHandlerArgs{
		Mode:       env.Test,
		Repo:       repo,
		Mailer:     mailer,
		IDKey:      fixtures.SessionIDKey,
		BaseURL:    fixtures.BaseURL,
		CodeLength: 10,
		Sender:     mail.Sender{Address: fixtures.SenderAddress},
	})

	outcome, err := h.Handle(t.Context(), validRequest())
	require.NoError(t, err)
	stored := repo.AssertSessionExists(t, outcome.SessionID).AssertCodeValid(t)
	assert.Len(t, stored.Session.Code(), 10)

	ttl, ok := repo.TTL(outcome.SessionID)
	require.True(t, ok)
	assert.InDelta(t, DefaultSessionTTL.Seconds(), ttl.Seconds(), 2)
	assert.True(t, strings.HasPrefix(mailer.LastMail(t).Subject, "Code: "))
}
