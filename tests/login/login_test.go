package login

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/tests/integration"
	"gitlab.com/ucmsv2/idbroker/tests/integration/builders"
	"gitlab.com/ucmsv2/idbroker/tests/integration/fixtures"
	"gitlab.com/ucmsv2/idbroker/tests/integration/framework/event"
)

type LoginIntegrationSuite struct {
	integration.TestSuite
}

func TestLoginIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container integration tests in short mode")
	}
	suite.Run(t, new(LoginIntegrationSuite))
}

// confirmLink pulls the confirm link out of a login mail body.
func confirmLink(t *testing.T, body string) *url.URL {
	t.Helper()

	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, fixtures.BaseURL+"/confirm?") {
			u, err := url.Parse(strings.TrimSpace(line))
			require.NoError(t, err)
			return u
		}
	}
	t.Fatalf("no confirm link in mail body:\n%s", body)
	return nil
}

func (s *LoginIntegrationSuite) TestLoginFlow() {
	var sessionID loginsession.ID
	s.T().Run("Request Login", func(t *testing.T) {
		resp := s.HTTP.RequestLogin(t, fixtures.ValidEmail, fixtures.ClientID, fixtures.RedirectURI).
			AssertSuccess().
			AssertHeader("Cache-Control", "no-store").
			LoginResponse()

		assert.Equal(t, "Check your email for a login code", resp.Message)
		assert.Empty(t, resp.Diagnostics.StoreError)
		assert.Empty(t, resp.Diagnostics.TTLError)
		assert.Empty(t, resp.Diagnostics.MailError)
		sessionID = loginsession.ID(resp.SessionID)
		assert.Equal(t, builders.NewSessionBuilder().ID(), sessionID)
	})

	var code string
	s.T().Run("Session Stored", func(t *testing.T) {
		sa := s.Redis.RequireSessionExists(t, sessionID).
			AssertEmail(t, fixtures.ValidEmail).
			AssertClientID(t, fixtures.ClientID).
			AssertRedirectURI(t, fixtures.RedirectURI).
			AssertCodeValid(t).
			AssertAttempts(t, 0)
		code = sa.Session.Code()
		assert.Len(t, code, fixtures.DefaultCodeLength)

		ttl := s.Redis.TTL(t, sessionID)
		assert.InDelta(t, fixtures.SessionTTL.Seconds(), ttl.Seconds(), 5)
	})

	var link *url.URL
	s.T().Run("Mail Sent", func(t *testing.T) {
		s.MockMailSender.AssertMailCount(t, 1)
		m := s.MockMailSender.LastMail(t)
		assert.Equal(t, fixtures.ValidEmail, m.To)
		assert.Equal(t, fixtures.SenderAddress, m.From.Address)
		assert.Equal(t, "Code: "+code+" - Finish logging in to "+fixtures.ClientID, m.Subject)
		assert.Contains(t, m.Body, "\n"+code+"\n")

		link = confirmLink(t, m.Body)
		assert.Equal(t, sessionID.String(), link.Query().Get("session"))
		assert.Equal(t, code, link.Query().Get("code"))
	})

	s.T().Run("Code Issued Event", func(t *testing.T) {
		e := event.RequireEvent[loginsession.LoginCodeIssued](t, s.Event)
		assert.Equal(t, sessionID, e.SessionID)
		assert.Equal(t, fixtures.ValidEmail, e.Email)
		assert.Equal(t, fixtures.ClientID, e.ClientID)
		assert.NotContains(t, s.Event.Raw(), code, "the code must never be published")
	})

	s.T().Run("Confirm", func(t *testing.T) {
		target := s.HTTP.ConfirmLink(t, link.String()).
			AssertHeader("Cache-Control", "no-store").
			RequireRedirect()

		assert.Equal(t, "https", target.Scheme)
		assert.Equal(t, "rp.example.com", target.Host)
		assert.Equal(t, "/cb", target.Path)

		claims, err := s.App().Tokens.Parse(target.Query().Get("id_token"), fixtures.ClientID)
		require.NoError(t, err)
		assert.Equal(t, fixtures.ValidEmail, claims.Subject)
		assert.Equal(t, fixtures.ValidEmail, claims.Email)
		assert.True(t, claims.EmailVerified)
		assert.Equal(t, fixtures.JWTIssuer, claims.Issuer)
	})

	s.T().Run("Session Consumed", func(t *testing.T) {
		s.Redis.AssertSessionNotExists(t, sessionID)

		e := event.RequireEvent[loginsession.LoginVerified](t, s.Event)
		assert.Equal(t, sessionID, e.SessionID)
		assert.Equal(t, fixtures.ClientID, e.ClientID)
	})

	s.T().Run("Replay Rejected", func(t *testing.T) {
		s.HTTP.ConfirmLink(t, link.String()).
			AssertError(http.StatusUnauthorized, string(errorx.CodeUnauthorized))

		e := event.RequireEvent[loginsession.LoginVerificationFailed](t, s.Event)
		assert.Equal(t, loginsession.ReasonNotFound, e.Reason)
	})
}

func (s *LoginIntegrationSuite) TestRequestLogin_JSONBody() {
	resp := s.HTTP.RequestLoginJSON(s.T(), fixtures.ValidEmail, fixtures.ClientID, fixtures.RedirectURI2).
		AssertSuccess().
		LoginResponse()

	s.Redis.RequireSessionExists(s.T(), loginsession.ID(resp.SessionID)).
		AssertRedirectURI(s.T(), fixtures.RedirectURI2)
	s.MockMailSender.AssertMailSent(s.T(), fixtures.ValidEmail, "Finish logging in to "+fixtures.ClientID)
}

func (s *LoginIntegrationSuite) TestRequestLogin_CanonicalisesEmail() {
	resp := s.HTTP.RequestLogin(s.T(), "  "+fixtures.MixedCaseEmail+" ", fixtures.ClientID, fixtures.RedirectURI).
		AssertSuccess().
		LoginResponse()

	expected := builders.NewSessionBuilder().WithEmail(fixtures.CanonicalEmail).ID()
	s.Equal(expected, loginsession.ID(resp.SessionID))
	s.Redis.RequireSessionExists(s.T(), expected).AssertEmail(s.T(), fixtures.CanonicalEmail)
	s.MockMailSender.AssertMailSent(s.T(), fixtures.CanonicalEmail, "Code: ")
}

func (s *LoginIntegrationSuite) TestRequestLogin_Rejections() {
	tests := []struct {
		name        string
		email       string
		clientID    string
		redirectURI string
	}{
		{name: "invalid email", email: fixtures.InvalidEmail, clientID: fixtures.ClientID, redirectURI: fixtures.RedirectURI},
		{name: "display name email", email: fixtures.DisplayNameEmail, clientID: fixtures.ClientID, redirectURI: fixtures.RedirectURI},
		{name: "missing client", email: fixtures.ValidEmail, redirectURI: fixtures.RedirectURI},
		{name: "missing redirect", email: fixtures.ValidEmail, clientID: fixtures.ClientID},
		{name: "unknown client", email: fixtures.ValidEmail, clientID: fixtures.ClientID2, redirectURI: fixtures.RedirectURI},
		{name: "unregistered redirect", email: fixtures.ValidEmail, clientID: fixtures.ClientID, redirectURI: fixtures.UnregisteredURI},
	}
	for _, tt := range tests {
		s.T().Run(tt.name, func(t *testing.T) {
			s.HTTP.RequestLogin(t, tt.email, tt.clientID, tt.redirectURI).AssertBadRequest()
		})
	}

	s.Redis.AssertSessionNotExists(s.T(), builders.NewSessionBuilder().ID())
	s.Redis.AssertSessionNotExists(s.T(), builders.NewSessionBuilder().WithClientID(fixtures.ClientID2).ID())
	s.MockMailSender.AssertMailCount(s.T(), 0)
	event.AssertNoEvent[loginsession.LoginCodeIssued](s.T(), s.Event)
}

func (s *LoginIntegrationSuite) TestRequestLogin_ReissueReplacesCode() {
	first := builders.NewSessionBuilder().WithCode(fixtures.KnownCode).WithAttempts(3)
	s.Redis.SeedSession(s.T(), first.Build(), time.Minute)

	s.HTTP.RequestLogin(s.T(), fixtures.ValidEmail, fixtures.ClientID, fixtures.RedirectURI).AssertSuccess()

	sa := s.Redis.RequireSessionExists(s.T(), first.ID()).
		AssertAttempts(s.T(), 0)
	if sa.Session.Code() == fixtures.KnownCode {
		s.T().Skip("new code collided with the seeded one")
	}

	s.HTTP.Confirm(s.T(), first.ID().String(), fixtures.KnownCode).AssertUnauthorized()
	s.HTTP.Confirm(s.T(), first.ID().String(), sa.Session.Code()).RequireRedirect()
}

func (s *LoginIntegrationSuite) TestConfirm_IncorrectCodeThenCorrect() {
	b := s.Builder.Session.WithKnownCode(fixtures.KnownCode)
	s.Redis.SeedSession(s.T(), b.Build(), time.Minute)

	s.HTTP.Confirm(s.T(), b.ID().String(), fixtures.WrongCode).
		AssertError(http.StatusUnauthorized, string(errorx.CodeUnauthorized))
	s.Redis.RequireSessionExists(s.T(), b.ID()).AssertAttempts(s.T(), 1)

	e := event.RequireEvent[loginsession.LoginVerificationFailed](s.T(), s.Event)
	s.Equal(loginsession.ReasonIncorrectCode, e.Reason)
	s.Equal(1, e.Attempts)

	s.HTTP.ConfirmForm(s.T(), " "+b.ID().String()+" ", fixtures.KnownCode+"\n").RequireRedirect()
	s.Redis.AssertSessionNotExists(s.T(), b.ID())
}

func (s *LoginIntegrationSuite) TestConfirm_AttemptLimit() {
	b := s.Builder.Session.WithKnownCode(fixtures.KnownCode)
	s.Redis.SeedSession(s.T(), b.Build(), time.Minute)

	for i := 0; i < fixtures.MaxAttempts; i++ {
		s.HTTP.Confirm(s.T(), b.ID().String(), fixtures.WrongCode).AssertUnauthorized()
	}
	s.Redis.AssertSessionNotExists(s.T(), b.ID())

	e := event.RequireEvent[loginsession.LoginVerificationFailed](s.T(), s.Event)
	s.Equal(loginsession.ReasonTooManyAttempts, e.Reason)

	// the right code is useless once the session is gone
	s.HTTP.Confirm(s.T(), b.ID().String(), fixtures.KnownCode).AssertUnauthorized()
}

func (s *LoginIntegrationSuite) TestConfirm_ExpiredSession() {
	b := s.Builder.Session.WithKnownCode(fixtures.KnownCode)
	s.Redis.SeedSession(s.T(), b.Build(), time.Minute)
	s.Redis.Expire(s.T(), b.ID())

	s.HTTP.Confirm(s.T(), b.ID().String(), fixtures.KnownCode).
		AssertError(http.StatusUnauthorized, string(errorx.CodeUnauthorized))
}

func (s *LoginIntegrationSuite) TestConfirm_UniformRejectionMessage() {
	b := s.Builder.Session.WithKnownCode(fixtures.KnownCode)
	s.Redis.SeedSession(s.T(), b.Build(), time.Minute)

	var wrong, unknown map[string]any
	s.HTTP.Confirm(s.T(), b.ID().String(), fixtures.WrongCode).AssertUnauthorized().ParseJSON(&wrong)
	s.HTTP.Confirm(s.T(), fixtures.UnknownSessionID, fixtures.KnownCode).AssertUnauthorized().ParseJSON(&unknown)

	s.Equal(wrong, unknown)
}

func (s *LoginIntegrationSuite) TestConfirm_ConcurrentSingleUse() {
	b := s.Builder.Session.WithKnownCode(fixtures.KnownCode)
	s.Redis.SeedSession(s.T(), b.Build(), time.Minute)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses []int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := s.HTTP.Confirm(s.T(), b.ID().String(), fixtures.KnownCode)
			mu.Lock()
			statuses = append(statuses, resp.Code)
			mu.Unlock()
		}()
	}
	wg.Wait()

	redirects := 0
	for _, status := range statuses {
		if status == http.StatusFound {
			redirects++
			continue
		}
		s.Equal(http.StatusUnauthorized, status)
	}
	s.Equal(1, redirects, "exactly one confirm may win")
}

func (s *LoginIntegrationSuite) TestHealthz() {
	s.HTTP.Healthz(s.T()).AssertSuccess()
}
