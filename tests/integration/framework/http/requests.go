package http

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"gitlab.com/ucmsv2/idbroker/internal/application/login/cmd"
)

type LoginResponse struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	SessionID   string            `json:"session_id"`
	Diagnostics cmd.Diagnostics `json:"diagnostics"`
}

func (h *Helper) RequestLogin(t *testing.T, email, clientID, redirectURI string) *Response {
	return h.Do(t, NewRequest(http.MethodGet, "/auth").
		WithQuery("login_hint", email).
		WithQuery("client_id", clientID).
		WithQuery("redirect_uri", redirectURI).
		Build())
}

func (h *Helper) RequestLoginJSON(t *testing.T, email, clientID, redirectURI string) *Response {
	return h.Do(t, NewRequest(http.MethodPost, "/auth").
		WithJSON(map[string]string{
			"login_hint":   email,
			"client_id":    clientID,
			"redirect_uri": redirectURI,
		}).
		Build())
}

// Confirm follows the link from the login mail.
func (h *Helper) Confirm(t *testing.T, sessionID, code string) *Response {
	return h.Do(t, NewRequest(http.MethodGet, "/confirm").
		WithQuery("session", sessionID).
		WithQuery("code", code).
		Build())
}

func (h *Helper) ConfirmForm(t *testing.T, sessionID, code string) *Response {
	return h.Do(t, NewRequest(http.MethodPost, "/confirm").
		WithForm(url.Values{"session": {sessionID}, "code": {code}}).
		Build())
}

// ConfirmLink requests the path and query of an absolute confirm link.
func (h *Helper) ConfirmLink(t *testing.T, link string) *Response {
	t.Helper()

	u, err := url.Parse(link)
	require.NoError(t, err)
	return h.Do(t, Request{Method: http.MethodGet, Path: u.RequestURI()})
}

func (h *Helper) Healthz(t *testing.T) *Response {
	return h.Do(t, NewRequest(http.MethodGet, "/healthz").Build())
}

func (r *Response) LoginResponse() LoginResponse {
	r.t.Helper()

	var resp LoginResponse
	r.ParseJSON(&resp)
	return resp
}
