package loginhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	loginapp "gitlab.com/ucmsv2/idbroker/internal/application/login"
	"gitlab.com/ucmsv2/idbroker/internal/application/login/cmd"
	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/pkg/env"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/pkg/httpx"
	"gitlab.com/ucmsv2/idbroker/pkg/logging"
	"gitlab.com/ucmsv2/idbroker/pkg/otelx"
	"gitlab.com/ucmsv2/idbroker/pkg/sanitizex"
)

var (
	tracer = otel.Tracer("idbroker/internal/ports/http/login")
	logger = otelslog.NewLogger("idbroker/internal/ports/http/login")
)

const (
	CheckYourEmailKey = "check_your_email"
	InvalidCodeKey    = "invalid_or_expired_code"
)

// ErrInvalidOrExpiredCode hides which verification step failed from the caller.
var ErrInvalidOrExpiredCode = errorx.NewUnauthorized().WithKey(InvalidCodeKey)

type HTTP struct {
	tracer     trace.Tracer
	logger     *slog.Logger
	cmd        *loginapp.Command
	mode       env.Mode
	errhandler *httpx.ErrorHandler
}

type Args struct {
	Tracer     trace.Tracer
	Logger     *slog.Logger
	App        *loginapp.App
	Mode       env.Mode
	Errhandler *httpx.ErrorHandler
}

func NewHTTP(args Args) *HTTP {
	if args.Tracer == nil {
		args.Tracer = tracer
	}
	if args.Logger == nil {
		args.Logger = logger
	}

	return &HTTP{
		tracer:     args.Tracer,
		logger:     args.Logger,
		cmd:        &args.App.CMD,
		mode:       args.Mode,
		errhandler: args.Errhandler,
	}
}

func (h *HTTP) Route(r chi.Router) {
	r.Get("/auth", h.RequestLogin)
	r.Post("/auth", h.RequestLogin)
	r.Get("/confirm", h.Confirm)
	r.Post("/confirm", h.Confirm)
}

type RequestLoginRequest struct {
	Email       string `json:"login_hint"`
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
}

func (r *RequestLoginRequest) Sanitized() {
	r.Email = sanitizex.CleanSingleLine(r.Email)
	r.ClientID = sanitizex.CleanSingleLine(r.ClientID)
	r.RedirectURI = sanitizex.CleanSingleLine(r.RedirectURI)
}

func (r *RequestLoginRequest) SetSpanAttrs(span trace.Span) {
	otelx.SetSpanAttrs(span, map[string]any{
		"login.email":        logging.RedactEmail(r.Email),
		"login.client_id":    r.ClientID,
		"login.redirect_uri": r.RedirectURI,
	})
}

// RequestLogin answers with the same message whether or not delivery worked.
// Outside prod the response also carries the session id and the per-step diagnostics.
func (h *HTTP) RequestLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RequestLogin")
	defer span.End()

	var req RequestLoginRequest
	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := httpx.ReadJSON(w, r, &req); err != nil {
			otelx.RecordSpanError(span, err, "failed to read json")
			httpx.BadRequest(w, r, err.Error())
			return
		}
	} else {
		req = RequestLoginRequest{
			Email:       r.FormValue("login_hint"),
			ClientID:    r.FormValue("client_id"),
			RedirectURI: r.FormValue("redirect_uri"),
		}
	}

	req.Sanitized()
	req.SetSpanAttrs(span)

	outcome, err := h.cmd.Request.Handle(ctx, cmd.RequestLogin{
		Email:       req.Email,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
	})
	if err != nil {
		h.errhandler.HandleError(w, r, span, err, "failed to request login")
		return
	}

	resp := httpx.Envelope{
		"message": h.errhandler.Localize(r, CheckYourEmailKey, nil),
	}
	if h.mode.Diagnostics() {
		resp["session_id"] = outcome.SessionID.String()
		resp["diagnostics"] = outcome.Diagnostics()
	}

	httpx.Success(w, r, http.StatusOK, resp)
}

type ConfirmRequest struct {
	SessionID string
	Code      string
}

func (r *ConfirmRequest) Sanitized() {
	r.SessionID = sanitizex.StripSpace(r.SessionID)
	r.Code = sanitizex.StripSpace(r.Code)
}

// Confirm redirects to the relying party with the identity token appended to its redirect URI.
func (h *HTTP) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Confirm")
	defer span.End()

	req := ConfirmRequest{
		SessionID: r.FormValue("session"),
		Code:      r.FormValue("code"),
	}
	req.Sanitized()

	w.Header().Set("Cache-Control", "no-store")

	res, err := h.cmd.Verify.Handle(ctx, cmd.VerifyCode{
		SessionID: loginsession.ID(req.SessionID),
		Code:      req.Code,
	})
	if err != nil {
		if isCodeRejection(err) {
			h.errhandler.HandleError(w, r, span, ErrInvalidOrExpiredCode.WithCause(err), "login code rejected")
			return
		}
		h.errhandler.HandleError(w, r, span, err, "failed to verify login code")
		return
	}

	target, err := RedirectWithToken(res.RedirectURI, res.IDToken)
	if err != nil {
		h.errhandler.HandleError(w, r, span, errorx.NewInternalError().WithCause(err), "stored redirect is not a valid URL")
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

func isCodeRejection(err error) bool {
	return errors.Is(err, loginsession.ErrSessionNotFound) ||
		errors.Is(err, loginsession.ErrIncorrectCode) ||
		errors.Is(err, loginsession.ErrTooManyAttempts)
}

// RedirectWithToken sets id_token on redirectURI, keeping its other query parameters.
func RedirectWithToken(redirectURI, token string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("id_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
