package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ARUMANDESU/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gitlab.com/ucmsv2/idbroker/internal/domain/client"
	"gitlab.com/ucmsv2/idbroker/internal/domain/email"
	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/internal/domain/valueobject/mail"
	"gitlab.com/ucmsv2/idbroker/pkg/env"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/pkg/logging"
	"gitlab.com/ucmsv2/idbroker/pkg/otelx"
)

const DefaultSessionTTL = 15 * time.Minute

type RequestLogin struct {
	Email       string `json:"login_hint"`
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
}

// RequestOutcome reports each infrastructure step of an issuance separately.
// Every step is attempted even when an earlier one failed.
type RequestOutcome struct {
	SessionID loginsession.ID
	StoreErr  error
	TTLErr    error
	MailErr   error
}

func (o RequestOutcome) OK() bool {
	return o.StoreErr == nil && o.TTLErr == nil && o.MailErr == nil
}

func (o RequestOutcome) Err() error {
	return errors.Join(o.StoreErr, o.TTLErr, o.MailErr)
}

type Diagnostics struct {
	StoreError string `json:"store_error,omitempty"`
	TTLError   string `json:"ttl_error,omitempty"`
	MailError  string `json:"mail_error,omitempty"`
}

func (o RequestOutcome) Diagnostics() Diagnostics {
	var d Diagnostics
	if o.StoreErr != nil {
		d.StoreError = o.StoreErr.Error()
	}
	if o.TTLErr != nil {
		d.TTLError = o.TTLErr.Error()
	}
	if o.MailErr != nil {
		d.MailError = o.MailErr.Error()
	}
	return d
}

type RequestHandler struct {
	tracer     trace.Tracer
	logger     *slog.Logger
	mode       env.Mode
	repo       SessionRepo
	mailer     MailSender
	clients    ClientGetter
	events     EventPublisher
	idKey      []byte
	baseURL    string
	sessionTTL time.Duration
	codeLength int
	sender     mail.Sender
}

type RequestHandlerArgs struct {
	Tracer trace.Tracer
	Logger *slog.Logger
	Mode   env.Mode
	Repo   SessionRepo
	Mailer MailSender
	// Clients is optional. When nil every client id and redirect URI is accepted.
	Clients    ClientGetter
	Events     EventPublisher
	IDKey      []byte
	BaseURL    string
	SessionTTL time.Duration
	CodeLength int
	Sender     mail.Sender
}

func NewRequestHandler(args RequestHandlerArgs) *RequestHandler {
	if args.Tracer == nil {
		args.Tracer = tracer
	}
	if args.Logger == nil {
		args.Logger = logger
	}
	if args.SessionTTL <= 0 {
		args.SessionTTL = DefaultSessionTTL
	}
	if args.CodeLength <= 0 {
		args.CodeLength = loginsession.DefaultCodeLength
	}

	return &RequestHandler{
		tracer:     args.Tracer,
		logger:     args.Logger,
		mode:       args.Mode,
		repo:       args.Repo,
		mailer:     args.Mailer,
		clients:    args.Clients,
		events:     args.Events,
		idKey:      args.IDKey,
		baseURL:    args.BaseURL,
		sessionTTL: args.SessionTTL,
		codeLength: args.CodeLength,
		sender:     args.Sender,
	}
}

// Handle issues a login code. A returned error means nothing was written or sent;
// infrastructure failures after that point are reported in the outcome instead.
func (h *RequestHandler) Handle(ctx context.Context, cmd RequestLogin) (RequestOutcome, error) {
	const op = "cmd.RequestHandler.Handle"
	ctx, span := h.tracer.Start(ctx, "RequestHandler.Handle")
	defer span.End()

	addr, err := email.Parse(cmd.Email, h.mode)
	if err != nil {
		otelx.RecordSpanError(span, err, "invalid email address")
		return RequestOutcome{}, errorx.Wrap(err, op)
	}
	redacted := logging.RedactEmail(addr.String())
	span.SetAttributes(
		attribute.String("login.email", redacted),
		attribute.String("login.client_id", cmd.ClientID),
	)
	l := h.logger.With(slog.String("email", redacted), slog.String("client_id", cmd.ClientID))

	// client_id and redirect_uri are opaque here; format checks belong to the registry.
	err = validation.ValidateStruct(&cmd,
		validation.Field(&cmd.ClientID, validation.Required),
		validation.Field(&cmd.RedirectURI, validation.Required),
	)
	if err != nil {
		otelx.RecordSpanError(span, err, "validation failed")
		return RequestOutcome{}, errorx.Wrap(err, op)
	}

	if err := h.checkClient(ctx, cmd.ClientID, cmd.RedirectURI); err != nil {
		otelx.RecordSpanError(span, err, "client rejected")
		l.InfoContext(ctx, "login request rejected by client registry", slog.Any("error", err))
		return RequestOutcome{}, errorx.Wrap(err, op)
	}

	s, err := loginsession.NewSession(loginsession.NewSessionArgs{
		Key:         h.idKey,
		Email:       addr,
		ClientID:    cmd.ClientID,
		RedirectURI: cmd.RedirectURI,
		CodeLength:  h.codeLength,
	})
	if err != nil {
		otelx.RecordSpanError(span, err, "failed to build session")
		return RequestOutcome{}, errorx.Wrap(errorx.NewInternalError().WithCause(err), op)
	}

	outcome := RequestOutcome{SessionID: s.ID()}
	span.SetAttributes(attribute.String("login.session_id", s.ID().String()))
	l = l.With(slog.String("session_id", s.ID().String()))

	if err := h.repo.SaveSession(ctx, s); err != nil {
		otelx.RecordSpanError(span, err, "failed to store session")
		l.ErrorContext(ctx, "failed to store login session", slog.Any("error", err))
		outcome.StoreErr = err
	}

	if err := h.repo.ExpireSession(ctx, s.ID(), h.sessionTTL); err != nil {
		otelx.RecordSpanError(span, err, "failed to set session ttl")
		l.ErrorContext(ctx, "failed to set login session ttl", slog.Any("error", err))
		outcome.TTLErr = err
	}

	link := ConfirmURL(h.baseURL, s.ID(), s.Code())
	if h.mode != env.Prod {
		l.DebugContext(ctx, "login code issued", slog.String("code", s.Code()), slog.String("link", link))
	}

	if err := h.sendCode(ctx, s, link); err != nil {
		otelx.RecordSpanError(span, err, "failed to send login code")
		l.ErrorContext(ctx, "failed to send login code", slog.Any("error", err))
		outcome.MailErr = err
	}

	if outcome.StoreErr == nil {
		publish(ctx, l, h.events, s.GetUncommittedEvents()...)
		s.MarkEventsAsCommitted()
	}

	span.SetAttributes(attribute.Bool("login.outcome_ok", outcome.OK()))
	l.InfoContext(ctx, "login code requested", slog.Bool("ok", outcome.OK()))

	return outcome, nil
}

func (h *RequestHandler) checkClient(ctx context.Context, clientID, redirectURI string) error {
	if h.clients == nil {
		return nil
	}

	c, err := h.clients.GetClient(ctx, clientID)
	if errorx.IsNotFound(err) {
		return client.ErrUnknownClient.WithArgs(map[string]any{"ClientID": clientID})
	}
	if err != nil {
		return errorx.NewServiceUnavailable().WithCause(fmt.Errorf("get client: %w", err))
	}

	return c.CheckRedirect(redirectURI)
}

func (h *RequestHandler) sendCode(ctx context.Context, s *loginsession.Session, link string) error {
	subject, body, err := renderMessage(messageData{
		Code:     s.Code(),
		ClientID: s.ClientID(),
		Link:     link,
		Validity: humanizeTTL(h.sessionTTL),
	})
	if err != nil {
		return err
	}

	payload := mail.Payload{
		To:      s.Email().String(),
		From:    h.sender,
		Subject: subject,
		Body:    body,
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	return h.mailer.SendMail(ctx, payload)
}
