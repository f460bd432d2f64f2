package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gitlab.com/ucmsv2/idbroker/internal/domain/email"
	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/pkg/logging"
	"gitlab.com/ucmsv2/idbroker/pkg/otelx"
)

type VerifyCode struct {
	SessionID loginsession.ID
	Code      string
}

type VerifyResult struct {
	IDToken     string
	RedirectURI string
	Email       email.Address
	ClientID    string
}

type VerifyHandler struct {
	tracer trace.Tracer
	logger *slog.Logger
	repo   SessionRepo
	tokens TokenIssuer
	events EventPublisher
	policy loginsession.VerifyPolicy
}

type VerifyHandlerArgs struct {
	Tracer      trace.Tracer
	Logger      *slog.Logger
	Repo        SessionRepo
	Tokens      TokenIssuer
	Events      EventPublisher
	MaxAttempts int
	// SingleUse deletes the record on the first successful verification.
	SingleUse bool
}

func NewVerifyHandler(args VerifyHandlerArgs) *VerifyHandler {
	if args.Tracer == nil {
		args.Tracer = tracer
	}
	if args.Logger == nil {
		args.Logger = logger
	}

	return &VerifyHandler{
		tracer: args.Tracer,
		logger: args.Logger,
		repo:   args.Repo,
		tokens: args.Tokens,
		events: args.Events,
		policy: loginsession.VerifyPolicy{
			MaxAttempts: args.MaxAttempts,
			SingleUse:   args.SingleUse,
		},
	}
}

// Handle checks the code of a session and mints an identity token for its email and client.
// The read, the comparison and any state change happen in one store transaction.
func (h *VerifyHandler) Handle(ctx context.Context, cmd VerifyCode) (VerifyResult, error) {
	const op = "cmd.VerifyHandler.Handle"
	ctx, span := h.tracer.Start(ctx, "VerifyHandler.Handle",
		trace.WithAttributes(attribute.String("login.session_id", cmd.SessionID.String())),
	)
	defer span.End()

	l := h.logger.With(slog.String("session_id", cmd.SessionID.String()))

	if cmd.SessionID == "" {
		otelx.RecordSpanError(span, loginsession.ErrSessionNotFound, "empty session id")
		return VerifyResult{}, errorx.Wrap(loginsession.ErrSessionNotFound, op)
	}

	var (
		session *loginsession.Session
		result  VerifyResult
	)
	err := h.repo.UpdateSession(ctx, cmd.SessionID, func(ctx context.Context, s *loginsession.Session) error {
		span := trace.SpanFromContext(ctx)
		session = s

		if err := s.VerifyCode(cmd.Code, h.policy); err != nil {
			span.AddEvent("login code rejected")
			return err
		}

		token, err := h.tokens.IssueIDToken(ctx, s.Email().String(), s.ClientID())
		if err != nil {
			return fmt.Errorf("issue id token: %w", err)
		}

		result = VerifyResult{
			IDToken:     token,
			RedirectURI: s.RedirectURI(),
			Email:       s.Email(),
			ClientID:    s.ClientID(),
		}
		return nil
	})

	if session != nil && (err == nil || errorx.IsPersistable(err)) {
		publish(ctx, l, h.events, session.GetUncommittedEvents()...)
		session.MarkEventsAsCommitted()
	}

	if err != nil {
		switch {
		case errors.Is(err, loginsession.ErrSessionNotFound):
			publish(ctx, l, h.events, loginsession.NewNotFoundEvent(cmd.SessionID))
			l.InfoContext(ctx, "login session not found")
		case errors.Is(err, loginsession.ErrIncorrectCode), errors.Is(err, loginsession.ErrTooManyAttempts):
			l.InfoContext(ctx, "login code rejected",
				slog.String("reason", string(loginsession.FailureReasonOf(err))),
				slog.Int("attempts", session.Attempts()),
			)
		default:
			l.ErrorContext(ctx, "failed to verify login code", slog.Any("error", err))
		}
		otelx.RecordSpanError(span, err, "failed to verify login code")
		return VerifyResult{}, errorx.Wrap(err, op)
	}

	span.SetAttributes(attribute.String("login.client_id", result.ClientID))
	l.InfoContext(ctx, "login verified",
		slog.String("email", logging.RedactEmail(result.Email.String())),
		slog.String("client_id", result.ClientID),
	)

	return result, nil
}
