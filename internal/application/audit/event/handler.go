package auditevent

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/pkg/logging"
	"gitlab.com/ucmsv2/idbroker/pkg/otelx"
)

var (
	tracer = otel.Tracer("idbroker/application/audit/event")
	logger = otelslog.NewLogger("idbroker/application/audit/event")
	meter  = otel.Meter("idbroker/application/audit/event")
)

// AuditEventHandler turns login events into audit log lines and counters.
type AuditEventHandler struct {
	tracer   trace.Tracer
	logger   *slog.Logger
	issued   metric.Int64Counter
	verified metric.Int64Counter
	failed   metric.Int64Counter
}

type AuditEventHandlerArgs struct {
	Tracer trace.Tracer
	Logger *slog.Logger
	Meter  metric.Meter
}

func NewAuditEventHandler(args AuditEventHandlerArgs) (*AuditEventHandler, error) {
	if args.Tracer == nil {
		args.Tracer = tracer
	}
	if args.Logger == nil {
		args.Logger = logger
	}
	if args.Meter == nil {
		args.Meter = meter
	}

	issued, err := args.Meter.Int64Counter("idbroker.login.codes_issued",
		metric.WithDescription("Login codes issued and stored"))
	if err != nil {
		return nil, fmt.Errorf("create issued counter: %w", err)
	}
	verified, err := args.Meter.Int64Counter("idbroker.login.verified",
		metric.WithDescription("Successful code verifications"))
	if err != nil {
		return nil, fmt.Errorf("create verified counter: %w", err)
	}
	failed, err := args.Meter.Int64Counter("idbroker.login.verification_failed",
		metric.WithDescription("Rejected code verifications by reason"))
	if err != nil {
		return nil, fmt.Errorf("create failed counter: %w", err)
	}

	return &AuditEventHandler{
		tracer:   args.Tracer,
		logger:   args.Logger,
		issued:   issued,
		verified: verified,
		failed:   failed,
	}, nil
}

func (h *AuditEventHandler) HandleLoginCodeIssued(ctx context.Context, e *loginsession.LoginCodeIssued) error {
	if e == nil {
		return nil
	}

	ctx, span := h.tracer.Start(ctx, "AuditEventHandler.HandleLoginCodeIssued",
		trace.WithNewRoot(),
		trace.WithLinks(trace.LinkFromContext(otelx.ContextFromExtractor(e))),
		trace.WithAttributes(
			attribute.String("event.session_id", e.SessionID.String()),
			attribute.String("event.client_id", e.ClientID),
		),
	)
	defer span.End()

	h.issued.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", e.ClientID)))
	h.logger.InfoContext(ctx, "audit: login code issued",
		slog.String("event_id", e.ID.String()),
		slog.String("session_id", e.SessionID.String()),
		slog.String("email", logging.RedactEmail(e.Email)),
		slog.String("client_id", e.ClientID),
		slog.Time("at", e.Timestamp),
	)

	return nil
}

func (h *AuditEventHandler) HandleLoginVerified(ctx context.Context, e *loginsession.LoginVerified) error {
	if e == nil {
		return nil
	}

	ctx, span := h.tracer.Start(ctx, "AuditEventHandler.HandleLoginVerified",
		trace.WithNewRoot(),
		trace.WithLinks(trace.LinkFromContext(otelx.ContextFromExtractor(e))),
		trace.WithAttributes(
			attribute.String("event.session_id", e.SessionID.String()),
			attribute.String("event.client_id", e.ClientID),
		),
	)
	defer span.End()

	h.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", e.ClientID)))
	h.logger.InfoContext(ctx, "audit: login verified",
		slog.String("event_id", e.ID.String()),
		slog.String("session_id", e.SessionID.String()),
		slog.String("email", logging.RedactEmail(e.Email)),
		slog.String("client_id", e.ClientID),
		slog.Time("at", e.Timestamp),
	)

	return nil
}

func (h *AuditEventHandler) HandleLoginVerificationFailed(ctx context.Context, e *loginsession.LoginVerificationFailed) error {
	if e == nil {
		return nil
	}

	ctx, span := h.tracer.Start(ctx, "AuditEventHandler.HandleLoginVerificationFailed",
		trace.WithNewRoot(),
		trace.WithLinks(trace.LinkFromContext(otelx.ContextFromExtractor(e))),
		trace.WithAttributes(
			attribute.String("event.session_id", e.SessionID.String()),
			attribute.String("event.reason", string(e.Reason)),
		),
	)
	defer span.End()

	h.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(e.Reason))))

	level := slog.LevelInfo
	if e.Reason == loginsession.ReasonTooManyAttempts {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "audit: login verification failed",
		slog.String("event_id", e.ID.String()),
		slog.String("session_id", e.SessionID.String()),
		slog.String("reason", string(e.Reason)),
		slog.Int("attempts", e.Attempts),
		slog.Time("at", e.Timestamp),
	)

	return nil
}
