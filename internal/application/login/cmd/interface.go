package cmd

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"

	"gitlab.com/ucmsv2/idbroker/internal/domain/client"
	"gitlab.com/ucmsv2/idbroker/internal/domain/event"
	"gitlab.com/ucmsv2/idbroker/internal/domain/loginsession"
	"gitlab.com/ucmsv2/idbroker/internal/domain/valueobject/mail"
)

var (
	tracer = otel.Tracer("idbroker/application/login/cmd")
	logger = otelslog.NewLogger("idbroker/application/login/cmd")
)

type SessionRepo interface {
	// SaveSession writes every field of the record in a single call, overwriting any previous record.
	SaveSession(ctx context.Context, s *loginsession.Session) error
	// ExpireSession sets the record's time to live. A missing record is an error.
	ExpireSession(ctx context.Context, id loginsession.ID, ttl time.Duration) error
	UpdateSession(ctx context.Context, id loginsession.ID, fn func(context.Context, *loginsession.Session) error) error
}

type MailSender interface {
	SendMail(ctx context.Context, payload mail.Payload) error
}

type TokenIssuer interface {
	IssueIDToken(ctx context.Context, subject, audience string) (string, error)
}

type ClientGetter interface {
	GetClient(ctx context.Context, id string) (*client.Client, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, events ...event.Event) error
}

// publish is best effort: a failure is logged and never reaches the caller.
func publish(ctx context.Context, l *slog.Logger, p EventPublisher, events ...event.Event) {
	if p == nil || len(events) == 0 {
		return
	}
	if err := p.Publish(ctx, events...); err != nil {
		l.WarnContext(ctx, "failed to publish events", slog.Int("count", len(events)), slog.Any("error", err))
	}
}
