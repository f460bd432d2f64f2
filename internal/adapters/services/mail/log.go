package mail

import (
	"context"
	"log/slog"

	"gitlab.com/ucmsv2/idbroker/internal/domain/valueobject/mail"
	"gitlab.com/ucmsv2/idbroker/pkg/env"
	"gitlab.com/ucmsv2/idbroker/pkg/logging"
)

// LogSender writes mails to the log instead of delivering them.
// The body is only logged outside prod.
type LogSender struct {
	logger *slog.Logger
	mode   env.Mode
}

func NewLogSender(mode env.Mode, l *slog.Logger) *LogSender {
	if l == nil {
		l = logger
	}
	return &LogSender{logger: l, mode: mode}
}

func (s *LogSender) SendMail(ctx context.Context, payload mail.Payload) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	attrs := []any{
		slog.String("to", logging.RedactEmail(payload.To)),
		slog.String("from", payload.From.String()),
	}
	if s.mode != env.Prod {
		attrs = append(attrs, slog.String("subject", payload.Subject), slog.String("body", payload.Body))
	}
	s.logger.InfoContext(ctx, "mail not delivered, no smtp host configured", attrs...)

	return nil
}
