package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gitlab.com/ucmsv2/idbroker/internal/domain/valueobject/mail"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/pkg/logging"
	"gitlab.com/ucmsv2/idbroker/pkg/otelx"
)

const (
	DefaultSMTPPort    = 587
	DefaultSMTPTimeout = 10 * time.Second
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPSender delivers one message per call. Failed deliveries are not retried.
type SMTPSender struct {
	tracer trace.Tracer
	logger *slog.Logger
	client *gomail.Client
	host   string
}

func NewSMTPSender(cfg SMTPConfig, t trace.Tracer, l *slog.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}
	if t == nil {
		t = tracer
	}
	if l == nil {
		l = logger
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPSender{
		tracer: t,
		logger: l,
		client: client,
		host:   cfg.Host,
	}, nil
}

func (s *SMTPSender) SendMail(ctx context.Context, payload mail.Payload) error {
	const op = "mail.SMTPSender.SendMail"
	ctx, span := s.tracer.Start(ctx, "SMTPSender.SendMail",
		trace.WithAttributes(
			attribute.String("mail.to", logging.RedactEmail(payload.To)),
			attribute.String("mail.smtp_host", s.host),
		),
	)
	defer span.End()

	msg, err := buildMessage(payload)
	if err != nil {
		otelx.RecordSpanError(span, err, "failed to build message")
		return errorx.Wrap(err, op)
	}

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		otelx.RecordSpanError(span, err, "failed to deliver message")
		return errorx.Wrap(err, op)
	}

	s.logger.DebugContext(ctx, "mail delivered", slog.String("to", logging.RedactEmail(payload.To)))
	return nil
}

func buildMessage(payload mail.Payload) (*gomail.Msg, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(payload.From.Name, payload.From.Address); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(payload.To); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(payload.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, payload.Body)

	return msg, nil
}
