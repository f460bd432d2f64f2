package watermill

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"

	"gitlab.com/ucmsv2/idbroker/internal/application/audit"
	"gitlab.com/ucmsv2/idbroker/pkg/watermillx"
)

type Port struct {
	eventProcessor *cqrs.EventProcessor
}

type AppEventHandlers struct {
	Audit *audit.App
}

func NewPort(router *message.Router, sub message.Subscriber, wmlogger watermill.LoggerAdapter) (*Port, error) {
	eventProcessor, err := watermillx.NewEventProcessor(router, sub, wmlogger)
	if err != nil {
		return nil, err
	}

	return &Port{eventProcessor: eventProcessor}, nil
}

// Run registers the handlers on the router. The router itself is started by the caller.
func (p *Port) Run(ctx context.Context, handlers AppEventHandlers) error {
	if handlers.Audit == nil || handlers.Audit.Event == nil {
		return errors.New("audit event handler is required")
	}

	err := p.eventProcessor.AddHandlers(
		cqrs.NewEventHandler("AuditOnLoginCodeIssued", handlers.Audit.Event.HandleLoginCodeIssued),
		cqrs.NewEventHandler("AuditOnLoginVerified", handlers.Audit.Event.HandleLoginVerified),
		cqrs.NewEventHandler("AuditOnLoginVerificationFailed", handlers.Audit.Event.HandleLoginVerificationFailed),
	)
	if err != nil {
		return fmt.Errorf("failed to add event handlers: %w", err)
	}

	return nil
}
