package watermillx

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"gitlab.com/ucmsv2/idbroker/internal/domain/event"
	"gitlab.com/ucmsv2/idbroker/pkg/otelx"
)

const defaultChannelBuffer = 256

// NewGoChannel is the in-process pub/sub the event bus and the processors share.
func NewGoChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: defaultChannelBuffer,
	}, logger)
}

func NewEventProcessor(router *message.Router, sub message.Subscriber, logger watermill.LoggerAdapter) (*cqrs.EventProcessor, error) {
	return cqrs.NewEventProcessorWithConfig(router, cqrs.EventProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			evt, ok := params.EventHandler.NewEvent().(event.Event)
			if !ok {
				return "", fmt.Errorf("event handler %T does not implement event.Event", params.EventHandler.NewEvent())
			}
			return MessageTopic(evt)
		},
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return sub, nil
		},
		Marshaler:         cqrs.JSONMarshaler{},
		Logger:            logger,
		AckOnUnknownEvent: true,
	})
}

func NewEventBus(pub message.Publisher, logger watermill.LoggerAdapter) (*cqrs.EventBus, error) {
	eventBus, err := cqrs.NewEventBusWithConfig(pub, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			evt, ok := params.Event.(event.Event)
			if !ok {
				return "", fmt.Errorf("event %T does not implement event.Event", params.Event)
			}

			return MessageTopic(evt)
		},
		Marshaler: cqrs.JSONMarshaler{},
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	return eventBus, nil
}

// Publisher stamps each event with the caller's trace context before handing it to the bus.
type Publisher struct {
	bus *cqrs.EventBus
}

func NewPublisher(pub message.Publisher, logger watermill.LoggerAdapter) (*Publisher, error) {
	bus, err := NewEventBus(pub, logger)
	if err != nil {
		return nil, err
	}
	return &Publisher{bus: bus}, nil
}

func (p *Publisher) Publish(ctx context.Context, evts ...event.Event) error {
	for _, evt := range evts {
		otelx.PropagateTo(ctx, evt)
		if err := p.bus.Publish(ctx, evt); err != nil {
			return fmt.Errorf("failed to publish event %T: %w", evt, err)
		}
	}

	return nil
}

func MessageTopic(event event.Event) (string, error) {
	streamName := event.GetStreamName()
	if streamName == "" {
		return "", fmt.Errorf("stream name is empty, event: %T", event)
	}

	return streamName, nil
}
