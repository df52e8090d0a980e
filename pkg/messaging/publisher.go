package messaging

import (
	"context"
	"fmt"

	"github.com/connectmydoc/patient-api/pkg/metrics"
)

// EventPublisher wraps payloads in a Message and sends them to one channel.
type EventPublisher struct {
	broker  Broker
	channel string
	metrics *metrics.Metrics
}

func NewEventPublisher(broker Broker, channel string, m *metrics.Metrics) *EventPublisher {
	return &EventPublisher{broker: broker, channel: channel, metrics: m}
}

func (p *EventPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	err := p.broker.Publish(ctx, p.channel, Message{Type: eventType, Payload: payload})
	p.metrics.ObserveEvent(eventType, err)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error {
	return nil
}
