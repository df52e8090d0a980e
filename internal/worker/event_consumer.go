package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/connectmydoc/patient-api/pkg/messaging"
	"github.com/connectmydoc/patient-api/pkg/metrics"
)

// Event is a patient event as read back from the broker.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandlerFunc processes one decoded event.
type HandlerFunc func(ctx context.Context, event Event) error

type EventConsumerConfig struct {
	Channel       string
	RetryAttempts int
	RetryDelay    time.Duration
}

// EventConsumer subscribes to the patient events channel and hands each
// event to a handler. It resubscribes when the subscription drops.
type EventConsumer struct {
	broker  messaging.Broker
	config  EventConsumerConfig
	handle  HandlerFunc
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewEventConsumer(
	broker messaging.Broker,
	config EventConsumerConfig,
	handle HandlerFunc,
	logger zerolog.Logger,
	m *metrics.Metrics,
) (*EventConsumer, error) {
	if config.Channel == "" {
		return nil, errors.New("channel is required")
	}
	if config.RetryAttempts <= 0 {
		return nil, errors.New("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, errors.New("RetryDelay must be greater than 0")
	}
	if handle == nil {
		handle = LogEvent(logger)
	}

	return &EventConsumer{
		broker:  broker,
		config:  config,
		handle:  handle,
		logger:  logger.With().Str("channel", config.Channel).Logger(),
		metrics: m,
	}, nil
}

// Start blocks until ctx is done or the broker cannot be subscribed to
// after the configured attempts.
func (c *EventConsumer) Start(ctx context.Context) error {
	c.logger.Info().Msg("Starting event consumer")

	for {
		var messages <-chan []byte
		err := retry(ctx, c.config.RetryAttempts, c.config.RetryDelay, func() error {
			var err error
			messages, err = c.broker.Subscribe(ctx, c.config.Channel)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to subscribe: %w", err)
		}

		c.consume(ctx, messages)

		if ctx.Err() != nil {
			c.logger.Info().Msg("Shutting down event consumer")
			return nil
		}
		c.logger.Warn().Msg("Subscription closed, resubscribing")
	}
}

func (c *EventConsumer) consume(ctx context.Context, messages <-chan []byte) {
	for raw := range messages {
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			c.metrics.ObserveConsumed("unknown", err)
			c.logger.Error().Err(err).Msg("Failed to decode event")
			continue
		}

		err := c.handle(ctx, event)
		c.metrics.ObserveConsumed(event.Type, err)
		if err != nil {
			c.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to process event")
		}
	}
}

// LogEvent writes each event to logger.
func LogEvent(logger zerolog.Logger) HandlerFunc {
	return func(_ context.Context, event Event) error {
		logger.Info().
			Str("event_type", event.Type).
			RawJSON("payload", event.Payload).
			Msg("Patient event")
		return nil
	}
}

func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
