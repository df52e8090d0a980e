package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectmydoc/patient-api/pkg/metrics"
)

type scriptedBroker struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	batches   [][][]byte
}

func (b *scriptedBroker) Publish(context.Context, string, interface{}) error { return nil }

func (b *scriptedBroker) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls <= b.failFirst {
		return nil, errors.New("connection refused")
	}

	ch := make(chan []byte, 10)
	idx := b.calls - b.failFirst - 1
	if idx < len(b.batches) {
		for _, msg := range b.batches[idx] {
			ch <- msg
		}
		close(ch)
		return ch, nil
	}
	// Stay subscribed until the consumer is cancelled.
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *scriptedBroker) Close() error { return nil }

func (b *scriptedBroker) subscribeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestNewEventConsumerValidatesConfig(t *testing.T) {
	_, err := NewEventConsumer(&scriptedBroker{}, EventConsumerConfig{RetryAttempts: 1, RetryDelay: time.Millisecond}, nil, zerolog.Nop(), nil)
	assert.Error(t, err)

	_, err = NewEventConsumer(&scriptedBroker{}, EventConsumerConfig{Channel: "c", RetryDelay: time.Millisecond}, nil, zerolog.Nop(), nil)
	assert.Error(t, err)

	_, err = NewEventConsumer(&scriptedBroker{}, EventConsumerConfig{Channel: "c", RetryAttempts: 1}, nil, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestEventConsumerHandlesEventsAndResubscribes(t *testing.T) {
	broker := &scriptedBroker{
		failFirst: 1,
		batches: [][][]byte{
			{
				[]byte(`{"type":"patient.created","payload":{"patientId":1}}`),
				[]byte(`not json`),
			},
			{
				[]byte(`{"type":"patient.deleted","payload":{"patientId":1}}`),
			},
		},
	}
	m := metrics.New("test", nil)

	var mu sync.Mutex
	var seen []string
	handle := func(_ context.Context, event Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.Type)
		return nil
	}

	consumer, err := NewEventConsumer(broker, EventConsumerConfig{
		Channel:       "patients.events",
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}, handle, zerolog.Nop(), m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	require.Eventually(t, func() bool { return broker.subscribeCalls() >= 4 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	assert.Equal(t, []string{"patient.created", "patient.deleted"}, seen)
	mu.Unlock()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsConsumed.WithLabelValues("patient.created", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsConsumed.WithLabelValues("unknown", "error")))
}

func TestEventConsumerGivesUpAfterRetries(t *testing.T) {
	broker := &scriptedBroker{failFirst: 10}
	consumer, err := NewEventConsumer(broker, EventConsumerConfig{
		Channel:       "patients.events",
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, nil, zerolog.Nop(), nil)
	require.NoError(t, err)

	err = consumer.Start(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 2, broker.subscribeCalls())
}

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	handle := LogEvent(zerolog.New(&buf))

	require.NoError(t, handle(context.Background(), Event{Type: "patient.updated", Payload: []byte(`{"patientId":9}`)}))
	assert.Contains(t, buf.String(), `"event_type":"patient.updated"`)
	assert.Contains(t, buf.String(), `"payload":{"patientId":9}`)
}
